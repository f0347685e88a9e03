package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerkit/ledgerkit/internal/infra/postgres"
	infraRedis "github.com/ledgerkit/ledgerkit/internal/infra/redis"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/internal/recon"
	"github.com/ledgerkit/ledgerkit/internal/recon/scheduler"
	"github.com/ledgerkit/ledgerkit/internal/recon/source"
	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi"
	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi/handler"
	"github.com/ledgerkit/ledgerkit/pkg/config"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting LedgerKit API server",
		"env", cfg.Env,
		"port", cfg.APIPort,
	)

	// Initialize database connection pool
	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	// Initialize repositories
	ledgerRepo := postgres.NewLedgerRepository(db)
	reconRepo := postgres.NewReconRepository(db)

	// Initialize ledger service
	ledgerSvc := ledger.NewService(ledgerRepo, cfg.MaxTransactionAmount, cfg.AllowOverdraft, log)

	// Initialize reconciliation engine with all registered sources
	matcherCfg := recon.MatcherConfig{
		AmountTolerancePercent:    cfg.AmountTolerancePercent,
		TimestampToleranceSeconds: cfg.TimestampToleranceSecond,
		AmountWeight:              cfg.FuzzyWeights.Amount,
		TimestampWeight:           cfg.FuzzyWeights.Timestamp,
		MetadataWeight:            cfg.FuzzyWeights.Metadata,
		MinMatchScore:             cfg.MinMatchScore,
	}
	sources := map[string]recon.Source{
		"csv":               source.NewCSV(),
		"bank_csv":          source.NewBankCSV(),
		"api":               source.NewAPI(),
		"payment_processor": source.NewPaymentProcessor(),
	}
	engine := recon.NewEngine(reconRepo, reconRepo, sources, matcherCfg, log)
	log.Info("Reconciliation engine initialized", "sources", engine.Sources())

	// Initialize Redis summary cache when configured
	var summaryCache handler.SummaryCache
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		summaryCache = infraRedis.NewSummaryCache(redisClient, log)
		log.Info("Redis connection established, summary caching enabled")
	} else {
		log.Warn("REDIS_URL not configured, summary caching disabled")
	}

	// Initialize HTTP handlers
	ledgerHandler := handler.NewLedgerHandler(ledgerSvc, log)
	reconHandler := handler.NewReconHandler(engine, reconRepo, summaryCache, log)
	healthHandler := handler.NewHealthHandler(db)

	// Determine allowed origins for CORS
	allowedOrigins := []string{"http://localhost:5173", "http://localhost:3000"}
	if cfg.IsProduction() {
		if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins = []string{origins}
		}
	}

	// Create HTTP router
	r := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		AllowedOrigins: allowedOrigins,
		LedgerHandler:  ledgerHandler,
		ReconHandler:   reconHandler,
		HealthHandler:  healthHandler,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.APIHost + ":" + cfg.APIPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the daily reconciliation scheduler when enabled
	if cfg.SchedulerEnabled && len(cfg.SchedulerSources) > 0 {
		sched := scheduler.New(engine, cfg.SchedulerSources, cfg.SchedulerHour, log)
		go sched.Run(ctx)
		log.Info("Reconciliation scheduler started",
			"hour", cfg.SchedulerHour,
			"sources", cfg.SchedulerSources,
		)
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
