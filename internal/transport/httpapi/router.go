package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi/handler"
	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi/middleware"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger         *logger.Logger
	AllowedOrigins []string
	LedgerHandler  *handler.LedgerHandler
	ReconHandler   *handler.ReconHandler
	HealthHandler  *handler.HealthHandler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit()) // Rate limiting: 100 req/s with burst of 20

	// Health check endpoints
	r.Get("/health", handler.GetHealth)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
	}

	if cfg.LedgerHandler != nil {
		r.Route("/ledger", func(r chi.Router) {
			r.Post("/account/", cfg.LedgerHandler.CreateAccount)
			r.Get("/account/{id}", cfg.LedgerHandler.GetAccount)
			r.Get("/account/{id}/balance", cfg.LedgerHandler.GetBalance)
			r.Post("/transfer/", cfg.LedgerHandler.Transfer)
			r.Get("/events/", cfg.LedgerHandler.GetEvents)
			r.Get("/transactions/{id}/events", cfg.LedgerHandler.GetTransactionEvents)
		})
	}

	if cfg.ReconHandler != nil {
		r.Route("/recon", func(r chi.Router) {
			r.Post("/run", cfg.ReconHandler.RunRecon)
			r.Get("/status/{date}", cfg.ReconHandler.GetStatus)
			r.Get("/logs", cfg.ReconHandler.GetLogs)
			r.Get("/summary/{date}/{source}", cfg.ReconHandler.GetSummary)
			r.Get("/sources", cfg.ReconHandler.GetSources)
			r.Delete("/jobs/{id}", cfg.ReconHandler.CancelJob)
			r.Post("/validate-source", cfg.ReconHandler.ValidateSource)
		})
	}

	return r
}
