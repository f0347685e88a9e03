package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// FuzzyWeights holds the weighted-score coefficients for fuzzy matching.
// The three weights must sum to 1.
type FuzzyWeights struct {
	Amount    float64 `json:"amount"`
	Timestamp float64 `json:"timestamp"`
	Metadata  float64 `json:"metadata"`
}

// DefaultFuzzyWeights returns the standard weight split.
func DefaultFuzzyWeights() FuzzyWeights {
	return FuzzyWeights{Amount: 0.4, Timestamp: 0.3, Metadata: 0.3}
}

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	APIHost string
	APIPort string
	Env     string

	// Database configuration
	DatabaseURL string

	// Redis configuration (optional; summary caching is skipped when empty)
	RedisURL      string
	RedisPassword string

	// Ledger business rules
	AllowOverdraft       bool
	MaxTransactionAmount decimal.Decimal

	// Reconciliation matching tolerances
	AmountTolerancePercent   float64
	TimestampToleranceSecond int
	FuzzyWeights             FuzzyWeights
	MinMatchScore            float64

	// Scheduler
	SchedulerEnabled bool
	SchedulerHour    int
	SchedulerSources []string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	maxAmount, err := decimal.NewFromString(getEnv("MAX_TRANSACTION_AMOUNT", "1000000"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_TRANSACTION_AMOUNT: %w", err)
	}

	weights := DefaultFuzzyWeights()
	if raw := os.Getenv("RECON_FUZZY_WEIGHTS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &weights); err != nil {
			return nil, fmt.Errorf("invalid RECON_FUZZY_WEIGHTS: %w", err)
		}
	}

	cfg := &Config{
		APIHost:                  getEnv("API_HOST", "0.0.0.0"),
		APIPort:                  getEnv("API_PORT", "8080"),
		Env:                      getEnv("ENV", "development"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RedisPassword:            getEnv("REDIS_PASSWORD", ""),
		AllowOverdraft:           getEnvAsBool("ALLOW_OVERDRAFT", false),
		MaxTransactionAmount:     maxAmount,
		AmountTolerancePercent:   getEnvAsFloat("RECON_AMOUNT_TOLERANCE_PERCENT", 0.1),
		TimestampToleranceSecond: getEnvAsInt("RECON_TIMESTAMP_TOLERANCE_SECONDS", 300),
		FuzzyWeights:             weights,
		MinMatchScore:            getEnvAsFloat("RECON_MIN_MATCH_SCORE", 0.8),
		SchedulerEnabled:         getEnvAsBool("RECON_SCHEDULER_ENABLED", false),
		SchedulerHour:            getEnvAsInt("RECON_SCHEDULER_HOUR", 2),
		SchedulerSources:         getEnvAsList("RECON_SCHEDULER_SOURCES"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.MaxTransactionAmount.Sign() <= 0 {
		return fmt.Errorf("MAX_TRANSACTION_AMOUNT must be positive")
	}

	sum := c.FuzzyWeights.Amount + c.FuzzyWeights.Timestamp + c.FuzzyWeights.Metadata
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("RECON_FUZZY_WEIGHTS must sum to 1, got %v", sum)
	}

	if c.MinMatchScore < 0 || c.MinMatchScore > 1 {
		return fmt.Errorf("RECON_MIN_MATCH_SCORE must be in [0,1]")
	}

	if c.TimestampToleranceSecond <= 0 {
		return fmt.Errorf("RECON_TIMESTAMP_TOLERANCE_SECONDS must be positive")
	}

	if c.SchedulerHour < 0 || c.SchedulerHour > 23 {
		return fmt.Errorf("RECON_SCHEDULER_HOUR must be in [0,23]")
	}

	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable.
func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
