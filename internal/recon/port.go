package recon

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SourceParams carries the per-run options a source variant may need.
type SourceParams struct {
	FilePath  string
	BaseURL   string
	AuthToken string
}

// Source loads one day of external transactions. Implementations must be
// safe for concurrent use; the engine holds one instance per source tag.
type Source interface {
	// Load fetches all transactions for the given business day. A bad row
	// fails the whole load; partial results are never returned.
	Load(ctx context.Context, date time.Time, params SourceParams) ([]ExternalTxn, error)
	// ValidateParams reports whether the params satisfy this source.
	ValidateParams(params SourceParams) error
}

// LedgerReader exposes the ledger event log to the reconciliation side.
type LedgerReader interface {
	TransactionsForDate(ctx context.Context, date time.Time) ([]LedgerTxn, error)
}

// Journal persists reconciliation jobs and per-transaction outcomes.
type Journal interface {
	// CreateJob upserts on the (date, source) unique key. A reused row is
	// reset to RUNNING with a fresh started_at.
	CreateJob(ctx context.Context, date time.Time, source string) (uuid.UUID, error)
	FinalizeJob(ctx context.Context, jobID uuid.UUID, status Status, totalExternal, totalLedger, matched, unmatched int, errorMessage string) error
	LogResult(ctx context.Context, date time.Time, source string, result MatchResult) error

	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
	JobStatus(ctx context.Context, date time.Time, source string) ([]Job, error)
	Logs(ctx context.Context, filter LogFilter) ([]LogEntry, error)
	GetSummary(ctx context.Context, date time.Time, source string) (*Summary, error)
	MarkJobFailed(ctx context.Context, jobID uuid.UUID, errorMessage string) error
}

// MatcherConfig carries matching tolerances and fuzzy weights.
type MatcherConfig struct {
	AmountTolerancePercent    float64
	TimestampToleranceSeconds int
	AmountWeight              float64
	TimestampWeight           float64
	MetadataWeight            float64
	MinMatchScore             float64
}

// DefaultMatcherConfig returns the standard tolerances and weight split.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		AmountTolerancePercent:    0.1,
		TimestampToleranceSeconds: 300,
		AmountWeight:              0.4,
		TimestampWeight:           0.3,
		MetadataWeight:            0.3,
		MinMatchScore:             0.8,
	}
}
