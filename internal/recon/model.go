package recon

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a reconciliation job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// ExternalTxn is one transaction from an external source of truth. It lives
// in memory only; the journal records match outcomes, not raw source rows.
type ExternalTxn struct {
	TxnID       string
	Amount      decimal.Decimal
	Currency    string
	Timestamp   time.Time
	Description string
	Metadata    map[string]interface{}
}

// LedgerTxn is the reconciliation-side view of one ledger event.
type LedgerTxn struct {
	ID                   uuid.UUID
	TransactionID        uuid.UUID
	Amount               decimal.Decimal
	Currency             string
	Timestamp            time.Time
	EventType            string
	SourceAccountID      *uuid.UUID
	DestinationAccountID *uuid.UUID
	Metadata             map[string]interface{}
}

// MatchResult is the outcome of matching one external txn against the
// ledger. AmountDiff and TimestampDiffSeconds are external minus ledger.
type MatchResult struct {
	Matched              bool
	MatchScore           float64
	MismatchReason       string
	LedgerTxnID          *uuid.UUID
	ExternalTxnID        string
	AmountDiff           decimal.Decimal
	TimestampDiffSeconds int
	Metadata             map[string]interface{}
}

// Job tracks one reconciliation run, unique per (date, source).
type Job struct {
	ID                uuid.UUID
	JobDate           time.Time
	SourceName        string
	Status            Status
	TotalExternalTxns int
	TotalLedgerTxns   int
	MatchedCount      int
	UnmatchedCount    int
	ErrorMessage      *string
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LogEntry is one append-only journal row, one per external txn per run.
type LogEntry struct {
	ID                   uuid.UUID
	ReconDate            time.Time
	SourceName           string
	ExternalTxnID        *string
	LedgerTxnID          *uuid.UUID
	Matched              bool
	MismatchReason       *string
	MatchScore           float64
	AmountDifference     decimal.Decimal
	LedgerAmount         *decimal.Decimal
	ExternalAmount       *decimal.Decimal
	Currency             *string
	TimestampDiffSeconds *int
	Metadata             map[string]interface{}
	CreatedAt            time.Time
}

// Summary aggregates the journal for one (date, source).
type Summary struct {
	JobDate             time.Time
	SourceName          string
	TotalLogs           int
	MatchedCount        int
	UnmatchedCount      int
	AvgMatchScore       float64
	TotalAmountVariance decimal.Decimal
	UniqueExternalTxns  int
	UniqueLedgerTxns    int
}

// LogFilter narrows journal queries. Nil fields are not applied.
type LogFilter struct {
	Date    time.Time
	Source  *string
	Matched *bool
	Limit   int
	Offset  int
}
