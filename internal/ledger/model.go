package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType classifies a ledger event.
type EventType string

const (
	EventTypeDebit    EventType = "DEBIT"
	EventTypeCredit   EventType = "CREDIT"
	EventTypeTransfer EventType = "TRANSFER"
)

// EventStatus is the settlement state of an event.
type EventStatus string

const (
	EventStatusPending EventStatus = "PENDING"
	EventStatusSettled EventStatus = "SETTLED"
	EventStatusFailed  EventStatus = "FAILED"
)

// Account is a ledger account. Currency is immutable after creation.
type Account struct {
	ID        uuid.UUID
	Currency  string
	Type      string
	Metadata  map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance is the projected balance row for an account. There is exactly one
// row per account; version increases monotonically with every projection.
type Balance struct {
	AccountID   uuid.UUID
	Currency    string
	Available   decimal.Decimal
	Pending     decimal.Decimal
	LastUpdated time.Time
	Version     int64
}

// Event is one immutable row of the append-only event log. A DEBIT has
// SourceAccountID set and DestinationAccountID nil; a CREDIT the reverse.
type Event struct {
	ID                   uuid.UUID
	TransactionID        uuid.UUID
	Timestamp            time.Time
	SourceAccountID      *uuid.UUID
	DestinationAccountID *uuid.UUID
	Amount               decimal.Decimal
	Currency             string
	EventType            EventType
	Status               EventStatus
	Metadata             map[string]interface{}
	CreatedAt            time.Time
}

// TransferRequest is the command input for a double-entry transfer.
type TransferRequest struct {
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               decimal.Decimal
	Currency             string
	Metadata             map[string]interface{}
}

// TransferResult reports the outcome of a transfer command. On validation or
// funds failure Success is false and Errors lists every violated rule.
type TransferResult struct {
	Success         bool
	TransactionID   uuid.UUID
	Events          []*Event
	UpdatedBalances []*Balance
	Errors          []string
}

// BalanceDelta is one aggregated balance mutation, applied atomically via
// an upsert with server-side arithmetic.
type BalanceDelta struct {
	AccountID      uuid.UUID
	Currency       string
	AvailableDelta decimal.Decimal
	PendingDelta   decimal.Decimal
}
