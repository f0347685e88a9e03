package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the interface for ledger persistence operations
type Repository interface {
	// Account operations
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	AccountExists(ctx context.Context, id uuid.UUID) (bool, error)

	// Balance operations
	InitBalance(ctx context.Context, accountID uuid.UUID, currency string) error
	GetBalance(ctx context.Context, accountID uuid.UUID) (*Balance, error)
	// ApplyBalanceDelta performs an atomic upsert with server-side
	// arithmetic and returns the updated row.
	ApplyBalanceDelta(ctx context.Context, delta BalanceDelta) (*Balance, error)

	// Event operations (append-only - events are immutable)
	InsertEvent(ctx context.Context, event *Event) error
	EventsByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*Event, error)
	EventsByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*Event, error)
	SumSettledByAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)

	// Transaction management
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}
