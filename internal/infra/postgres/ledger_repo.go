package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
)

// LedgerRepository implements ledger.Repository on postgres.
type LedgerRepository struct {
	pool *DB
}

func NewLedgerRepository(pool *DB) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Account operations

// CreateAccount inserts a new account row
func (r *LedgerRepository) CreateAccount(ctx context.Context, account *ledger.Account) error {
	metadataJSON, err := json.Marshal(account.Metadata)
	if err != nil {
		return apperrors.Internal("marshal account metadata", err)
	}

	query := `
		INSERT INTO accounts (id, currency, type, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	q := r.getQueryer(ctx)
	err = q.QueryRow(ctx, query, account.ID, account.Currency, account.Type, metadataJSON).
		Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.Conflict("account already exists")
		}
		return apperrors.Database("failed to create account", err)
	}

	return nil
}

// GetAccount retrieves an account by ID
func (r *LedgerRepository) GetAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	query := `
		SELECT id, currency, type, metadata, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var account ledger.Account
	var metadataJSON []byte

	q := r.getQueryer(ctx)
	err := q.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Currency,
		&account.Type,
		&metadataJSON,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("account")
		}
		return nil, apperrors.Database("failed to get account", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &account.Metadata); err != nil {
			return nil, apperrors.Internal("unmarshal account metadata", err)
		}
	}

	return &account, nil
}

// AccountExists reports whether the account id is present
func (r *LedgerRepository) AccountExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	q := r.getQueryer(ctx)
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, apperrors.Database("failed to check account existence", err)
	}
	return exists, nil
}

// Balance operations

// InitBalance inserts the zero balance row for a fresh account
func (r *LedgerRepository) InitBalance(ctx context.Context, accountID uuid.UUID, currency string) error {
	query := `
		INSERT INTO balances (account_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO NOTHING
	`

	q := r.getQueryer(ctx)
	if _, err := q.Exec(ctx, query, accountID, currency); err != nil {
		return apperrors.Database("failed to init balance", err)
	}
	return nil
}

// GetBalance retrieves the balance row for an account
func (r *LedgerRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error) {
	query := `
		SELECT account_id, currency, available_balance, pending_balance, last_updated, version
		FROM balances
		WHERE account_id = $1
	`

	var balance ledger.Balance
	q := r.getQueryer(ctx)
	err := q.QueryRow(ctx, query, accountID).Scan(
		&balance.AccountID,
		&balance.Currency,
		&balance.Available,
		&balance.Pending,
		&balance.LastUpdated,
		&balance.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("balance")
		}
		return nil, apperrors.Database("failed to get balance", err)
	}

	return &balance, nil
}

// ApplyBalanceDelta upserts the balance row with server-side arithmetic.
// Concurrent transfers on the same account serialise on the row lock; the
// adds happen in the database so no read-modify-write window exists.
func (r *LedgerRepository) ApplyBalanceDelta(ctx context.Context, delta ledger.BalanceDelta) (*ledger.Balance, error) {
	query := `
		INSERT INTO balances (account_id, currency, available_balance, pending_balance, last_updated, version)
		VALUES ($1, $2, $3, $4, NOW(), 1)
		ON CONFLICT (account_id) DO UPDATE SET
			available_balance = balances.available_balance + $3,
			pending_balance = balances.pending_balance + $4,
			last_updated = NOW(),
			version = balances.version + 1
		RETURNING account_id, currency, available_balance, pending_balance, last_updated, version
	`

	var balance ledger.Balance
	q := r.getQueryer(ctx)
	err := q.QueryRow(ctx, query, delta.AccountID, delta.Currency, delta.AvailableDelta, delta.PendingDelta).Scan(
		&balance.AccountID,
		&balance.Currency,
		&balance.Available,
		&balance.Pending,
		&balance.LastUpdated,
		&balance.Version,
	)
	if err != nil {
		return nil, apperrors.Database("failed to apply balance delta", err)
	}

	return &balance, nil
}

// Event operations

// InsertEvent appends one event row; the store assigns the timestamp
func (r *LedgerRepository) InsertEvent(ctx context.Context, event *ledger.Event) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return apperrors.Internal("marshal event metadata", err)
	}

	query := `
		INSERT INTO ledger_events (id, transaction_id, source_account_id, destination_account_id, amount, currency, event_type, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING timestamp, created_at
	`

	q := r.getQueryer(ctx)
	err = q.QueryRow(ctx, query,
		event.ID,
		event.TransactionID,
		event.SourceAccountID,
		event.DestinationAccountID,
		event.Amount,
		event.Currency,
		string(event.EventType),
		string(event.Status),
		metadataJSON,
	).Scan(&event.Timestamp, &event.CreatedAt)
	if err != nil {
		return apperrors.Database("failed to insert event", err)
	}

	return nil
}

const eventColumns = `id, transaction_id, timestamp, source_account_id, destination_account_id, amount, currency, event_type, status, metadata, created_at`

// EventsByAccount retrieves events touching an account, newest first
func (r *LedgerRepository) EventsByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*ledger.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM ledger_events
		WHERE source_account_id = $1 OR destination_account_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, eventColumns)

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, apperrors.Database("failed to query events", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventsByTransaction retrieves the event pair for a transaction
func (r *LedgerRepository) EventsByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*ledger.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM ledger_events
		WHERE transaction_id = $1
		ORDER BY created_at ASC
	`, eventColumns)

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, transactionID)
	if err != nil {
		return nil, apperrors.Database("failed to query events", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// SumSettledByAccount derives the available balance from settled events:
// credits into the account minus debits out of it.
func (r *LedgerRepository) SumSettledByAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(
			CASE
				WHEN event_type = 'CREDIT' AND destination_account_id = $1 THEN amount
				WHEN event_type = 'DEBIT' AND source_account_id = $1 THEN -amount
				ELSE 0
			END
		), 0)
		FROM ledger_events
		WHERE status = 'SETTLED'
		  AND (source_account_id = $1 OR destination_account_id = $1)
	`

	var sum decimal.Decimal
	q := r.getQueryer(ctx)
	if err := q.QueryRow(ctx, query, accountID).Scan(&sum); err != nil {
		return decimal.Zero, apperrors.Database("failed to sum events", err)
	}
	return sum, nil
}

func scanEvents(rows pgx.Rows) ([]*ledger.Event, error) {
	var events []*ledger.Event
	for rows.Next() {
		var event ledger.Event
		var metadataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.TransactionID,
			&event.Timestamp,
			&event.SourceAccountID,
			&event.DestinationAccountID,
			&event.Amount,
			&event.Currency,
			&event.EventType,
			&event.Status,
			&metadataJSON,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Database("failed to scan event", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, apperrors.Internal("unmarshal event metadata", err)
			}
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("error iterating events", err)
	}

	return events, nil
}

// Transaction management using pgx transactions
// Transactions are stored in context using txKey

// txKey is the context key for storing database transactions
type ctxKey string

const txContextKey ctxKey = "ledger_tx"

// BeginTx starts a new database transaction and stores it in the context
func (r *LedgerRepository) BeginTx(ctx context.Context) (context.Context, error) {
	// Check if there's already a transaction in progress
	if tx := txFromContext(ctx); tx != nil {
		return ctx, fmt.Errorf("transaction already in progress")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ctx, apperrors.Database("failed to begin transaction", err)
	}

	return context.WithValue(ctx, txContextKey, tx), nil
}

// CommitTx commits the database transaction from the context
func (r *LedgerRepository) CommitTx(ctx context.Context) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Database("failed to commit transaction", err)
	}

	return nil
}

// RollbackTx rolls back the database transaction from the context
func (r *LedgerRepository) RollbackTx(ctx context.Context) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Rollback(ctx); err != nil {
		// Ignore already rolled back or committed errors
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil
		}
		return apperrors.Database("failed to rollback transaction", err)
	}

	return nil
}

// txFromContext retrieves the transaction from context if one exists
func txFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// getQueryer returns the transaction if one exists in context, otherwise returns the pool
// This allows all repository methods to work both inside and outside transactions
func (r *LedgerRepository) getQueryer(ctx context.Context) queryer {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
