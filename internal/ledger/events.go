package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Appender writes double-entry event pairs to the append-only log.
type Appender struct {
	repo Repository
}

func NewAppender(repo Repository) *Appender {
	return &Appender{repo: repo}
}

// AppendTransfer writes a DEBIT/CREDIT pair sharing a fresh transaction_id.
// The caller supplies a context carrying an open transaction; both rows land
// in it or neither does. Timestamps are assigned by the store at insert.
func (a *Appender) AppendTransfer(ctx context.Context, sourceID, destID uuid.UUID, amount decimal.Decimal, currency string, metadata map[string]interface{}) ([]*Event, error) {
	transactionID := uuid.New()

	debit := &Event{
		ID:              uuid.New(),
		TransactionID:   transactionID,
		SourceAccountID: &sourceID,
		Amount:          amount,
		Currency:        currency,
		EventType:       EventTypeDebit,
		Status:          EventStatusSettled,
		Metadata:        metadata,
	}
	credit := &Event{
		ID:                   uuid.New(),
		TransactionID:        transactionID,
		DestinationAccountID: &destID,
		Amount:               amount,
		Currency:             currency,
		EventType:            EventTypeCredit,
		Status:               EventStatusSettled,
		Metadata:             metadata,
	}

	for _, ev := range []*Event{debit, credit} {
		if err := a.repo.InsertEvent(ctx, ev); err != nil {
			return nil, err
		}
	}

	return []*Event{debit, credit}, nil
}
