package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Projector derives balance mutations from events. Balances are a pure
// projection of the event log; this is the only write path for them.
type Projector struct {
	repo Repository
}

func NewProjector(repo Repository) *Projector {
	return &Projector{repo: repo}
}

// Project aggregates per-account deltas across the event list and applies
// each via the repository's atomic upsert. DEBIT subtracts from the source
// account's available balance, CREDIT adds to the destination's. Pending is
// never touched by this path.
func (p *Projector) Project(ctx context.Context, events []*Event) ([]*Balance, error) {
	type accumulator struct {
		currency  string
		available decimal.Decimal
	}

	deltas := make(map[uuid.UUID]*accumulator)
	order := make([]uuid.UUID, 0, len(events))

	touch := func(id uuid.UUID, currency string) *accumulator {
		acc, ok := deltas[id]
		if !ok {
			acc = &accumulator{currency: currency}
			deltas[id] = acc
			order = append(order, id)
		}
		return acc
	}

	for _, ev := range events {
		switch ev.EventType {
		case EventTypeDebit:
			if ev.SourceAccountID != nil {
				acc := touch(*ev.SourceAccountID, ev.Currency)
				acc.available = acc.available.Sub(ev.Amount)
			}
		case EventTypeCredit:
			if ev.DestinationAccountID != nil {
				acc := touch(*ev.DestinationAccountID, ev.Currency)
				acc.available = acc.available.Add(ev.Amount)
			}
		}
	}

	balances := make([]*Balance, 0, len(order))
	for _, id := range order {
		acc := deltas[id]
		balance, err := p.repo.ApplyBalanceDelta(ctx, BalanceDelta{
			AccountID:      id,
			Currency:       acc.currency,
			AvailableDelta: acc.available,
			PendingDelta:   decimal.Zero,
		})
		if err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}

	return balances, nil
}
