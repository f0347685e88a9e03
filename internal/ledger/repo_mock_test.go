package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
)

type txMarker struct{}

// mockRepo is an in-memory Repository with snapshot-based transactions:
// RollbackTx restores the state captured at BeginTx unless CommitTx ran.
type mockRepo struct {
	accounts map[uuid.UUID]*Account
	balances map[uuid.UUID]*Balance
	events   []*Event

	snapBalances map[uuid.UUID]*Balance
	snapEvents   []*Event
	committed    bool

	insertEventErr error
	applyDeltaErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		accounts: make(map[uuid.UUID]*Account),
		balances: make(map[uuid.UUID]*Balance),
	}
}

func (m *mockRepo) addAccount(currency string) uuid.UUID {
	id := uuid.New()
	m.accounts[id] = &Account{ID: id, Currency: currency, Type: "standard", CreatedAt: time.Now()}
	m.balances[id] = &Balance{AccountID: id, Currency: currency, Available: decimal.Zero, Pending: decimal.Zero}
	return id
}

func (m *mockRepo) CreateAccount(_ context.Context, account *Account) error {
	if _, ok := m.accounts[account.ID]; ok {
		return apperrors.Conflict("account already exists")
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *mockRepo) GetAccount(_ context.Context, id uuid.UUID) (*Account, error) {
	account, ok := m.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account")
	}
	return account, nil
}

func (m *mockRepo) AccountExists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.accounts[id]
	return ok, nil
}

func (m *mockRepo) InitBalance(_ context.Context, accountID uuid.UUID, currency string) error {
	m.balances[accountID] = &Balance{AccountID: accountID, Currency: currency, Available: decimal.Zero, Pending: decimal.Zero}
	return nil
}

func (m *mockRepo) GetBalance(_ context.Context, accountID uuid.UUID) (*Balance, error) {
	balance, ok := m.balances[accountID]
	if !ok {
		return nil, apperrors.NotFound("balance")
	}
	return balance, nil
}

func (m *mockRepo) ApplyBalanceDelta(_ context.Context, delta BalanceDelta) (*Balance, error) {
	if m.applyDeltaErr != nil {
		return nil, m.applyDeltaErr
	}
	balance, ok := m.balances[delta.AccountID]
	if !ok {
		balance = &Balance{AccountID: delta.AccountID, Currency: delta.Currency}
		m.balances[delta.AccountID] = balance
	}
	balance.Available = balance.Available.Add(delta.AvailableDelta)
	balance.Pending = balance.Pending.Add(delta.PendingDelta)
	balance.LastUpdated = time.Now()
	balance.Version++
	return balance, nil
}

func (m *mockRepo) InsertEvent(_ context.Context, event *Event) error {
	if m.insertEventErr != nil {
		return m.insertEventErr
	}
	event.Timestamp = time.Now()
	event.CreatedAt = event.Timestamp
	m.events = append(m.events, event)
	return nil
}

func (m *mockRepo) EventsByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]*Event, error) {
	var out []*Event
	for _, ev := range m.events {
		if (ev.SourceAccountID != nil && *ev.SourceAccountID == accountID) ||
			(ev.DestinationAccountID != nil && *ev.DestinationAccountID == accountID) {
			out = append(out, ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockRepo) EventsByTransaction(_ context.Context, transactionID uuid.UUID) ([]*Event, error) {
	var out []*Event
	for _, ev := range m.events {
		if ev.TransactionID == transactionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockRepo) SumSettledByAccount(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, ev := range m.events {
		if ev.Status != EventStatusSettled {
			continue
		}
		if ev.EventType == EventTypeCredit && ev.DestinationAccountID != nil && *ev.DestinationAccountID == accountID {
			sum = sum.Add(ev.Amount)
		}
		if ev.EventType == EventTypeDebit && ev.SourceAccountID != nil && *ev.SourceAccountID == accountID {
			sum = sum.Sub(ev.Amount)
		}
	}
	return sum, nil
}

func (m *mockRepo) BeginTx(ctx context.Context) (context.Context, error) {
	m.snapBalances = make(map[uuid.UUID]*Balance, len(m.balances))
	for id, b := range m.balances {
		cp := *b
		m.snapBalances[id] = &cp
	}
	m.snapEvents = append([]*Event(nil), m.events...)
	m.committed = false
	return context.WithValue(ctx, txMarker{}, true), nil
}

func (m *mockRepo) CommitTx(_ context.Context) error {
	m.committed = true
	return nil
}

func (m *mockRepo) RollbackTx(_ context.Context) error {
	if m.committed || m.snapBalances == nil {
		return nil
	}
	m.balances = m.snapBalances
	m.events = m.snapEvents
	m.snapBalances = nil
	m.snapEvents = nil
	return nil
}
