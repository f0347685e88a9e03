package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_AggregatesDeltasPerAccount(t *testing.T) {
	repo := newMockRepo()
	alice := repo.addAccount("USD")
	bob := repo.addAccount("USD")

	amount := decimal.NewFromInt(100)
	events := []*Event{
		{SourceAccountID: &alice, Amount: amount, Currency: "USD", EventType: EventTypeDebit},
		{DestinationAccountID: &bob, Amount: amount, Currency: "USD", EventType: EventTypeCredit},
		{SourceAccountID: &alice, Amount: decimal.NewFromInt(25), Currency: "USD", EventType: EventTypeDebit},
		{DestinationAccountID: &alice, Amount: decimal.NewFromInt(10), Currency: "USD", EventType: EventTypeCredit},
	}

	balances, err := NewProjector(repo).Project(context.Background(), events)
	require.NoError(t, err)
	// One upsert per touched account, not per event.
	require.Len(t, balances, 2)

	aliceBal, err := repo.GetBalance(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, aliceBal.Available.Equal(decimal.NewFromInt(-115)), "got %s", aliceBal.Available)
	assert.True(t, aliceBal.Pending.IsZero())
	assert.Equal(t, int64(1), aliceBal.Version)

	bobBal, err := repo.GetBalance(context.Background(), bob)
	require.NoError(t, err)
	assert.True(t, bobBal.Available.Equal(decimal.NewFromInt(100)))
}

func TestProject_EmptyEventList(t *testing.T) {
	repo := newMockRepo()
	balances, err := NewProjector(repo).Project(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, balances)
}
