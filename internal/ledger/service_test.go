package ledger

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

func newTestService(repo *mockRepo, allowOverdraft bool) *Service {
	return NewService(repo, decimal.NewFromInt(1_000_000), allowOverdraft, logger.New("test", io.Discard))
}

func TestCreateAccount(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, false)

	account, err := svc.CreateAccount(context.Background(), "usd", "wallet", nil)
	require.NoError(t, err)
	assert.Equal(t, "USD", account.Currency)
	assert.Equal(t, "wallet", account.Type)

	balance, err := repo.GetBalance(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, balance.Available.IsZero())
	assert.True(t, balance.Pending.IsZero())
}

func TestCreateAccount_InvalidCurrency(t *testing.T) {
	svc := newTestService(newMockRepo(), false)

	_, err := svc.CreateAccount(context.Background(), "DOLLARS", "wallet", nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func transferOK(t *testing.T, svc *Service, src, dst uuid.UUID, amount int64) *TransferResult {
	t.Helper()
	res, err := svc.Transfer(context.Background(), &TransferRequest{
		SourceAccountID:      src,
		DestinationAccountID: dst,
		Amount:               decimal.NewFromInt(amount),
		Currency:             "USD",
	})
	require.NoError(t, err)
	require.True(t, res.Success, "errors: %v", res.Errors)
	return res
}

func TestTransfer_ChainBalances(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, true)

	alice := repo.addAccount("USD")
	bob := repo.addAccount("USD")
	float := repo.addAccount("USD")

	transferOK(t, svc, float, alice, 500)
	transferOK(t, svc, alice, bob, 100)
	transferOK(t, svc, bob, alice, 50)

	check := func(id uuid.UUID, want int64) {
		balance, err := repo.GetBalance(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, balance.Available.Equal(decimal.NewFromInt(want)), "account %s: got %s want %d", id, balance.Available, want)
	}
	check(alice, 450)
	check(bob, 50)
	check(float, -500)

	// Six events across three transactions, each a paired debit/credit.
	require.Len(t, repo.events, 6)
	byTxn := map[uuid.UUID][]*Event{}
	for _, ev := range repo.events {
		byTxn[ev.TransactionID] = append(byTxn[ev.TransactionID], ev)
	}
	require.Len(t, byTxn, 3)
	for txnID, pair := range byTxn {
		require.Len(t, pair, 2, "transaction %s", txnID)
		debits, credits := decimal.Zero, decimal.Zero
		for _, ev := range pair {
			switch ev.EventType {
			case EventTypeDebit:
				debits = debits.Add(ev.Amount)
			case EventTypeCredit:
				credits = credits.Add(ev.Amount)
			}
		}
		assert.True(t, debits.Equal(credits), "transaction %s not balanced", txnID)
	}
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, false)

	alice := repo.addAccount("USD")
	bob := repo.addAccount("USD")

	res, err := svc.Transfer(context.Background(), &TransferRequest{
		SourceAccountID:      alice,
		DestinationAccountID: bob,
		Amount:               decimal.NewFromInt(10_000),
		Currency:             "USD",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{MsgInsufficientFunds}, res.Errors)
	assert.Empty(t, repo.events)

	balance, err := repo.GetBalance(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, balance.Available.IsZero())
}

func TestTransfer_SameAccount(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, true)
	alice := repo.addAccount("USD")

	res, err := svc.Transfer(context.Background(), &TransferRequest{
		SourceAccountID:      alice,
		DestinationAccountID: alice,
		Amount:               decimal.NewFromInt(10),
		Currency:             "USD",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "same")
	assert.Empty(t, repo.events)
}

func TestTransfer_ValidationFailureOpensNoTransaction(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, false)

	res, err := svc.Transfer(context.Background(), &TransferRequest{
		SourceAccountID:      uuid.New(),
		DestinationAccountID: uuid.New(),
		Amount:               decimal.NewFromInt(10),
		Currency:             "USD",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, repo.snapEvents, "no transaction should have been opened")
}

func TestTransfer_RollbackOnAppendFailure(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, true)

	alice := repo.addAccount("USD")
	bob := repo.addAccount("USD")
	transferOK(t, svc, bob, alice, 100)

	repo.applyDeltaErr = apperrors.Database("apply delta", assert.AnError)
	_, err := svc.Transfer(context.Background(), &TransferRequest{
		SourceAccountID:      alice,
		DestinationAccountID: bob,
		Amount:               decimal.NewFromInt(30),
		Currency:             "USD",
	})
	require.Error(t, err)

	// Snapshot restored: the failed transfer left no events behind.
	assert.Len(t, repo.events, 2)
	balance, err := repo.GetBalance(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, balance.Available.Equal(decimal.NewFromInt(100)))
}

func TestReconcileBalance(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, true)

	alice := repo.addAccount("USD")
	bob := repo.addAccount("USD")
	transferOK(t, svc, bob, alice, 75)

	projected, derived, consistent, err := svc.ReconcileBalance(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, consistent)
	assert.True(t, projected.Equal(decimal.NewFromInt(75)))
	assert.True(t, derived.Equal(projected))
}
