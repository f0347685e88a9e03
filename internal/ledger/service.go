package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// Service is the ledger domain core. It owns command validation, the
// double-entry append and the balance projection, and drives all three
// through a single storage transaction per transfer.
type Service struct {
	repo           Repository
	validator      *Validator
	appender       *Appender
	projector      *Projector
	allowOverdraft bool
	log            *logger.Logger
}

func NewService(repo Repository, maxTransactionAmount decimal.Decimal, allowOverdraft bool, log *logger.Logger) *Service {
	return &Service{
		repo:           repo,
		validator:      NewValidator(repo, maxTransactionAmount),
		appender:       NewAppender(repo),
		projector:      NewProjector(repo),
		allowOverdraft: allowOverdraft,
		log:            log,
	}
}

// CreateAccount inserts the account and its zero balance in one transaction.
func (s *Service) CreateAccount(ctx context.Context, currency, accountType string, metadata map[string]interface{}) (*Account, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, apperrors.Validation("currency must be a 3-character ISO code")
	}
	if accountType == "" {
		accountType = "standard"
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	account := &Account{
		ID:       uuid.New(),
		Currency: currency,
		Type:     accountType,
		Metadata: metadata,
	}

	txCtx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer s.repo.RollbackTx(txCtx)

	if err := s.repo.CreateAccount(txCtx, account); err != nil {
		return nil, err
	}
	if err := s.repo.InitBalance(txCtx, account.ID, account.Currency); err != nil {
		return nil, err
	}

	if err := s.repo.CommitTx(txCtx); err != nil {
		return nil, err
	}

	s.log.Info("account created", "account_id", account.ID, "currency", account.Currency)
	return account, nil
}

// GetAccount fetches one account.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// GetBalance fetches the projected balance for an account.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (*Balance, error) {
	return s.repo.GetBalance(ctx, accountID)
}

// EventsByAccount returns events touching the account, newest first.
func (s *Service) EventsByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.EventsByAccount(ctx, accountID, limit)
}

// EventsByTransaction returns the event pair for one transaction id.
func (s *Service) EventsByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*Event, error) {
	return s.repo.EventsByTransaction(ctx, transactionID)
}

// Transfer executes a double-entry transfer. Validation failures return a
// result with Success=false and never open a transaction; the funds check
// runs inside the transaction so a concurrent spend cannot slip between
// check and debit. Either both events and both balance updates commit, or
// none of them do.
func (s *Service) Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	errs, err := s.validator.ValidateTransfer(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return &TransferResult{Success: false, Errors: errs}, nil
	}

	txCtx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer s.repo.RollbackTx(txCtx)

	if !s.allowOverdraft {
		balance, err := s.repo.GetBalance(txCtx, req.SourceAccountID)
		if err != nil {
			return nil, err
		}
		if balance.Available.LessThan(req.Amount) {
			return &TransferResult{Success: false, Errors: []string{MsgInsufficientFunds}}, nil
		}
	}

	events, err := s.appender.AppendTransfer(txCtx, req.SourceAccountID, req.DestinationAccountID, req.Amount, req.Currency, req.Metadata)
	if err != nil {
		return nil, err
	}

	balances, err := s.projector.Project(txCtx, events)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CommitTx(txCtx); err != nil {
		return nil, err
	}

	s.log.Info("transfer committed",
		"transaction_id", events[0].TransactionID,
		"source", req.SourceAccountID,
		"destination", req.DestinationAccountID,
		"amount", req.Amount.String(),
		"currency", req.Currency)

	return &TransferResult{
		Success:         true,
		TransactionID:   events[0].TransactionID,
		Events:          events,
		UpdatedBalances: balances,
	}, nil
}

// ReconcileBalance recomputes an account's available balance from its
// settled events and reports whether the projection agrees with it.
func (s *Service) ReconcileBalance(ctx context.Context, accountID uuid.UUID) (projected, derived decimal.Decimal, consistent bool, err error) {
	balance, err := s.repo.GetBalance(ctx, accountID)
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}
	derived, err = s.repo.SumSettledByAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}
	return balance.Available, derived, balance.Available.Equal(derived), nil
}
