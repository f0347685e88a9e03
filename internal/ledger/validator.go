package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Validator checks transfer commands against the ruleset. Rules accumulate:
// every violated rule contributes one message to the returned slice, so the
// caller gets the full picture in a single round trip.
type Validator struct {
	repo                 Repository
	maxTransactionAmount decimal.Decimal
}

func NewValidator(repo Repository, maxTransactionAmount decimal.Decimal) *Validator {
	return &Validator{repo: repo, maxTransactionAmount: maxTransactionAmount}
}

// ValidateTransfer returns the list of violated rules, empty when the
// command is acceptable. Sufficient funds is deliberately not checked here;
// it runs inside the transfer transaction to avoid check-then-act races.
func (v *Validator) ValidateTransfer(ctx context.Context, req *TransferRequest) ([]string, error) {
	var errs []string

	if req.Amount.Sign() <= 0 {
		errs = append(errs, MsgAmountNotPositive)
	}
	if req.Amount.GreaterThan(v.maxTransactionAmount) {
		errs = append(errs, fmt.Sprintf(MsgAmountExceedsLimitFmt, v.maxTransactionAmount.String()))
	}
	if req.SourceAccountID == req.DestinationAccountID {
		errs = append(errs, MsgSameAccount)
	}

	source, err := v.repo.GetAccount(ctx, req.SourceAccountID)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		errs = append(errs, MsgSourceMissing)
	}

	destination, err := v.repo.GetAccount(ctx, req.DestinationAccountID)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		errs = append(errs, MsgDestinationMissing)
	}

	if source != nil && destination != nil {
		if source.Currency != req.Currency {
			errs = append(errs, MsgSourceCurrency)
		}
		if destination.Currency != req.Currency {
			errs = append(errs, MsgDestinationCurrency)
		}
	}

	return errs, nil
}
