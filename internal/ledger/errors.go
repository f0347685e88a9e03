package ledger

import "github.com/ledgerkit/ledgerkit/internal/shared/apperrors"

// Validation rule messages. Transfer validation accumulates every violated
// rule; these strings surface verbatim in the transfer result.
const (
	MsgAmountNotPositive    = "Amount must be positive"
	MsgSameAccount          = "Source and destination accounts must be different"
	MsgSourceMissing        = "Source account does not exist"
	MsgDestinationMissing   = "Destination account does not exist"
	MsgSourceCurrency       = "Transfer currency doesn't match source account currency"
	MsgDestinationCurrency  = "Transfer currency doesn't match destination account currency"
	MsgInsufficientFunds    = "Insufficient funds"

	// Format string; the limit is rendered with decimal.Decimal.String.
	MsgAmountExceedsLimitFmt = "Amount exceeds maximum limit of %s"
)

func isNotFound(err error) bool {
	return apperrors.KindOf(err) == apperrors.KindNotFound
}
