package recon

import (
	"fmt"
	"time"
)

// ExactMatcher matches by cross-reference id or by exact amount, currency
// and timestamp within tolerance. A successful exact match scores 1.0.
type ExactMatcher struct {
	cfg MatcherConfig
}

func NewExactMatcher(cfg MatcherConfig) *ExactMatcher {
	return &ExactMatcher{cfg: cfg}
}

// Match evaluates one external txn against a currency-filtered candidate
// list. Decision order: cross-reference id, then unique amount+timestamp,
// then a validation pass where the first failing check names the reason.
func (m *ExactMatcher) Match(external ExternalTxn, candidates []LedgerTxn) MatchResult {
	if ledger := m.findIDMatch(external, candidates); ledger != nil {
		return m.validate(external, *ledger)
	}

	amountMatches := m.findAmountMatches(external, candidates)
	switch len(amountMatches) {
	case 1:
		return m.validate(external, amountMatches[0])
	case 0:
		return newMatchResult(external, nil, false, 0, "No exact match found", "ExactMatcher")
	default:
		return newMatchResult(external, nil, false, 0, "Multiple exact amount matches found", "ExactMatcher")
	}
}

func (m *ExactMatcher) findIDMatch(external ExternalTxn, candidates []LedgerTxn) *LedgerTxn {
	for i := range candidates {
		ledger := &candidates[i]
		if ref, ok := ledger.Metadata["external_txn_id"]; ok && fmt.Sprint(ref) == external.TxnID {
			return ledger
		}
		if ref, ok := external.Metadata["ledger_txn_id"]; ok && fmt.Sprint(ref) == ledger.ID.String() {
			return ledger
		}
	}
	return nil
}

func (m *ExactMatcher) findAmountMatches(external ExternalTxn, candidates []LedgerTxn) []LedgerTxn {
	tolerance := time.Duration(m.cfg.TimestampToleranceSeconds) * time.Second
	var matches []LedgerTxn
	for _, ledger := range candidates {
		if !ledger.Amount.Equal(external.Amount) || ledger.Currency != external.Currency {
			continue
		}
		if absDuration(ledger.Timestamp.Sub(external.Timestamp)) <= tolerance {
			matches = append(matches, ledger)
		}
	}
	return matches
}

func (m *ExactMatcher) validate(external ExternalTxn, ledger LedgerTxn) MatchResult {
	if !external.Amount.Equal(ledger.Amount) {
		reason := fmt.Sprintf("Amount mismatch: external=%s, ledger=%s", external.Amount, ledger.Amount)
		return newMatchResult(external, &ledger, false, 0, reason, "ExactMatcher")
	}
	if external.Currency != ledger.Currency {
		reason := fmt.Sprintf("Currency mismatch: external=%s, ledger=%s", external.Currency, ledger.Currency)
		return newMatchResult(external, &ledger, false, 0, reason, "ExactMatcher")
	}
	diff := absDuration(ledger.Timestamp.Sub(external.Timestamp))
	if diff > time.Duration(m.cfg.TimestampToleranceSeconds)*time.Second {
		reason := fmt.Sprintf("Timestamp outside tolerance: diff=%.0fs", diff.Seconds())
		return newMatchResult(external, &ledger, false, 0, reason, "ExactMatcher")
	}
	return newMatchResult(external, &ledger, true, 1.0, "", "ExactMatcher")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// newMatchResult builds the common result shape shared by both matchers.
// Diffs are external minus ledger.
func newMatchResult(external ExternalTxn, ledger *LedgerTxn, matched bool, score float64, reason, criteria string) MatchResult {
	result := MatchResult{
		Matched:        matched,
		MatchScore:     score,
		MismatchReason: reason,
		ExternalTxnID:  external.TxnID,
		Metadata: map[string]interface{}{
			"external_description": external.Description,
			"match_criteria":       criteria,
		},
	}
	if ledger != nil {
		id := ledger.ID
		result.LedgerTxnID = &id
		result.AmountDiff = external.Amount.Sub(ledger.Amount)
		result.TimestampDiffSeconds = int(external.Timestamp.Sub(ledger.Timestamp).Seconds())
		result.Metadata["ledger_event_type"] = ledger.EventType
	}
	return result
}
