package recon

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FuzzyMatcher scores every candidate with a weighted similarity and keeps
// the best. Matched iff the best score reaches the configured threshold.
type FuzzyMatcher struct {
	cfg MatcherConfig
}

func NewFuzzyMatcher(cfg MatcherConfig) *FuzzyMatcher {
	return &FuzzyMatcher{cfg: cfg}
}

// Match scores each candidate and selects the highest.
func (m *FuzzyMatcher) Match(external ExternalTxn, candidates []LedgerTxn) MatchResult {
	var best *LedgerTxn
	bestScore := 0.0

	for i := range candidates {
		score := m.Score(external, candidates[i])
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}

	if bestScore >= m.cfg.MinMatchScore {
		return newMatchResult(external, best, true, bestScore, "", "FuzzyMatcher")
	}
	reason := fmt.Sprintf("Best match score %.3f below threshold %v", bestScore, m.cfg.MinMatchScore)
	return newMatchResult(external, best, false, bestScore, reason, "FuzzyMatcher")
}

// Score combines amount, timestamp and metadata similarity under the
// configured weights. Currency acts as a gate: a mismatch scores zero
// regardless of everything else.
func (m *FuzzyMatcher) Score(external ExternalTxn, ledger LedgerTxn) float64 {
	if external.Currency != ledger.Currency {
		return 0.0
	}
	return m.amountSimilarity(external.Amount, ledger.Amount)*m.cfg.AmountWeight +
		m.timestampSimilarity(external, ledger)*m.cfg.TimestampWeight +
		m.metadataSimilarity(external, ledger)*m.cfg.MetadataWeight
}

func (m *FuzzyMatcher) amountSimilarity(external, ledger decimal.Decimal) float64 {
	if external.Equal(ledger) {
		return 1.0
	}
	avg := external.Add(ledger).Div(decimal.NewFromInt(2))
	if avg.IsZero() {
		return 0.0
	}
	diffPercent, _ := external.Sub(ledger).Abs().Div(avg).Float64()
	tolerance := m.cfg.AmountTolerancePercent / 100

	if diffPercent <= tolerance {
		// Linear decay from 1.0 to 0.5 across the tolerance band.
		return 1.0 - (diffPercent/tolerance)*0.5
	}
	score := 0.5 * (1.0 - diffPercent)
	if score < 0 {
		return 0.0
	}
	return score
}

func (m *FuzzyMatcher) timestampSimilarity(external ExternalTxn, ledger LedgerTxn) float64 {
	diff := absDuration(external.Timestamp.Sub(ledger.Timestamp)).Seconds()
	tolerance := float64(m.cfg.TimestampToleranceSeconds)

	if diff <= tolerance {
		return 1.0 - (diff/tolerance)*0.5
	}
	maxDiff := tolerance * 10
	if diff > maxDiff {
		return 0.0
	}
	return 0.5 * (1.0 - (diff-tolerance)/(maxDiff-tolerance))
}

// metadataSimilarity collects every comparable signal into a [0,1] score
// aggregated with a quadratic-weighted mean, which biases toward the
// strongest signals. No signals at all yields a neutral 0.5.
func (m *FuzzyMatcher) metadataSimilarity(external ExternalTxn, ledger LedgerTxn) float64 {
	var scores []float64

	if external.Description != "" {
		if desc, ok := ledger.Metadata["description"]; ok {
			if ledgerDesc := fmt.Sprint(desc); ledgerDesc != "" {
				scores = append(scores, stringSimilarity(external.Description, ledgerDesc))
			}
		}
	}

	for key, extRaw := range external.Metadata {
		ledgerRaw, ok := ledger.Metadata[key]
		if !ok {
			continue
		}
		extValue := strings.ToLower(strings.TrimSpace(fmt.Sprint(extRaw)))
		ledgerValue := strings.ToLower(strings.TrimSpace(fmt.Sprint(ledgerRaw)))
		if extValue == "" || ledgerValue == "" {
			continue
		}
		if extValue == ledgerValue {
			scores = append(scores, 1.0)
		} else {
			scores = append(scores, stringSimilarity(extValue, ledgerValue))
		}
	}

	if ref := m.referenceSimilarity(external, ledger); ref > 0 {
		scores = append(scores, ref)
	}

	if len(scores) == 0 {
		return 0.5
	}

	var weightedSum, weightSum float64
	for _, s := range scores {
		weightedSum += s * s
		weightSum += s
	}
	if weightSum == 0 {
		return 0.0
	}
	return weightedSum / weightSum
}

// referenceSimilarity cross-checks transaction ids between the two sides.
// A metadata value under any "ref" or "id" key equal to the opposite side's
// id is conclusive; the ledger id appearing inside the external description
// is strong but not conclusive.
func (m *FuzzyMatcher) referenceSimilarity(external ExternalTxn, ledger LedgerTxn) float64 {
	extID := strings.ToLower(external.TxnID)
	for key, value := range ledger.Metadata {
		lowered := strings.ToLower(key)
		if strings.Contains(lowered, "ref") || strings.Contains(lowered, "id") {
			if strings.ToLower(fmt.Sprint(value)) == extID {
				return 1.0
			}
		}
	}

	ledgerID := strings.ToLower(ledger.ID.String())
	for key, value := range external.Metadata {
		lowered := strings.ToLower(key)
		if strings.Contains(lowered, "ref") || strings.Contains(lowered, "id") {
			if strings.ToLower(fmt.Sprint(value)) == ledgerID {
				return 1.0
			}
		}
	}

	if external.Description != "" {
		desc := strings.ToLower(external.Description)
		if strings.Contains(desc, ledgerID) {
			return 0.8
		}
		if strings.Contains(desc, strings.ToLower(ledger.TransactionID.String())) {
			return 0.8
		}
	}

	return 0.0
}
