package recon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// matcher evaluates one external txn against a candidate list.
type matcher interface {
	Match(external ExternalTxn, candidates []LedgerTxn) MatchResult
}

// Engine orchestrates a reconciliation run: load both sides, match every
// external transaction, journal the outcomes, finalise the job.
type Engine struct {
	journal Journal
	ledger  LedgerReader
	sources map[string]Source
	exact   matcher
	fuzzy   matcher
	log     *logger.Logger
}

func NewEngine(journal Journal, ledger LedgerReader, sources map[string]Source, cfg MatcherConfig, log *logger.Logger) *Engine {
	return &Engine{
		journal: journal,
		ledger:  ledger,
		sources: sources,
		exact:   NewExactMatcher(cfg),
		fuzzy:   NewFuzzyMatcher(cfg),
		log:     log,
	}
}

// Sources lists the registered source tags, sorted for stable output.
func (e *Engine) Sources() []string {
	names := make([]string, 0, len(e.sources))
	for name := range e.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateSource checks that the source tag exists and its params are
// sufficient, without performing any I/O.
func (e *Engine) ValidateSource(sourceName string, params SourceParams) error {
	source, ok := e.sources[sourceName]
	if !ok {
		return apperrors.Validation(fmt.Sprintf("unknown source: %s", sourceName))
	}
	return source.ValidateParams(params)
}

// CancelJob marks a job FAILED. A run in flight notices between iterations
// and stops; the current row may still be written.
func (e *Engine) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	return e.journal.MarkJobFailed(ctx, jobID, "Job cancelled by user")
}

// Run reconciles one (date, source) pair and returns the job id. The job
// row is upserted to RUNNING first, so a crash leaves a visible trace. Load
// failures fail the whole job; per-row matching failures degrade that row
// to unmatched and the run continues.
func (e *Engine) Run(ctx context.Context, date time.Time, sourceName string, params SourceParams) (uuid.UUID, error) {
	source, ok := e.sources[sourceName]
	if !ok {
		return uuid.Nil, apperrors.Validation(fmt.Sprintf("unknown source: %s", sourceName))
	}
	if err := source.ValidateParams(params); err != nil {
		return uuid.Nil, err
	}

	jobID, err := e.journal.CreateJob(ctx, date, sourceName)
	if err != nil {
		return uuid.Nil, err
	}

	log := e.log.WithField("job_id", jobID).WithField("source", sourceName).WithField("date", date.Format("2006-01-02"))
	log.Info("reconciliation job started")

	externalTxns, ledgerTxns, err := e.loadBothSides(ctx, source, date, params)
	if err != nil {
		log.WithError(err).Error("reconciliation load failed")
		if ferr := e.journal.FinalizeJob(ctx, jobID, StatusFailed, 0, 0, 0, 0, err.Error()); ferr != nil {
			log.WithError(ferr).Error("failed to mark job FAILED")
		}
		return jobID, err
	}
	log.Info("loaded transactions", "external", len(externalTxns), "ledger", len(ledgerTxns))

	matched, unmatched := 0, 0
	for i, external := range externalTxns {
		// Cooperative cancellation: an external FAILED write stops the run.
		if i > 0 {
			if cancelled, cerr := e.jobCancelled(ctx, jobID); cerr != nil {
				log.WithError(cerr).Warn("job status poll failed")
			} else if cancelled {
				log.Warn("job cancelled externally, aborting run")
				return jobID, nil
			}
		}

		result := e.matchOne(external, ledgerTxns)
		result = enrich(result, external, ledgerTxns)

		if err := e.journal.LogResult(ctx, date, sourceName, result); err != nil {
			log.WithError(err).Error("journal write failed")
			if ferr := e.journal.FinalizeJob(ctx, jobID, StatusFailed, len(externalTxns), len(ledgerTxns), matched, unmatched, err.Error()); ferr != nil {
				log.WithError(ferr).Error("failed to mark job FAILED")
			}
			return jobID, err
		}

		if result.Matched {
			matched++
		} else {
			unmatched++
		}
	}

	if err := e.journal.FinalizeJob(ctx, jobID, StatusCompleted, len(externalTxns), len(ledgerTxns), matched, unmatched, ""); err != nil {
		return jobID, err
	}

	log.Info("reconciliation job completed", "matched", matched, "unmatched", unmatched)
	return jobID, nil
}

func (e *Engine) loadBothSides(ctx context.Context, source Source, date time.Time, params SourceParams) ([]ExternalTxn, []LedgerTxn, error) {
	externalTxns, err := source.Load(ctx, date, params)
	if err != nil {
		return nil, nil, err
	}
	ledgerTxns, err := e.ledger.TransactionsForDate(ctx, date)
	if err != nil {
		return nil, nil, err
	}
	return externalTxns, ledgerTxns, nil
}

func (e *Engine) jobCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	job, err := e.journal.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == StatusFailed, nil
}

// matchOne filters by currency, tries exact then fuzzy, and keeps the
// better score with exact winning ties. A panic while scoring degrades the
// row to unmatched instead of aborting the run.
func (e *Engine) matchOne(external ExternalTxn, ledgerTxns []LedgerTxn) (result MatchResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("matching panic contained", "external_txn_id", external.TxnID, "panic", r)
			result = MatchResult{
				Matched:        false,
				MatchScore:     0,
				MismatchReason: fmt.Sprintf("Processing error: %v", r),
				ExternalTxnID:  external.TxnID,
				AmountDiff:     decimal.Zero,
			}
		}
	}()

	var candidates []LedgerTxn
	for _, txn := range ledgerTxns {
		if txn.Currency == external.Currency {
			candidates = append(candidates, txn)
		}
	}
	if len(candidates) == 0 {
		return MatchResult{
			Matched:        false,
			MatchScore:     0,
			MismatchReason: fmt.Sprintf("No ledger transactions found for currency %s", external.Currency),
			ExternalTxnID:  external.TxnID,
			AmountDiff:     decimal.Zero,
		}
	}

	exactResult := e.exact.Match(external, candidates)
	if exactResult.Matched {
		return exactResult
	}
	fuzzyResult := e.fuzzy.Match(external, candidates)
	if fuzzyResult.MatchScore > exactResult.MatchScore {
		return fuzzyResult
	}
	return exactResult
}

// enrich copies amounts, currencies and timestamps of both sides into the
// result metadata so journal rows are self-describing.
func enrich(result MatchResult, external ExternalTxn, ledgerTxns []LedgerTxn) MatchResult {
	if result.Metadata == nil {
		result.Metadata = map[string]interface{}{}
	}
	result.Metadata["external_amount"] = external.Amount.String()
	result.Metadata["external_currency"] = external.Currency
	result.Metadata["external_timestamp"] = external.Timestamp.Format(time.RFC3339)
	result.Metadata["external_description"] = external.Description

	if result.LedgerTxnID != nil {
		for _, txn := range ledgerTxns {
			if txn.ID == *result.LedgerTxnID {
				result.Metadata["ledger_amount"] = txn.Amount.String()
				result.Metadata["ledger_currency"] = txn.Currency
				result.Metadata["ledger_timestamp"] = txn.Timestamp.Format(time.RFC3339)
				result.Metadata["ledger_event_type"] = txn.EventType
				break
			}
		}
	}
	return result
}
