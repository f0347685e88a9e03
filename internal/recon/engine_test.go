package recon

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

type fakeJournal struct {
	job     *Job
	entries []LogEntry
	logErr  error

	// failAfterLogs flips the job to FAILED once that many rows have been
	// written, simulating an external cancel mid-run.
	failAfterLogs int
}

func (f *fakeJournal) CreateJob(_ context.Context, date time.Time, source string) (uuid.UUID, error) {
	now := time.Now()
	f.job = &Job{
		ID:         uuid.New(),
		JobDate:    date,
		SourceName: source,
		Status:     StatusRunning,
		StartedAt:  &now,
		CreatedAt:  now,
	}
	return f.job.ID, nil
}

func (f *fakeJournal) FinalizeJob(_ context.Context, jobID uuid.UUID, status Status, totalExternal, totalLedger, matched, unmatched int, errorMessage string) error {
	f.job.Status = status
	f.job.TotalExternalTxns = totalExternal
	f.job.TotalLedgerTxns = totalLedger
	f.job.MatchedCount = matched
	f.job.UnmatchedCount = unmatched
	if errorMessage != "" {
		f.job.ErrorMessage = &errorMessage
	}
	now := time.Now()
	f.job.CompletedAt = &now
	return nil
}

func (f *fakeJournal) LogResult(_ context.Context, date time.Time, source string, result MatchResult) error {
	if f.logErr != nil {
		return f.logErr
	}
	extID := result.ExternalTxnID
	entry := LogEntry{
		ID:            uuid.New(),
		ReconDate:     date,
		SourceName:    source,
		ExternalTxnID: &extID,
		LedgerTxnID:   result.LedgerTxnID,
		Matched:       result.Matched,
		MatchScore:    result.MatchScore,
		Metadata:      result.Metadata,
	}
	if result.MismatchReason != "" {
		reason := result.MismatchReason
		entry.MismatchReason = &reason
	}
	f.entries = append(f.entries, entry)
	if f.failAfterLogs > 0 && len(f.entries) >= f.failAfterLogs {
		f.job.Status = StatusFailed
	}
	return nil
}

func (f *fakeJournal) GetJob(_ context.Context, jobID uuid.UUID) (*Job, error) {
	if f.job == nil || f.job.ID != jobID {
		return nil, apperrors.NotFound("recon job")
	}
	return f.job, nil
}

func (f *fakeJournal) JobStatus(_ context.Context, _ time.Time, _ string) ([]Job, error) {
	if f.job == nil {
		return nil, nil
	}
	return []Job{*f.job}, nil
}

func (f *fakeJournal) Logs(_ context.Context, _ LogFilter) ([]LogEntry, error) {
	return f.entries, nil
}

func (f *fakeJournal) GetSummary(_ context.Context, _ time.Time, _ string) (*Summary, error) {
	return nil, apperrors.NotFound("recon summary")
}

func (f *fakeJournal) MarkJobFailed(_ context.Context, jobID uuid.UUID, errorMessage string) error {
	f.job.Status = StatusFailed
	f.job.ErrorMessage = &errorMessage
	return nil
}

type fakeLedgerReader struct {
	txns []LedgerTxn
	err  error
}

func (f *fakeLedgerReader) TransactionsForDate(_ context.Context, _ time.Time) ([]LedgerTxn, error) {
	return f.txns, f.err
}

type fakeSource struct {
	txns []ExternalTxn
	err  error
}

func (f *fakeSource) Load(_ context.Context, _ time.Time, _ SourceParams) ([]ExternalTxn, error) {
	return f.txns, f.err
}

func (f *fakeSource) ValidateParams(SourceParams) error { return nil }

func newTestEngine(journal *fakeJournal, reader *fakeLedgerReader, src Source) *Engine {
	return NewEngine(
		journal,
		reader,
		map[string]Source{"csv": src},
		DefaultMatcherConfig(),
		logger.New("test", io.Discard),
	)
}

func TestEngineRun_OneMatchedOneUnmatched(t *testing.T) {
	now := time.Now()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	ledger := []LedgerTxn{
		ledgerTxn("100.00", "USD", now),
		ledgerTxn("999.00", "USD", now.Add(-8*time.Hour)),
	}
	external := []ExternalTxn{
		externalTxn("ext-1", "100.00", "USD", now.Add(time.Minute)),
		externalTxn("ext-2", "47.50", "USD", now),
	}

	journal := &fakeJournal{}
	engine := newTestEngine(journal, &fakeLedgerReader{txns: ledger}, &fakeSource{txns: external})

	jobID, err := engine.Run(context.Background(), date, "csv", SourceParams{})
	require.NoError(t, err)
	require.Equal(t, journal.job.ID, jobID)

	assert.Equal(t, StatusCompleted, journal.job.Status)
	assert.Equal(t, 1, journal.job.MatchedCount)
	assert.Equal(t, 1, journal.job.UnmatchedCount)
	assert.Equal(t, 2, journal.job.TotalExternalTxns)
	assert.Equal(t, 2, journal.job.TotalLedgerTxns)
	require.Len(t, journal.entries, 2)

	// Journal rows carry both sides' amounts for the matched entry.
	matchedEntry := journal.entries[0]
	assert.True(t, matchedEntry.Matched)
	assert.Equal(t, "100", matchedEntry.Metadata["ledger_amount"])
	assert.Equal(t, "100", matchedEntry.Metadata["external_amount"])
}

func TestEngineRun_UnknownSource(t *testing.T) {
	engine := newTestEngine(&fakeJournal{}, &fakeLedgerReader{}, &fakeSource{})

	_, err := engine.Run(context.Background(), time.Now(), "sftp", SourceParams{})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestEngineRun_SourceLoadFailureFailsJob(t *testing.T) {
	journal := &fakeJournal{}
	engine := newTestEngine(journal, &fakeLedgerReader{}, &fakeSource{
		err: apperrors.SourceIO("read csv", assert.AnError),
	})

	_, err := engine.Run(context.Background(), time.Now(), "csv", SourceParams{})
	require.Error(t, err)
	require.NotNil(t, journal.job)
	assert.Equal(t, StatusFailed, journal.job.Status)
	require.NotNil(t, journal.job.ErrorMessage)
	assert.Contains(t, *journal.job.ErrorMessage, "read csv")
}

func TestEngineRun_CurrencyMismatchIsUnmatched(t *testing.T) {
	now := time.Now()
	journal := &fakeJournal{}
	engine := newTestEngine(journal,
		&fakeLedgerReader{txns: []LedgerTxn{ledgerTxn("100.00", "EUR", now)}},
		&fakeSource{txns: []ExternalTxn{externalTxn("ext-1", "100.00", "USD", now)}},
	)

	_, err := engine.Run(context.Background(), now, "csv", SourceParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, journal.job.MatchedCount)
	assert.Equal(t, 1, journal.job.UnmatchedCount)
	require.Len(t, journal.entries, 1)
	assert.Contains(t, *journal.entries[0].MismatchReason, "currency USD")
}

func TestEngineRun_ExactWinsTies(t *testing.T) {
	now := time.Now()
	// One candidate matching exactly: exact scores 1.0, fuzzy never runs a
	// higher score, and the journal criteria names the exact matcher.
	journal := &fakeJournal{}
	engine := newTestEngine(journal,
		&fakeLedgerReader{txns: []LedgerTxn{ledgerTxn("55.00", "USD", now)}},
		&fakeSource{txns: []ExternalTxn{externalTxn("ext-1", "55.00", "USD", now)}},
	)

	_, err := engine.Run(context.Background(), now, "csv", SourceParams{})
	require.NoError(t, err)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, "ExactMatcher", journal.entries[0].Metadata["match_criteria"])
}

func TestEngineRun_ExternalCancelAbortsRun(t *testing.T) {
	now := time.Now()
	journal := &fakeJournal{failAfterLogs: 1}
	engine := newTestEngine(journal, &fakeLedgerReader{}, &fakeSource{txns: []ExternalTxn{
		externalTxn("ext-1", "10.00", "USD", now),
		externalTxn("ext-2", "20.00", "USD", now),
		externalTxn("ext-3", "30.00", "USD", now),
	}})

	jobID, err := engine.Run(context.Background(), now, "csv", SourceParams{})
	require.NoError(t, err)
	assert.Equal(t, journal.job.ID, jobID)

	// The status poll between iterations sees FAILED and stops; the job is
	// never finalized over the cancel.
	require.Len(t, journal.entries, 1)
	assert.Equal(t, StatusFailed, journal.job.Status)
	assert.Nil(t, journal.job.CompletedAt)
}

type panickingMatcher struct{}

func (panickingMatcher) Match(ExternalTxn, []LedgerTxn) MatchResult {
	panic("metadata type assertion failed")
}

func TestEngineRun_PanicDegradesRowToProcessingError(t *testing.T) {
	now := time.Now()
	journal := &fakeJournal{}
	engine := newTestEngine(journal,
		&fakeLedgerReader{txns: []LedgerTxn{ledgerTxn("90.00", "USD", now)}},
		&fakeSource{txns: []ExternalTxn{externalTxn("ext-1", "100.00", "USD", now)}},
	)
	// Exact finds nothing for this pair, so the cascade reaches the fuzzy
	// matcher, which blows up.
	engine.fuzzy = panickingMatcher{}

	_, err := engine.Run(context.Background(), now, "csv", SourceParams{})
	require.NoError(t, err)

	require.Len(t, journal.entries, 1)
	entry := journal.entries[0]
	assert.False(t, entry.Matched)
	require.NotNil(t, entry.MismatchReason)
	assert.Equal(t, "Processing error: metadata type assertion failed", *entry.MismatchReason)

	// The row degrades; the run does not abort.
	assert.Equal(t, StatusCompleted, journal.job.Status)
	assert.Equal(t, 1, journal.job.UnmatchedCount)
}

func TestEngineRun_JournalWriteFailureFailsJob(t *testing.T) {
	now := time.Now()
	journal := &fakeJournal{logErr: assert.AnError}
	engine := newTestEngine(journal, &fakeLedgerReader{}, &fakeSource{txns: []ExternalTxn{
		externalTxn("ext-1", "10.00", "USD", now),
	}})

	_, err := engine.Run(context.Background(), now, "csv", SourceParams{})
	require.Error(t, err)

	assert.Empty(t, journal.entries)
	assert.Equal(t, StatusFailed, journal.job.Status)
	require.NotNil(t, journal.job.ErrorMessage)
	assert.Contains(t, *journal.job.ErrorMessage, assert.AnError.Error())
}

func TestEngineValidateSource(t *testing.T) {
	engine := newTestEngine(&fakeJournal{}, &fakeLedgerReader{}, &fakeSource{})

	assert.NoError(t, engine.ValidateSource("csv", SourceParams{}))
	err := engine.ValidateSource("unknown", SourceParams{})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestEngineSources_Sorted(t *testing.T) {
	engine := NewEngine(&fakeJournal{}, &fakeLedgerReader{}, map[string]Source{
		"payment_processor": &fakeSource{},
		"csv":               &fakeSource{},
		"bank_csv":          &fakeSource{},
	}, DefaultMatcherConfig(), logger.New("test", io.Discard))

	assert.Equal(t, []string{"bank_csv", "csv", "payment_processor"}, engine.Sources())
}

func TestEnrich_AmountDiffPreserved(t *testing.T) {
	now := time.Now()
	ledger := ledgerTxn("90.00", "USD", now)
	external := externalTxn("ext-1", "100.00", "USD", now)

	id := ledger.ID
	result := MatchResult{
		ExternalTxnID: "ext-1",
		LedgerTxnID:   &id,
		AmountDiff:    decimal.RequireFromString("10.00"),
	}
	enriched := enrich(result, external, []LedgerTxn{ledger})
	assert.Equal(t, "90", enriched.Metadata["ledger_amount"])
	assert.Equal(t, "100", enriched.Metadata["external_amount"])
	assert.True(t, enriched.AmountDiff.Equal(decimal.NewFromInt(10)))
}
