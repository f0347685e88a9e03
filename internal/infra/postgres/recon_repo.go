package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerkit/ledgerkit/internal/recon"
	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
)

// ReconRepository implements recon.Journal and recon.LedgerReader on
// postgres. Journal writes run outside the ledger's transactions; a recon
// run never mutates ledger state.
type ReconRepository struct {
	pool *DB
	sb   sq.StatementBuilderType
}

func NewReconRepository(pool *DB) *ReconRepository {
	return &ReconRepository{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// CreateJob upserts on the (job_date, source_name) unique key. A rerun for
// the same pair reuses the row: status back to RUNNING, counters reset.
func (r *ReconRepository) CreateJob(ctx context.Context, date time.Time, source string) (uuid.UUID, error) {
	query := `
		INSERT INTO recon_jobs (id, job_date, source_name, status, started_at, updated_at)
		VALUES ($1, $2, $3, 'RUNNING', NOW(), NOW())
		ON CONFLICT (job_date, source_name) DO UPDATE SET
			status = 'RUNNING',
			started_at = NOW(),
			completed_at = NULL,
			error_message = NULL,
			matched_count = 0,
			unmatched_count = 0,
			total_external_txns = 0,
			total_ledger_txns = 0,
			updated_at = NOW()
		RETURNING id
	`

	var jobID uuid.UUID
	err := r.pool.QueryRow(ctx, query, uuid.New(), date, source).Scan(&jobID)
	if err != nil {
		return uuid.Nil, apperrors.Database("failed to create recon job", err)
	}
	return jobID, nil
}

// FinalizeJob records the terminal status and tallies
func (r *ReconRepository) FinalizeJob(ctx context.Context, jobID uuid.UUID, status recon.Status, totalExternal, totalLedger, matched, unmatched int, errorMessage string) error {
	query := `
		UPDATE recon_jobs SET
			status = $2,
			total_external_txns = $3,
			total_ledger_txns = $4,
			matched_count = $5,
			unmatched_count = $6,
			error_message = NULLIF($7, ''),
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, jobID, string(status), totalExternal, totalLedger, matched, unmatched, errorMessage)
	if err != nil {
		return apperrors.Database("failed to finalize recon job", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("recon job")
	}
	return nil
}

// MarkJobFailed sets FAILED without touching the tallies; a running
// orchestrator polls for this between iterations.
func (r *ReconRepository) MarkJobFailed(ctx context.Context, jobID uuid.UUID, errorMessage string) error {
	query := `
		UPDATE recon_jobs SET
			status = 'FAILED',
			error_message = $2,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, jobID, errorMessage)
	if err != nil {
		return apperrors.Database("failed to mark recon job failed", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("recon job")
	}
	return nil
}

// LogResult appends one journal row for a match outcome
func (r *ReconRepository) LogResult(ctx context.Context, date time.Time, source string, result recon.MatchResult) error {
	metadataJSON, err := json.Marshal(result.Metadata)
	if err != nil {
		return apperrors.Internal("marshal recon log metadata", err)
	}

	var ledgerAmount, externalAmount, currency interface{}
	if v, ok := result.Metadata["ledger_amount"]; ok {
		ledgerAmount = v
	}
	if v, ok := result.Metadata["external_amount"]; ok {
		externalAmount = v
	}
	if v, ok := result.Metadata["external_currency"]; ok {
		currency = v
	}

	query := `
		INSERT INTO recon_logs (recon_date, source_name, external_txn_id, ledger_txn_id, matched, mismatch_reason, match_score, amount_difference, ledger_amount, external_amount, currency, timestamp_diff_seconds, metadata)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		date,
		source,
		result.ExternalTxnID,
		result.LedgerTxnID,
		result.Matched,
		result.MismatchReason,
		result.MatchScore,
		result.AmountDiff,
		ledgerAmount,
		externalAmount,
		currency,
		result.TimestampDiffSeconds,
		metadataJSON,
	)
	if err != nil {
		return apperrors.Database("failed to append recon log", err)
	}
	return nil
}

const jobColumns = `id, job_date, source_name, status, total_external_txns, total_ledger_txns, matched_count, unmatched_count, error_message, started_at, completed_at, created_at, updated_at`

// GetJob fetches one job by id
func (r *ReconRepository) GetJob(ctx context.Context, jobID uuid.UUID) (*recon.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM recon_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("recon job")
		}
		return nil, apperrors.Database("failed to get recon job", err)
	}
	return job, nil
}

// JobStatus lists jobs for a date, optionally narrowed to one source
func (r *ReconRepository) JobStatus(ctx context.Context, date time.Time, source string) ([]recon.Job, error) {
	builder := r.sb.Select(jobColumns).
		From("recon_jobs").
		Where(sq.Eq{"job_date": date}).
		OrderBy("source_name ASC")
	if source != "" {
		builder = builder.Where(sq.Eq{"source_name": source})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, apperrors.Internal("build job status query", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Database("failed to query recon jobs", err)
	}
	defer rows.Close()

	var jobs []recon.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.Database("failed to scan recon job", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("error iterating recon jobs", err)
	}
	return jobs, nil
}

// Logs queries journal rows under the given filter
func (r *ReconRepository) Logs(ctx context.Context, filter recon.LogFilter) ([]recon.LogEntry, error) {
	builder := r.sb.Select(
		"id", "recon_date", "source_name", "external_txn_id", "ledger_txn_id",
		"matched", "mismatch_reason", "match_score", "amount_difference",
		"ledger_amount", "external_amount", "currency", "timestamp_diff_seconds",
		"metadata", "created_at",
	).
		From("recon_logs").
		Where(sq.Eq{"recon_date": filter.Date}).
		OrderBy("created_at DESC")

	if filter.Source != nil {
		builder = builder.Where(sq.Eq{"source_name": *filter.Source})
	}
	if filter.Matched != nil {
		builder = builder.Where(sq.Eq{"matched": *filter.Matched})
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	builder = builder.Limit(uint64(limit))
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, apperrors.Internal("build recon logs query", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Database("failed to query recon logs", err)
	}
	defer rows.Close()

	var entries []recon.LogEntry
	for rows.Next() {
		var entry recon.LogEntry
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.ReconDate,
			&entry.SourceName,
			&entry.ExternalTxnID,
			&entry.LedgerTxnID,
			&entry.Matched,
			&entry.MismatchReason,
			&entry.MatchScore,
			&entry.AmountDifference,
			&entry.LedgerAmount,
			&entry.ExternalAmount,
			&entry.Currency,
			&entry.TimestampDiffSeconds,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Database("failed to scan recon log", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, apperrors.Internal("unmarshal recon log metadata", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("error iterating recon logs", err)
	}
	return entries, nil
}

// GetSummary aggregates the journal for one (date, source)
func (r *ReconRepository) GetSummary(ctx context.Context, date time.Time, source string) (*recon.Summary, error) {
	query := `
		SELECT
			COUNT(*) AS total_logs,
			COUNT(*) FILTER (WHERE matched = true) AS matched_count,
			COUNT(*) FILTER (WHERE matched = false) AS unmatched_count,
			COALESCE(AVG(match_score), 0) AS avg_match_score,
			COALESCE(SUM(ABS(amount_difference)), 0) AS total_amount_variance,
			COUNT(DISTINCT external_txn_id) AS unique_external_txns,
			COUNT(DISTINCT ledger_txn_id) AS unique_ledger_txns
		FROM recon_logs
		WHERE recon_date = $1 AND source_name = $2
	`

	summary := recon.Summary{JobDate: date, SourceName: source}
	err := r.pool.QueryRow(ctx, query, date, source).Scan(
		&summary.TotalLogs,
		&summary.MatchedCount,
		&summary.UnmatchedCount,
		&summary.AvgMatchScore,
		&summary.TotalAmountVariance,
		&summary.UniqueExternalTxns,
		&summary.UniqueLedgerTxns,
	)
	if err != nil {
		return nil, apperrors.Database("failed to get recon summary", err)
	}
	if summary.TotalLogs == 0 {
		return nil, apperrors.NotFound("recon summary")
	}
	return &summary, nil
}

// TransactionsForDate reads the ledger event log for one business day; this
// is the recon.LedgerReader implementation.
func (r *ReconRepository) TransactionsForDate(ctx context.Context, date time.Time) ([]recon.LedgerTxn, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT id, transaction_id, amount, currency, timestamp, event_type, source_account_id, destination_account_id, metadata
		FROM ledger_events
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC
	`

	rows, err := r.pool.Query(ctx, query, dayStart, dayEnd)
	if err != nil {
		return nil, apperrors.Database("failed to query ledger transactions", err)
	}
	defer rows.Close()

	var txns []recon.LedgerTxn
	for rows.Next() {
		var txn recon.LedgerTxn
		var metadataJSON []byte

		err := rows.Scan(
			&txn.ID,
			&txn.TransactionID,
			&txn.Amount,
			&txn.Currency,
			&txn.Timestamp,
			&txn.EventType,
			&txn.SourceAccountID,
			&txn.DestinationAccountID,
			&metadataJSON,
		)
		if err != nil {
			return nil, apperrors.Database("failed to scan ledger transaction", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &txn.Metadata); err != nil {
				return nil, apperrors.Internal("unmarshal ledger transaction metadata", err)
			}
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("error iterating ledger transactions", err)
	}
	return txns, nil
}

func scanJob(row pgx.Row) (*recon.Job, error) {
	var job recon.Job
	var status string
	err := row.Scan(
		&job.ID,
		&job.JobDate,
		&job.SourceName,
		&status,
		&job.TotalExternalTxns,
		&job.TotalLedgerTxns,
		&job.MatchedCount,
		&job.UnmatchedCount,
		&job.ErrorMessage,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = recon.Status(status)
	return &job, nil
}
