package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkit/ledgerkit/internal/recon"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// SummaryCache is the optional cache in front of the summary query.
type SummaryCache interface {
	Get(ctx context.Context, date time.Time, source string) (*recon.Summary, bool, error)
	Set(ctx context.Context, summary *recon.Summary) error
	Invalidate(ctx context.Context, date time.Time, source string) error
}

// ReconHandler serves the reconciliation HTTP surface
type ReconHandler struct {
	engine  *recon.Engine
	journal recon.Journal
	cache   SummaryCache // nil disables caching
	logger  *logger.Logger
}

func NewReconHandler(engine *recon.Engine, journal recon.Journal, cache SummaryCache, log *logger.Logger) *ReconHandler {
	return &ReconHandler{engine: engine, journal: journal, cache: cache, logger: log}
}

// RunReconRequest is the POST /recon/run body
type RunReconRequest struct {
	Date      string `json:"date"`
	Source    string `json:"source"`
	FilePath  string `json:"file_path,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
}

// RunReconResponse reports the finished run. The run is synchronous: the
// caller blocks until the job terminates.
type RunReconResponse struct {
	JobID   uuid.UUID `json:"job_id"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

func (req *RunReconRequest) params() recon.SourceParams {
	return recon.SourceParams{
		FilePath:  req.FilePath,
		BaseURL:   req.BaseURL,
		AuthToken: req.AuthToken,
	}
}

func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

// RunRecon handles POST /recon/run
func (h *ReconHandler) RunRecon(w http.ResponseWriter, r *http.Request) {
	var req RunReconRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	if h.cache != nil {
		// A rerun invalidates the old tallies before they can be served.
		if err := h.cache.Invalidate(r.Context(), date, req.Source); err != nil {
			h.logger.WithError(err).Warn("summary cache invalidation failed")
		}
	}

	jobID, err := h.engine.Run(r.Context(), date, req.Source, req.params())
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, RunReconResponse{
		JobID:   jobID,
		Status:  string(recon.StatusCompleted),
		Message: "Reconciliation completed",
	}, http.StatusOK)
}

// JobResponse is the wire shape of a recon job row
type JobResponse struct {
	ID                uuid.UUID  `json:"id"`
	JobDate           string     `json:"job_date"`
	SourceName        string     `json:"source_name"`
	Status            string     `json:"status"`
	TotalExternalTxns int        `json:"total_external_txns"`
	TotalLedgerTxns   int        `json:"total_ledger_txns"`
	MatchedCount      int        `json:"matched_count"`
	UnmatchedCount    int        `json:"unmatched_count"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// GetStatus handles GET /recon/status/{date}?source=…
func (h *ReconHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(chi.URLParam(r, "date"))
	if err != nil {
		respondError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	jobs, err := h.journal.JobStatus(r.Context(), date, r.URL.Query().Get("source"))
	if err != nil {
		respondAppError(w, err)
		return
	}

	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobResponse(job))
	}
	respondJSON(w, out, http.StatusOK)
}

func toJobResponse(job recon.Job) JobResponse {
	return JobResponse{
		ID:                job.ID,
		JobDate:           job.JobDate.Format("2006-01-02"),
		SourceName:        job.SourceName,
		Status:            string(job.Status),
		TotalExternalTxns: job.TotalExternalTxns,
		TotalLedgerTxns:   job.TotalLedgerTxns,
		MatchedCount:      job.MatchedCount,
		UnmatchedCount:    job.UnmatchedCount,
		ErrorMessage:      job.ErrorMessage,
		StartedAt:         job.StartedAt,
		CompletedAt:       job.CompletedAt,
	}
}

// LogEntryResponse is the wire shape of a journal row
type LogEntryResponse struct {
	ID                   uuid.UUID              `json:"id"`
	ReconDate            string                 `json:"recon_date"`
	SourceName           string                 `json:"source_name"`
	ExternalTxnID        *string                `json:"external_txn_id"`
	LedgerTxnID          *uuid.UUID             `json:"ledger_txn_id"`
	Matched              bool                   `json:"matched"`
	MismatchReason       *string                `json:"mismatch_reason,omitempty"`
	MatchScore           float64                `json:"match_score"`
	AmountDifference     decimal.Decimal        `json:"amount_difference"`
	LedgerAmount         *decimal.Decimal       `json:"ledger_amount,omitempty"`
	ExternalAmount       *decimal.Decimal       `json:"external_amount,omitempty"`
	Currency             *string                `json:"currency,omitempty"`
	TimestampDiffSeconds *int                   `json:"timestamp_diff_seconds,omitempty"`
	Metadata             map[string]interface{} `json:"metadata"`
	CreatedAt            time.Time              `json:"created_at"`
}

// GetLogs handles GET /recon/logs?date=…&source=…&matched=…&limit=…&offset=…
func (h *ReconHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	date, err := parseDate(query.Get("date"))
	if err != nil {
		respondError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	filter := recon.LogFilter{Date: date}
	if source := query.Get("source"); source != "" {
		filter.Source = &source
	}
	if raw := query.Get("matched"); raw != "" {
		matched, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, "matched must be a boolean", http.StatusBadRequest)
			return
		}
		filter.Matched = &matched
	}
	if raw := query.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil || filter.Limit <= 0 {
			respondError(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if filter.Offset, err = strconv.Atoi(raw); err != nil || filter.Offset < 0 {
			respondError(w, "invalid offset", http.StatusBadRequest)
			return
		}
	}

	entries, err := h.journal.Logs(r.Context(), filter)
	if err != nil {
		respondAppError(w, err)
		return
	}

	out := make([]LogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, LogEntryResponse{
			ID:                   entry.ID,
			ReconDate:            entry.ReconDate.Format("2006-01-02"),
			SourceName:           entry.SourceName,
			ExternalTxnID:        entry.ExternalTxnID,
			LedgerTxnID:          entry.LedgerTxnID,
			Matched:              entry.Matched,
			MismatchReason:       entry.MismatchReason,
			MatchScore:           entry.MatchScore,
			AmountDifference:     entry.AmountDifference,
			LedgerAmount:         entry.LedgerAmount,
			ExternalAmount:       entry.ExternalAmount,
			Currency:             entry.Currency,
			TimestampDiffSeconds: entry.TimestampDiffSeconds,
			Metadata:             entry.Metadata,
			CreatedAt:            entry.CreatedAt,
		})
	}
	respondJSON(w, out, http.StatusOK)
}

// SummaryResponse is the wire shape of the journal aggregate
type SummaryResponse struct {
	JobDate             string          `json:"job_date"`
	SourceName          string          `json:"source_name"`
	TotalLogs           int             `json:"total_logs"`
	MatchedCount        int             `json:"matched_count"`
	UnmatchedCount      int             `json:"unmatched_count"`
	MatchRate           float64         `json:"match_rate"`
	AvgMatchScore       float64         `json:"avg_match_score"`
	TotalAmountVariance decimal.Decimal `json:"total_amount_variance"`
	UniqueExternalTxns  int             `json:"unique_external_txns"`
	UniqueLedgerTxns    int             `json:"unique_ledger_txns"`
}

// GetSummary handles GET /recon/summary/{date}/{source}
func (h *ReconHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(chi.URLParam(r, "date"))
	if err != nil {
		respondError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	source := chi.URLParam(r, "source")

	var summary *recon.Summary
	if h.cache != nil {
		cached, hit, err := h.cache.Get(r.Context(), date, source)
		if err != nil {
			h.logger.WithError(err).Warn("summary cache read failed")
		} else if hit {
			summary = cached
		}
	}

	if summary == nil {
		summary, err = h.journal.GetSummary(r.Context(), date, source)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if h.cache != nil {
			if err := h.cache.Set(r.Context(), summary); err != nil {
				h.logger.WithError(err).Warn("summary cache write failed")
			}
		}
	}

	matchRate := 0.0
	if summary.TotalLogs > 0 {
		matchRate = float64(summary.MatchedCount) / float64(summary.TotalLogs)
	}

	respondJSON(w, SummaryResponse{
		JobDate:             summary.JobDate.Format("2006-01-02"),
		SourceName:          summary.SourceName,
		TotalLogs:           summary.TotalLogs,
		MatchedCount:        summary.MatchedCount,
		UnmatchedCount:      summary.UnmatchedCount,
		MatchRate:           matchRate,
		AvgMatchScore:       summary.AvgMatchScore,
		TotalAmountVariance: summary.TotalAmountVariance,
		UniqueExternalTxns:  summary.UniqueExternalTxns,
		UniqueLedgerTxns:    summary.UniqueLedgerTxns,
	}, http.StatusOK)
}

// GetSources handles GET /recon/sources
func (h *ReconHandler) GetSources(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string][]string{"sources": h.engine.Sources()}, http.StatusOK)
}

// CancelJob handles DELETE /recon/jobs/{id}
func (h *ReconHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, "invalid job id", http.StatusBadRequest)
		return
	}

	if err := h.engine.CancelJob(r.Context(), jobID); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, map[string]string{"message": "Job cancelled"}, http.StatusOK)
}

// ValidateSourceRequest is the POST /recon/validate-source body
type ValidateSourceRequest struct {
	Source    string `json:"source"`
	FilePath  string `json:"file_path,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
}

// ValidateSource handles POST /recon/validate-source
func (h *ReconHandler) ValidateSource(w http.ResponseWriter, r *http.Request) {
	var req ValidateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.engine.ValidateSource(req.Source, recon.SourceParams{
		FilePath:  req.FilePath,
		BaseURL:   req.BaseURL,
		AuthToken: req.AuthToken,
	})
	if err != nil {
		respondJSON(w, map[string]interface{}{"valid": false, "message": err.Error()}, http.StatusOK)
		return
	}
	respondJSON(w, map[string]interface{}{"valid": true}, http.StatusOK)
}
