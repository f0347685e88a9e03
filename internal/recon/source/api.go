package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/ledgerkit/internal/recon"
	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
)

const httpTimeout = 30 * time.Second

// API fetches transactions from a generic external HTTP API:
// GET {base_url}/transactions?date=YYYY-MM-DD, optional bearer auth.
type API struct {
	client *http.Client
}

func NewAPI() *API {
	return &API{client: &http.Client{Timeout: httpTimeout}}
}

func (a *API) ValidateParams(params recon.SourceParams) error {
	if params.BaseURL == "" {
		return apperrors.Validation("base_url required for api source")
	}
	return nil
}

type apiTransaction struct {
	ID          string                 `json:"id"`
	Amount      json.Number            `json:"amount"`
	Currency    string                 `json:"currency"`
	Timestamp   string                 `json:"timestamp"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (a *API) Load(ctx context.Context, date time.Time, params recon.SourceParams) ([]recon.ExternalTxn, error) {
	if err := a.ValidateParams(params); err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(params.BaseURL, "/") + "/transactions?date=" + date.Format("2006-01-02")
	var payload struct {
		Transactions []apiTransaction `json:"transactions"`
	}
	if err := a.get(ctx, endpoint, params.AuthToken, &payload); err != nil {
		return nil, err
	}

	txns := make([]recon.ExternalTxn, 0, len(payload.Transactions))
	for _, raw := range payload.Transactions {
		txn, err := parseAPITransaction(raw)
		if err != nil {
			return nil, apperrors.Validation(fmt.Sprintf("Invalid API transaction data: %v", err))
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func (a *API) get(ctx context.Context, endpoint, authToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperrors.SourceIO("build request", err)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return apperrors.SourceIO("external api request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.SourceIO(fmt.Sprintf("external api returned status %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.SourceIO("decode response", err)
	}
	return nil
}

func parseAPITransaction(raw apiTransaction) (recon.ExternalTxn, error) {
	if raw.ID == "" {
		return recon.ExternalTxn{}, fmt.Errorf("missing id")
	}
	amount, err := decimal.NewFromString(raw.Amount.String())
	if err != nil {
		return recon.ExternalTxn{}, fmt.Errorf("invalid amount %q", raw.Amount)
	}
	timestamp, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return recon.ExternalTxn{}, err
	}
	metadata := raw.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return recon.ExternalTxn{
		TxnID:       raw.ID,
		Amount:      amount,
		Currency:    strings.ToUpper(raw.Currency),
		Timestamp:   timestamp,
		Description: raw.Description,
		Metadata:    metadata,
	}, nil
}

// PaymentProcessor fetches settled settlements from a payment processor:
// GET {base_url}/settlements?settlement_date=YYYY-MM-DD&status=settled.
// Each settlement becomes one ExternalTxn over its net amount.
type PaymentProcessor struct {
	api *API
}

func NewPaymentProcessor() *PaymentProcessor {
	return &PaymentProcessor{api: NewAPI()}
}

func (p *PaymentProcessor) ValidateParams(params recon.SourceParams) error {
	if params.BaseURL == "" {
		return apperrors.Validation("base_url required for payment_processor source")
	}
	return nil
}

type settlement struct {
	SettlementID     string      `json:"settlement_id"`
	NetAmount        json.Number `json:"net_amount"`
	Currency         string      `json:"currency"`
	SettledAt        string      `json:"settled_at"`
	Type             string      `json:"type"`
	TransactionCount int         `json:"transaction_count"`
	Fees             json.Number `json:"fees"`
}

func (p *PaymentProcessor) Load(ctx context.Context, date time.Time, params recon.SourceParams) ([]recon.ExternalTxn, error) {
	if err := p.ValidateParams(params); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("settlement_date", date.Format("2006-01-02"))
	query.Set("status", "settled")
	endpoint := strings.TrimRight(params.BaseURL, "/") + "/settlements?" + query.Encode()

	var payload struct {
		Settlements []settlement `json:"settlements"`
	}
	if err := p.api.get(ctx, endpoint, params.AuthToken, &payload); err != nil {
		return nil, err
	}

	txns := make([]recon.ExternalTxn, 0, len(payload.Settlements))
	for _, raw := range payload.Settlements {
		txn, err := parseSettlement(raw)
		if err != nil {
			return nil, apperrors.Validation(fmt.Sprintf("Invalid settlement data: %v", err))
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseSettlement(raw settlement) (recon.ExternalTxn, error) {
	if raw.SettlementID == "" {
		return recon.ExternalTxn{}, fmt.Errorf("missing settlement_id")
	}
	amount, err := decimal.NewFromString(raw.NetAmount.String())
	if err != nil {
		return recon.ExternalTxn{}, fmt.Errorf("invalid net_amount %q", raw.NetAmount)
	}
	timestamp, err := parseTimestamp(raw.SettledAt)
	if err != nil {
		return recon.ExternalTxn{}, err
	}
	fees := raw.Fees.String()
	if fees == "" {
		fees = "0"
	}
	return recon.ExternalTxn{
		TxnID:       raw.SettlementID,
		Amount:      amount,
		Currency:    strings.ToUpper(raw.Currency),
		Timestamp:   timestamp,
		Description: fmt.Sprintf("Settlement for %d transactions", raw.TransactionCount),
		Metadata: map[string]interface{}{
			"settlement_type":   raw.Type,
			"transaction_count": raw.TransactionCount,
			"fees":              fees,
		},
	}, nil
}
