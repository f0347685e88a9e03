package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/ledgerkit/internal/recon"
	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
)

func TestAPILoad(t *testing.T) {
	var gotAuth, gotDate string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transactions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotDate = r.URL.Query().Get("date")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transactions": [
			{"id": "api-1", "amount": 120.50, "currency": "usd", "timestamp": "2026-08-20T09:00:00Z", "description": "order 991", "metadata": {"order_id": "991"}},
			{"id": "api-2", "amount": "75", "currency": "EUR", "timestamp": "2026-08-20T10:00:00Z"}
		]}`))
	}))
	defer server.Close()

	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	txns, err := NewAPI().Load(context.Background(), date, recon.SourceParams{
		BaseURL:   server.URL,
		AuthToken: "secret-token",
	})
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "2026-08-20", gotDate)

	first := txns[0]
	assert.Equal(t, "api-1", first.TxnID)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("120.5")))
	assert.Equal(t, "USD", first.Currency)
	assert.Equal(t, "order 991", first.Description)
	assert.Equal(t, "991", first.Metadata["order_id"])

	second := txns[1]
	assert.Equal(t, "EUR", second.Currency)
	assert.NotNil(t, second.Metadata)
}

func TestAPILoad_NoAuthHeaderWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"transactions": []}`))
	}))
	defer server.Close()

	txns, err := NewAPI().Load(context.Background(), time.Now(), recon.SourceParams{BaseURL: server.URL})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestAPILoad_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewAPI().Load(context.Background(), time.Now(), recon.SourceParams{BaseURL: server.URL})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindSourceIO, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "502")
}

func TestAPILoad_InvalidTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions": [{"id": "", "amount": 5, "currency": "USD", "timestamp": "2026-08-20T09:00:00Z"}]}`))
	}))
	defer server.Close()

	_, err := NewAPI().Load(context.Background(), time.Now(), recon.SourceParams{BaseURL: server.URL})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestAPIValidateParams(t *testing.T) {
	err := NewAPI().ValidateParams(recon.SourceParams{})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.NoError(t, NewAPI().ValidateParams(recon.SourceParams{BaseURL: "http://x"}))
}

func TestPaymentProcessorLoad(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/settlements", r.URL.Path)
		assert.Equal(t, "2026-08-20", r.URL.Query().Get("settlement_date"))
		assert.Equal(t, "settled", r.URL.Query().Get("status"))
		w.Write([]byte(`{"settlements": [
			{"settlement_id": "stl-1", "net_amount": "4875.20", "currency": "USD",
			 "settled_at": "2026-08-20T18:00:00Z", "type": "daily",
			 "transaction_count": 132, "fees": "124.80"}
		]}`))
	}))
	defer server.Close()

	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	txns, err := NewPaymentProcessor().Load(context.Background(), date, recon.SourceParams{BaseURL: server.URL})
	require.NoError(t, err)
	require.Len(t, txns, 1)

	txn := txns[0]
	assert.Equal(t, "stl-1", txn.TxnID)
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("4875.20")))
	assert.Equal(t, "Settlement for 132 transactions", txn.Description)
	assert.Equal(t, "daily", txn.Metadata["settlement_type"])
	assert.Equal(t, 132, txn.Metadata["transaction_count"])
	assert.Equal(t, "124.80", txn.Metadata["fees"])
}

func TestPaymentProcessorLoad_MissingFeesDefaultsToZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"settlements": [
			{"settlement_id": "stl-2", "net_amount": "100.00", "currency": "USD",
			 "settled_at": "2026-08-20T18:00:00Z", "type": "daily",
			 "transaction_count": 4}
		]}`))
	}))
	defer server.Close()

	date := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	txns, err := NewPaymentProcessor().Load(context.Background(), date, recon.SourceParams{BaseURL: server.URL})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "0", txns[0].Metadata["fees"])
}
