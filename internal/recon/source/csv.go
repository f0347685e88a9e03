package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/ledgerkit/internal/recon"
	"github.com/ledgerkit/ledgerkit/internal/shared/apperrors"
)

// timestampLayouts are tried in order when parsing source timestamps.
// ISO-8601 first; the tail covers the formats bank exports actually emit.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02 Jan 2006 15:04:05",
	"02 Jan 2006",
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

func parseAmount(value string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(value))
	return decimal.NewFromString(cleaned)
}

// CSV reads the generic export format: required columns txn_id, amount,
// currency, timestamp; description optional; every other non-empty column
// lands in metadata. One bad row fails the whole load.
type CSV struct{}

func NewCSV() *CSV { return &CSV{} }

func (c *CSV) ValidateParams(params recon.SourceParams) error {
	if params.FilePath == "" {
		return apperrors.Validation("file_path required for csv source")
	}
	return nil
}

func (c *CSV) Load(_ context.Context, _ time.Time, params recon.SourceParams) ([]recon.ExternalTxn, error) {
	if err := c.ValidateParams(params); err != nil {
		return nil, err
	}
	file, err := os.Open(params.FilePath)
	if err != nil {
		return nil, apperrors.SourceIO("open csv file", err)
	}
	defer file.Close()
	return readRows(file, []string{"txn_id", "amount", "currency", "timestamp"}, parseCSVRow)
}

// BankCSV reads bank statement exports: required columns transaction_id,
// amount, currency, date, description. Statements show debits as negative,
// so amounts are absolute-valued.
type BankCSV struct{}

func NewBankCSV() *BankCSV { return &BankCSV{} }

func (b *BankCSV) ValidateParams(params recon.SourceParams) error {
	if params.FilePath == "" {
		return apperrors.Validation("file_path required for bank_csv source")
	}
	return nil
}

func (b *BankCSV) Load(_ context.Context, _ time.Time, params recon.SourceParams) ([]recon.ExternalTxn, error) {
	if err := b.ValidateParams(params); err != nil {
		return nil, err
	}
	file, err := os.Open(params.FilePath)
	if err != nil {
		return nil, apperrors.SourceIO("open bank csv file", err)
	}
	defer file.Close()
	return readRows(file, []string{"transaction_id", "amount", "currency", "date", "description"}, parseBankRow)
}

type rowParser func(header []string, row map[string]string) (recon.ExternalTxn, error)

func readRows(r io.Reader, required []string, parse rowParser) ([]recon.ExternalTxn, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.SourceIO("read csv header", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if missing := missingColumns(header, required); len(missing) > 0 {
		return nil, apperrors.Validation(fmt.Sprintf("Missing required columns: %v", missing))
	}

	var txns []recon.ExternalTxn
	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Validation(fmt.Sprintf("Error parsing row %d: %v", rowNum, err))
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		txn, err := parse(header, row)
		if err != nil {
			return nil, apperrors.Validation(fmt.Sprintf("Error parsing row %d: %v", rowNum, err))
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func missingColumns(header, required []string) []string {
	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}
	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

func parseCSVRow(header []string, row map[string]string) (recon.ExternalTxn, error) {
	timestamp, err := parseTimestamp(row["timestamp"])
	if err != nil {
		return recon.ExternalTxn{}, err
	}
	amount, err := parseAmount(row["amount"])
	if err != nil {
		return recon.ExternalTxn{}, fmt.Errorf("invalid amount %q", row["amount"])
	}
	txnID := strings.TrimSpace(row["txn_id"])
	if txnID == "" {
		return recon.ExternalTxn{}, fmt.Errorf("empty txn_id")
	}

	required := map[string]bool{"txn_id": true, "amount": true, "currency": true, "timestamp": true}
	metadata := map[string]interface{}{}
	for _, col := range header {
		if required[col] {
			continue
		}
		if value := strings.TrimSpace(row[col]); value != "" {
			metadata[col] = value
		}
	}

	return recon.ExternalTxn{
		TxnID:       txnID,
		Amount:      amount,
		Currency:    strings.ToUpper(strings.TrimSpace(row["currency"])),
		Timestamp:   timestamp,
		Description: strings.TrimSpace(row["description"]),
		Metadata:    metadata,
	}, nil
}

func parseBankRow(_ []string, row map[string]string) (recon.ExternalTxn, error) {
	timestamp, err := parseTimestamp(row["date"])
	if err != nil {
		return recon.ExternalTxn{}, err
	}
	rawAmount := strings.TrimSpace(row["amount"])
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return recon.ExternalTxn{}, fmt.Errorf("invalid amount %q", rawAmount)
	}
	txnID := strings.TrimSpace(row["transaction_id"])
	if txnID == "" {
		return recon.ExternalTxn{}, fmt.Errorf("empty transaction_id")
	}

	return recon.ExternalTxn{
		TxnID:       txnID,
		Amount:      amount.Abs(),
		Currency:    strings.ToUpper(strings.TrimSpace(row["currency"])),
		Timestamp:   timestamp,
		Description: strings.TrimSpace(row["description"]),
		Metadata: map[string]interface{}{
			"source_format":   "bank_csv",
			"original_amount": strings.NewReplacer("$", "", ",", "").Replace(rawAmount),
		},
	}, nil
}
