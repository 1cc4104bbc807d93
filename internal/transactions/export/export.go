// Package export renders the merged transaction stream as a CSV or JSON
// download.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Aidin1998/txconsole/internal/transactions/merger"
	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/Aidin1998/txconsole/pkg/validation"
	"go.uber.org/zap"
)

// DefaultLimit bounds one export.
const DefaultLimit = 10000

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", errors.Invalid.Explain("format must be csv or json").WithField("oneof", "format", "must be csv or json")
	}
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// FileName is the suggested download name for an export taken at t.
func (f Format) FileName(t time.Time) string {
	return fmt.Sprintf("transactions-%s.%s", t.UTC().Format("20060102-150405"), f)
}

// Merger is the read side an export pulls from.
type Merger interface {
	Merge(ctx context.Context, req merger.Request) (*merger.Result, error)
}

// Snapshot is one export's content. Truncated is set when Total exceeds
// the records that were collected.
type Snapshot struct {
	Records     []models.UnifiedTransaction
	Total       int64
	Truncated   bool
	Unavailable []models.SourceKind
	TakenAt     time.Time
}

type Exporter struct {
	merger Merger
	limit  int
	logger *zap.Logger
}

func NewExporter(m Merger, limit int, logger *zap.Logger) *Exporter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Exporter{merger: m, limit: limit, logger: logger.Named("export")}
}

// Collect runs the listing query once with the export bound as page size.
func (e *Exporter) Collect(ctx context.Context, filter source.Filter, sort source.Sort) (*Snapshot, error) {
	res, err := e.merger.Merge(ctx, merger.Request{Filter: filter, Sort: sort, Skip: 0, Limit: e.limit})
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Records:     res.Records,
		Total:       res.Total,
		Truncated:   res.Total > int64(len(res.Records)),
		Unavailable: res.Unavailable,
		TakenAt:     time.Now().UTC(),
	}
	if snap.Truncated {
		e.logger.Warn("export truncated",
			zap.Int64("total", snap.Total),
			zap.Int("exported", len(snap.Records)),
			zap.Int("limit", e.limit))
	}
	return snap, nil
}

// Write serializes records in the requested format.
func Write(w io.Writer, format Format, records []models.UnifiedTransaction) error {
	if format == FormatJSON {
		return WriteJSON(w, records)
	}
	return WriteCSV(w, records)
}

// WriteJSON writes records as one JSON array.
func WriteJSON(w io.Writer, records []models.UnifiedTransaction) error {
	if records == nil {
		records = []models.UnifiedTransaction{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(records)
}

// Columns is the fixed CSV header.
var Columns = []string{
	"id",
	"type",
	"reference",
	"user_id",
	"direction",
	"status",
	"amount",
	"crypto_amount",
	"crypto_asset",
	"fiat_amount",
	"fiat_currency",
	"source_address",
	"destination_address",
	"network",
	"tx_hash",
	"bank_reference",
	"is_flagged",
	"flagged_reason",
	"flagged_by",
	"flagged_at",
	"status_updated_by",
	"status_updated_at",
	"status_notes",
	"created_at",
}

// WriteCSV writes the header and one row per record. Operator and customer
// supplied free text is neutralized against spreadsheet formula evaluation;
// identifiers such as reference and proof are written as stored.
func WriteCSV(w io.Writer, records []models.UnifiedTransaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for i := range records {
		if err := cw.Write(row(&records[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(t *models.UnifiedTransaction) []string {
	var cryptoAmount, cryptoAsset, fiatAmount, fiatCurrency string
	if t.Amount.Crypto != nil {
		cryptoAmount, cryptoAsset = t.Amount.Crypto.Value.String(), t.Amount.Crypto.Asset
	}
	if t.Amount.Fiat != nil {
		fiatAmount, fiatCurrency = t.Amount.Fiat.Value.String(), t.Amount.Fiat.Asset
	}
	network := str(t.Source.Network)
	if network == "" {
		network = str(t.Destination.Network)
	}

	return []string{
		strconv.FormatUint(t.ID, 10),
		t.Type,
		t.Reference,
		strconv.FormatUint(t.UserID, 10),
		string(t.Direction),
		string(t.Status),
		t.Amount.Display,
		cryptoAmount,
		cryptoAsset,
		fiatAmount,
		fiatCurrency,
		text(t.Source.Address),
		text(t.Destination.Address),
		network,
		str(t.TxHash()),
		bankReference(t),
		strconv.FormatBool(t.Moderation.IsFlagged),
		text(str(t.Moderation.FlaggedReason)),
		text(str(t.Moderation.FlaggedBy)),
		timestamp(t.Moderation.FlaggedAt),
		text(str(t.StatusAudit.UpdatedBy)),
		timestamp(t.StatusAudit.UpdatedAt),
		text(str(t.StatusAudit.Notes)),
		t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func text(s string) string { return validation.SanitizeForFormulaInjection(s) }

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func bankReference(t *models.UnifiedTransaction) string {
	if t.FiatTransfer == nil {
		return ""
	}
	return str(t.FiatTransfer.BankReference)
}

func timestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
