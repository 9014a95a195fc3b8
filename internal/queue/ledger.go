package queue

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-apotek/internal/invoice"
	"github.com/noah-isme/backend-apotek/internal/obs"
)

// LedgerWriter appends finalized invoices to a daily CSV ledger under Dir.
// Files are named ledger-YYYY-MM-DD.csv after the invoice's UTC date.
type LedgerWriter struct {
	Dir    string
	Logger *zerolog.Logger

	mu sync.Mutex
}

// HandleInvoiceFinalized is the asynq handler for TypeInvoiceFinalized.
func (l *LedgerWriter) HandleInvoiceFinalized(ctx context.Context, t *asynq.Task) error {
	var inv invoice.Invoice
	if err := json.Unmarshal(t.Payload(), &inv); err != nil {
		obs.ObserveLedgerExport("error")
		return fmt.Errorf("decode invoice payload: %v: %w", err, asynq.SkipRetry)
	}
	if inv.Number < 1 {
		obs.ObserveLedgerExport("error")
		return fmt.Errorf("invoice payload without number: %w", asynq.SkipRetry)
	}
	_, span := obs.StartSpan(ctx, "ledger.append", attribute.Int64("pos.invoice_number", inv.Number))
	path, err := l.Append(inv)
	obs.EndSpan(span, err)
	if err != nil {
		obs.ObserveLedgerExport("error")
		return err
	}
	obs.ObserveLedgerExport("ok")
	if l.Logger != nil {
		l.Logger.Info().Str("invoice", inv.Code()).Str("file", path).Msg("ledger row written")
	}
	return nil
}

// Append writes one ledger row for inv and returns the file it went to. A new file
// starts with the header row.
func (l *LedgerWriter) Append(inv invoice.Invoice) (string, error) {
	if l.Dir == "" {
		return "", errors.New("ledger: directory not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("ledger: create dir: %w", err)
	}
	path := filepath.Join(l.Dir, "ledger-"+inv.CreatedAt.UTC().Format("2006-01-02")+".csv")
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, fs.ErrNotExist)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("ledger: open: %w", err)
	}
	if err := writeRow(f, fresh, invoice.LedgerRow(inv)); err != nil {
		return "", err
	}
	return path, nil
}

// writeRow writes row, preceded by the header when header is set, and closes wc. A
// failed close is reported since the row may not have reached disk.
func writeRow(wc io.WriteCloser, header bool, row []string) (err error) {
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("ledger: close: %w", cerr)
		}
	}()
	w := csv.NewWriter(wc)
	if header {
		if err := w.Write(invoice.LedgerHeader); err != nil {
			return fmt.Errorf("ledger: header: %w", err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("ledger: row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("ledger: flush: %w", err)
	}
	return nil
}
