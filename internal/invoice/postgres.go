package invoice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/db"
)

const invoiceColumns = `number, created_at, customer_name, cashier_id, session_id,
	gross_total::text, discount_percent::text, discount_amount::text, net_total::text,
	cash_paid::text, change_due::text, status`

// PostgresRepository stores invoices in the invoices and invoice_lines tables.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository wraps a pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

// NextNumber draws from invoice_number_seq. Sequence values are never handed out twice,
// even when the surrounding finalize fails.
func (r *PostgresRepository) NextNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.Pool.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&n); err != nil {
		return 0, db.Classify(err)
	}
	return n, nil
}

// Save inserts the invoice and its lines in one transaction.
func (r *PostgresRepository) Save(ctx context.Context, inv Invoice) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return db.Classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO invoices (number, created_at, customer_name, cashier_id, session_id,
		gross_total, discount_percent, discount_amount, net_total, cash_paid, change_due, status)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12)`,
		inv.Number, inv.CreatedAt, inv.CustomerName, inv.CashierID, inv.SessionID,
		inv.GrossTotal.String(), inv.DiscountPercent.String(), inv.DiscountAmount.String(), inv.NetTotal.String(),
		inv.CashPaid.String(), inv.ChangeDue.String(), string(inv.Status))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", inv.Code(), ErrDuplicateNumber)
		}
		return db.Classify(err)
	}
	batch := &pgx.Batch{}
	for i, l := range inv.Lines {
		batch.Queue(`INSERT INTO invoice_lines (invoice_number, position, medicine_id, name, unit_price, qty,
			discount_percent, discounted_unit_price, gross, discount_amount, net)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric)`,
			inv.Number, i, l.MedicineID, l.Name, l.UnitPrice.String(), l.Qty,
			l.DiscountPercent.String(), l.DiscountedUnitPrice.String(), l.Gross.String(), l.DiscountAmount.String(), l.Net.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return db.Classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return db.Classify(err)
	}
	return nil
}

// Get loads an invoice with its lines.
func (r *PostgresRepository) Get(ctx context.Context, number int64) (Invoice, error) {
	inv, err := scanInvoice(r.Pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number = $1`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("%s: %w", FormatCode(number), ErrNotFound)
		}
		return Invoice{}, db.Classify(err)
	}
	lines, err := r.lines(ctx, number)
	if err != nil {
		return Invoice{}, err
	}
	inv.Lines = lines
	return inv, nil
}

// List returns matching invoices newest first with their lines, plus the total match count.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Invoice, int, error) {
	where, args := listWhere(f.Query)
	var total int
	if err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, max(f.Offset, 0))
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + where +
		` ORDER BY number DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	out := make([]Invoice, 0, limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, 0, db.Classify(err)
		}
		out = append(out, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err)
	}
	for i := range out {
		lines, err := r.lines(ctx, out[i].Number)
		if err != nil {
			return nil, 0, err
		}
		out[i].Lines = lines
	}
	return out, total, nil
}

func listWhere(query string) (string, []any) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", nil
	}
	args := []any{"%" + strings.ToLower(q) + "%"}
	where := ` WHERE (lower(cashier_id) LIKE $1 OR lower(customer_name) LIKE $1 OR lower(status) LIKE $1
		OR lower('inv-' || lpad(number::text, 6, '0')) LIKE $1`
	if n, err := ParseCode(q); err == nil {
		args = append(args, n)
		where += ` OR number = $2`
	}
	return where + `)`, args
}

// Summary aggregates counts and revenue.
func (r *PostgresRepository) Summary(ctx context.Context) (Summary, error) {
	var (
		s       Summary
		revenue string
	)
	err := r.Pool.QueryRow(ctx, `SELECT count(*),
		count(*) FILTER (WHERE status = 'finalized'),
		COALESCE(sum(net_total) FILTER (WHERE status = 'finalized'), 0)::text
		FROM invoices`).Scan(&s.Count, &s.Completed, &revenue)
	if err != nil {
		return Summary{}, db.Classify(err)
	}
	if s.Revenue, err = decimal.NewFromString(revenue); err != nil {
		return Summary{}, fmt.Errorf("revenue: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) lines(ctx context.Context, number int64) ([]Line, error) {
	rows, err := r.Pool.Query(ctx, `SELECT medicine_id, name, unit_price::text, qty, discount_percent::text,
		discounted_unit_price::text, gross::text, discount_amount::text, net::text
		FROM invoice_lines WHERE invoice_number = $1 ORDER BY position`, number)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	out := make([]Line, 0, 8)
	for rows.Next() {
		var l Line
		var unit, pct, discUnit, gross, disc, net string
		if err := rows.Scan(&l.MedicineID, &l.Name, &unit, &l.Qty, &pct, &discUnit, &gross, &disc, &net); err != nil {
			return nil, db.Classify(err)
		}
		if err := parseDecimals(
			decimalField{&l.UnitPrice, unit}, decimalField{&l.DiscountPercent, pct},
			decimalField{&l.DiscountedUnitPrice, discUnit}, decimalField{&l.Gross, gross},
			decimalField{&l.DiscountAmount, disc}, decimalField{&l.Net, net},
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, db.Classify(rows.Err())
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status, gross, pct, disc, net, cash, changeDue string
	if err := row.Scan(&inv.Number, &inv.CreatedAt, &inv.CustomerName, &inv.CashierID, &inv.SessionID,
		&gross, &pct, &disc, &net, &cash, &changeDue, &status); err != nil {
		return Invoice{}, err
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.Status = Status(status)
	err := parseDecimals(
		decimalField{&inv.GrossTotal, gross}, decimalField{&inv.DiscountPercent, pct},
		decimalField{&inv.DiscountAmount, disc}, decimalField{&inv.NetTotal, net},
		decimalField{&inv.CashPaid, cash}, decimalField{&inv.ChangeDue, changeDue},
	)
	return inv, err
}

type decimalField struct {
	dst *decimal.Decimal
	raw string
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("parse numeric %q: %w", f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
