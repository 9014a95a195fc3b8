package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-apotek/internal/db"
)

const medicineColumns = `id, name, unit_sales_price::text, unit_purchase_price::text, pack_size, stock_qty, updated_at`

// PostgresStore persists medicines in the medicines table.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore wraps a pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// Get returns the medicine with id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Medicine, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1`, id)
	m, err := scanMedicine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Medicine{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return Medicine{}, db.Classify(err)
	}
	return m, nil
}

// List returns medicines whose name contains query (case-insensitive), ordered by name.
func (s *PostgresStore) List(ctx context.Context, query string) ([]Medicine, error) {
	q := strings.TrimSpace(query)
	rows, err := s.Pool.Query(ctx, `SELECT `+medicineColumns+` FROM medicines
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
		ORDER BY name, id`, q)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	out := make([]Medicine, 0, 32)
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

// Upsert inserts or replaces a medicine.
func (s *PostgresStore) Upsert(ctx context.Context, m Medicine) (Medicine, error) {
	if err := m.Validate(); err != nil {
		return Medicine{}, err
	}
	row := s.Pool.QueryRow(ctx, `INSERT INTO medicines (id, name, unit_sales_price, unit_purchase_price, pack_size, stock_qty, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			unit_sales_price = EXCLUDED.unit_sales_price,
			unit_purchase_price = EXCLUDED.unit_purchase_price,
			pack_size = EXCLUDED.pack_size,
			stock_qty = EXCLUDED.stock_qty,
			updated_at = now()
		RETURNING `+medicineColumns,
		m.ID, m.Name, m.UnitSalesPrice.String(), m.UnitPurchasePrice.String(), m.PackSize, m.StockQty)
	out, err := scanMedicine(row)
	if err != nil {
		return Medicine{}, db.Classify(err)
	}
	return out, nil
}

// Insert adds a medicine; an existing id yields ErrDuplicate.
func (s *PostgresStore) Insert(ctx context.Context, m Medicine) (Medicine, error) {
	if err := m.Validate(); err != nil {
		return Medicine{}, err
	}
	row := s.Pool.QueryRow(ctx, `INSERT INTO medicines (id, name, unit_sales_price, unit_purchase_price, pack_size, stock_qty, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, now())
		ON CONFLICT (id) DO NOTHING
		RETURNING `+medicineColumns,
		m.ID, m.Name, m.UnitSalesPrice.String(), m.UnitPurchasePrice.String(), m.PackSize, m.StockQty)
	out, err := scanMedicine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Medicine{}, fmt.Errorf("%s: %w", m.ID, ErrDuplicate)
		}
		return Medicine{}, db.Classify(err)
	}
	return out, nil
}

// Update locks the row, applies fn and writes every column back in one transaction.
func (s *PostgresStore) Update(ctx context.Context, id string, fn func(*Medicine) error) (Medicine, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Medicine{}, db.Classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	m, err := scanMedicine(tx.QueryRow(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Medicine{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return Medicine{}, db.Classify(err)
	}
	if err := fn(&m); err != nil {
		return Medicine{}, err
	}
	m.ID = id
	if err := m.Validate(); err != nil {
		return Medicine{}, err
	}
	out, err := scanMedicine(tx.QueryRow(ctx, `UPDATE medicines SET
			name = $2, unit_sales_price = $3::numeric, unit_purchase_price = $4::numeric,
			pack_size = $5, stock_qty = $6, updated_at = now()
		WHERE id = $1 RETURNING `+medicineColumns,
		id, m.Name, m.UnitSalesPrice.String(), m.UnitPurchasePrice.String(), m.PackSize, m.StockQty))
	if err != nil {
		return Medicine{}, db.Classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Medicine{}, db.Classify(err)
	}
	return out, nil
}

// Delete removes a medicine. Finalized invoices keep their own line snapshots.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM medicines WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// DecrementStock locks the affected rows in id order inside one transaction, checks
// every quantity and only then applies the updates.
func (s *PostgresStore) DecrementStock(ctx context.Context, adjs []StockAdjustment) ([]Medicine, error) {
	totals, order, err := mergeAdjustments(adjs)
	if err != nil {
		return nil, err
	}
	ids := append([]string(nil), order...)
	sort.Strings(ids)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, db.Classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT id, stock_qty FROM medicines WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, db.Classify(err)
	}
	stock := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			rows.Close()
			return nil, db.Classify(err)
		}
		stock[id] = qty
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	for _, id := range order {
		available, ok := stock[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if available < totals[id] {
			return nil, &InsufficientStockError{MedicineID: id, Requested: totals[id], Available: available}
		}
	}
	out := make([]Medicine, 0, len(order))
	for _, id := range order {
		row := tx.QueryRow(ctx, `UPDATE medicines SET stock_qty = stock_qty - $2, updated_at = now()
			WHERE id = $1 RETURNING `+medicineColumns, id, totals[id])
		m, err := scanMedicine(row)
		if err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, m)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

// RestoreStock adds the quantities back in one statement per medicine inside a transaction.
func (s *PostgresStore) RestoreStock(ctx context.Context, adjs []StockAdjustment) error {
	totals, order, err := mergeAdjustments(adjs)
	if err != nil {
		return err
	}
	sort.Strings(order)
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return db.Classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, id := range order {
		if _, err := tx.Exec(ctx, `UPDATE medicines SET stock_qty = stock_qty + $2, updated_at = now() WHERE id = $1`, id, totals[id]); err != nil {
			return db.Classify(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return db.Classify(err)
	}
	return nil
}

// IncrementStock adds pack_size × packs units in a single atomic statement.
func (s *PostgresStore) IncrementStock(ctx context.Context, id string, packs int) (Medicine, error) {
	if packs < 1 {
		return Medicine{}, fmt.Errorf("packs must be at least 1: %w", ErrInvalidInput)
	}
	row := s.Pool.QueryRow(ctx, `UPDATE medicines SET stock_qty = stock_qty + pack_size * $2, updated_at = now()
		WHERE id = $1 RETURNING `+medicineColumns, id, packs)
	m, err := scanMedicine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Medicine{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return Medicine{}, db.Classify(err)
	}
	return m, nil
}

func scanMedicine(row pgx.Row) (Medicine, error) {
	var (
		m               Medicine
		sales, purchase string
		updated         time.Time
	)
	if err := row.Scan(&m.ID, &m.Name, &sales, &purchase, &m.PackSize, &m.StockQty, &updated); err != nil {
		return Medicine{}, err
	}
	var err error
	if m.UnitSalesPrice, err = decimal.NewFromString(sales); err != nil {
		return Medicine{}, fmt.Errorf("unit_sales_price: %w", err)
	}
	if m.UnitPurchasePrice, err = decimal.NewFromString(purchase); err != nil {
		return Medicine{}, fmt.Errorf("unit_purchase_price: %w", err)
	}
	m.UpdatedAt = updated.UTC()
	return m, nil
}
