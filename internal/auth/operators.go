package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-apotek/internal/db"
)

// ErrOperatorNotFound is returned for unknown operator ids.
var ErrOperatorNotFound = errors.New("operator not found")

// Operator is a cashier account. The id doubles as the cashier id on invoices.
type Operator struct {
	ID           string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// OperatorStore resolves operators by id.
type OperatorStore interface {
	Get(ctx context.Context, id string) (Operator, error)
}

// ParseOperators reads the OPERATORS setting: entries "id|name|argon2hash" separated by
// semicolons. Blank entries are skipped.
func ParseOperators(raw string) ([]Operator, error) {
	var out []Operator
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "|", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("auth: operator entry %q: want id|name|hash", entry)
		}
		op := Operator{ID: strings.TrimSpace(parts[0]), Name: strings.TrimSpace(parts[1]), PasswordHash: strings.TrimSpace(parts[2])}
		if op.ID == "" || !strings.HasPrefix(op.PasswordHash, "$argon2id$") {
			return nil, fmt.Errorf("auth: operator entry %q: id and argon2id hash are required", entry)
		}
		out = append(out, op)
	}
	return out, nil
}

// MemoryOperators keeps operators in process.
type MemoryOperators struct {
	mu  sync.RWMutex
	ops map[string]Operator
}

// NewMemoryOperators constructs a store seeded with ops.
func NewMemoryOperators(ops ...Operator) *MemoryOperators {
	m := &MemoryOperators{ops: make(map[string]Operator, len(ops))}
	for _, op := range ops {
		m.ops[op.ID] = op
	}
	return m
}

// Get returns the operator with id.
func (m *MemoryOperators) Get(_ context.Context, id string) (Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.ops[id]
	if !ok {
		return Operator{}, fmt.Errorf("%s: %w", id, ErrOperatorNotFound)
	}
	return op, nil
}

// PostgresOperators reads the operators table.
type PostgresOperators struct {
	pool *pgxpool.Pool
}

// NewPostgresOperators constructs a Postgres-backed operator store.
func NewPostgresOperators(pool *pgxpool.Pool) *PostgresOperators {
	return &PostgresOperators{pool: pool}
}

// Get returns the operator with id.
func (p *PostgresOperators) Get(ctx context.Context, id string) (Operator, error) {
	var op Operator
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, password_hash, created_at FROM operators WHERE id = $1`, id,
	).Scan(&op.ID, &op.Name, &op.PasswordHash, &op.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Operator{}, fmt.Errorf("%s: %w", id, ErrOperatorNotFound)
	}
	if err != nil {
		return Operator{}, db.Classify(err)
	}
	return op, nil
}

// Upsert inserts or updates an operator. Used by the seeder.
func (p *PostgresOperators) Upsert(ctx context.Context, op Operator) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO operators (id, name, password_hash) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash`,
		op.ID, op.Name, op.PasswordHash)
	return db.Classify(err)
}
