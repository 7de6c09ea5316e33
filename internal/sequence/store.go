package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/tradeflow/internal/platform/db"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// CounterStore atomically increments and returns a counter.
type CounterStore interface {
	Increment(ctx context.Context, key Key) (int64, error)
}

const incrementSQL = `INSERT INTO sequence_counters (company_id, kind, bucket, last_value, updated_at)
VALUES ($1, $2, $3, 1, NOW())
ON CONFLICT (company_id, kind, bucket)
DO UPDATE SET last_value = sequence_counters.last_value + 1, updated_at = NOW()
RETURNING last_value`

// PgStore increments counters in PostgreSQL. When bound to a transaction each
// increment runs under a savepoint so a lost race leaves the caller's
// transaction usable for a retry.
type PgStore struct {
	q db.Querier
}

// NewPgStore binds the store to a pool or a transaction.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

// Increment issues the next value for key.
func (s *PgStore) Increment(ctx context.Context, key Key) (int64, error) {
	var value int64
	run := func(q db.Querier) error {
		return q.QueryRow(ctx, incrementSQL, key.CompanyID, string(key.Kind), key.Bucket).Scan(&value)
	}
	var err error
	if tx, ok := s.q.(pgx.Tx); ok {
		err = db.Savepoint(ctx, tx, func(sp pgx.Tx) error { return run(sp) })
	} else {
		err = run(s.q)
	}
	if err != nil {
		if db.IsTransient(err) || db.IsUniqueViolation(err, "") {
			return 0, fmt.Errorf("%w: %s/%s: %v", shared.ErrSequenceContention, key.Kind, key.Bucket, err)
		}
		return 0, fmt.Errorf("sequence: increment: %w", err)
	}
	return value, nil
}

// MemoryStore is an in-process CounterStore for tests and tooling.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[Key]int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[Key]int64)}
}

// Increment issues the next value for key.
func (m *MemoryStore) Increment(ctx context.Context, key Key) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

// Last returns the last issued value for key.
func (m *MemoryStore) Last(key Key) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

var (
	_ CounterStore = (*PgStore)(nil)
	_ CounterStore = (*MemoryStore)(nil)
)
