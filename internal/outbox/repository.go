package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/tradeflow/internal/platform/db"
)

// Store loads and settles pending events.
type Store interface {
	Pending(ctx context.Context, ids []uuid.UUID, limit, maxAttempts int) ([]Event, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Repository persists events in outbox_events.
type Repository struct {
	q db.Querier
}

// NewRepository constructs the repository over a pool.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// Record inserts evt through q, normally the caller's transaction.
func Record(ctx context.Context, q db.Querier, evt Event) error {
	_, err := q.Exec(ctx, `INSERT INTO outbox_events (id, company_id, kind, aggregate_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		evt.ID, evt.CompanyID, string(evt.Kind), evt.AggregateType, evt.AggregateID, []byte(evt.Payload), evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("outbox: record %s: %w", evt.Kind, err)
	}
	return nil
}

const selectEvents = `SELECT id, company_id, kind, aggregate_type, aggregate_id, payload, attempts, COALESCE(last_error, ''), created_at, processed_at
FROM outbox_events`

// Pending returns unprocessed events. With ids it is restricted to them,
// otherwise the oldest events below maxAttempts are returned.
func (r *Repository) Pending(ctx context.Context, ids []uuid.UUID, limit, maxAttempts int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if len(ids) > 0 {
		rows, err = r.q.Query(ctx, selectEvents+` WHERE processed_at IS NULL AND id = ANY($1) ORDER BY created_at LIMIT $2`, ids, limit)
	} else {
		rows, err = r.q.Query(ctx, selectEvents+` WHERE processed_at IS NULL AND attempts < $1 ORDER BY created_at LIMIT $2`, maxAttempts, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("outbox: pending: %w", err)
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			evt     Event
			kind    string
			payload []byte
		)
		if err := rows.Scan(&evt.ID, &evt.CompanyID, &kind, &evt.AggregateType, &evt.AggregateID, &payload, &evt.Attempts, &evt.LastError, &evt.CreatedAt, &evt.ProcessedAt); err != nil {
			return nil, err
		}
		evt.Kind = Kind(kind)
		evt.Payload = payload
		out = append(out, evt)
	}
	return out, rows.Err()
}

// MarkProcessed settles an event.
func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE outbox_events SET processed_at = $2, attempts = attempts + 1, last_error = NULL WHERE id = $1`, id, at)
	return err
}

// MarkFailed records a failed attempt.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.q.Exec(ctx, `UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, reason)
	return err
}

var _ Store = (*Repository)(nil)
