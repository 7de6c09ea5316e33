package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/odyssey-erp/tradeflow/internal/shared"
)

const (
	defaultMaxAttempts = 5
	defaultBaseBackoff = 15 * time.Millisecond
)

// Options tunes the retry policy.
type Options struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Generator formats document numbers on top of a CounterStore, retrying lost
// counter races a bounded number of times.
type Generator struct {
	store       CounterStore
	maxAttempts int
	baseBackoff time.Duration
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
}

// NewGenerator constructs a Generator. store backs Issue; Next accepts a
// transaction-bound store per call.
func NewGenerator(store CounterStore, opts Options) *Generator {
	g := &Generator{
		store:       store,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         time.Now,
		sleep:       sleepContext,
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = defaultMaxAttempts
	}
	if g.baseBackoff <= 0 {
		g.baseBackoff = defaultBaseBackoff
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// WithNow overrides the clock used for bucket derivation.
func (g *Generator) WithNow(now func() time.Time) *Generator {
	if now != nil {
		g.now = now
	}
	return g
}

// Issue returns the next number for kind using the generator's own store.
func (g *Generator) Issue(ctx context.Context, companyID int64, kind Kind) (Number, error) {
	if g.store == nil {
		return Number{}, errors.New("sequence: store not configured")
	}
	return g.Next(ctx, g.store, companyID, kind)
}

// Next returns the next number for kind, incrementing through store.
func (g *Generator) Next(ctx context.Context, store CounterStore, companyID int64, kind Kind) (Number, error) {
	return g.NextAt(ctx, store, companyID, kind, g.now())
}

// NextAt is Next with an explicit instant for bucket derivation.
func (g *Generator) NextAt(ctx context.Context, store CounterStore, companyID int64, kind Kind, at time.Time) (Number, error) {
	if companyID <= 0 {
		return Number{}, fmt.Errorf("%w: company required", shared.ErrValidation)
	}
	bucket, err := BucketFor(kind, at)
	if err != nil {
		return Number{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	key := Key{CompanyID: companyID, Kind: kind, Bucket: bucket}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		value, err := store.Increment(ctx, key)
		if err == nil {
			return Number{Key: key, Value: value, Formatted: Format(kind, bucket, value)}, nil
		}
		if !errors.Is(err, shared.ErrSequenceContention) {
			return Number{}, err
		}
		lastErr = err
		g.metrics.retried(kind)
		g.logger.Warn("sequence contention",
			slog.String("kind", string(kind)),
			slog.String("bucket", bucket),
			slog.Int64("company_id", companyID),
			slog.Int("attempt", attempt),
		)
		if attempt == g.maxAttempts {
			break
		}
		if err := g.sleep(ctx, g.backoff(attempt)); err != nil {
			return Number{}, err
		}
	}
	g.metrics.exhausted(kind)
	return Number{}, fmt.Errorf("sequence: %d attempts exhausted: %w", g.maxAttempts, lastErr)
}

func (g *Generator) backoff(attempt int) time.Duration {
	base := g.baseBackoff << (attempt - 1)
	return base/2 + rand.N(base/2+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
