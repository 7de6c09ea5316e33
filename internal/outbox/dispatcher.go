package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Handler consumes one event. Handlers must tolerate repeated delivery.
type Handler func(ctx context.Context, evt Event) error

// Report summarises a dispatch run.
type Report struct {
	Processed int
	Failed    int
	Skipped   int
}

// DispatcherConfig wires the dispatcher.
type DispatcherConfig struct {
	Store       Store
	Logger      *slog.Logger
	Registerer  prometheus.Registerer
	MaxAttempts int
	BatchSize   int
}

// Dispatcher delivers events to registered handlers and settles them.
type Dispatcher struct {
	store       Store
	logger      *slog.Logger
	handlers    map[Kind]Handler
	maxAttempts int
	batchSize   int
	outcomes    *prometheus.CounterVec
	now         func() time.Time
}

// NewDispatcher constructs a dispatcher without handlers.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		store:       cfg.Store,
		logger:      cfg.Logger,
		handlers:    make(map[Kind]Handler),
		maxAttempts: cfg.MaxAttempts,
		batchSize:   cfg.BatchSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = 10
	}
	if d.batchSize <= 0 {
		d.batchSize = 100
	}
	if cfg.Registerer != nil {
		d.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeflow_outbox_dispatch_total",
			Help: "Outbox deliveries partitioned by event kind and outcome.",
		}, []string{"kind", "status"})
		cfg.Registerer.MustRegister(d.outcomes)
	}
	return d
}

// Register binds h to kind, replacing any previous handler.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch delivers the given events, normally right after the transaction
// that recorded them committed. Failures stay pending for Drain.
func (d *Dispatcher) Dispatch(ctx context.Context, ids ...uuid.UUID) (Report, error) {
	if d == nil || d.store == nil || len(ids) == 0 {
		return Report{}, nil
	}
	events, err := d.store.Pending(ctx, ids, len(ids), d.maxAttempts)
	if err != nil {
		return Report{}, err
	}
	return d.deliver(ctx, events), nil
}

// Drain delivers the oldest pending events below the attempt limit.
func (d *Dispatcher) Drain(ctx context.Context) (Report, error) {
	if d == nil || d.store == nil {
		return Report{}, errors.New("outbox: dispatcher not configured")
	}
	events, err := d.store.Pending(ctx, nil, d.batchSize, d.maxAttempts)
	if err != nil {
		return Report{}, err
	}
	return d.deliver(ctx, events), nil
}

func (d *Dispatcher) deliver(ctx context.Context, events []Event) Report {
	var report Report
	for _, evt := range events {
		h, ok := d.handlers[evt.Kind]
		if !ok {
			report.Skipped++
			d.observe(evt.Kind, "skipped")
			continue
		}
		if err := d.invoke(ctx, h, evt); err != nil {
			report.Failed++
			d.observe(evt.Kind, "failure")
			level := slog.LevelWarn
			if evt.Attempts+1 >= d.maxAttempts {
				level = slog.LevelError
			}
			d.logger.Log(ctx, level, "outbox delivery failed",
				slog.String("event_id", evt.ID.String()),
				slog.String("kind", string(evt.Kind)),
				slog.Int64("aggregate_id", evt.AggregateID),
				slog.Int("attempt", evt.Attempts+1),
				slog.Any("error", err),
			)
			if markErr := d.store.MarkFailed(ctx, evt.ID, err.Error()); markErr != nil {
				d.logger.Error("outbox mark failed", slog.String("event_id", evt.ID.String()), slog.Any("error", markErr))
			}
			continue
		}
		if err := d.store.MarkProcessed(ctx, evt.ID, d.now()); err != nil {
			d.logger.Error("outbox mark processed", slog.String("event_id", evt.ID.String()), slog.Any("error", err))
			report.Failed++
			continue
		}
		report.Processed++
		d.observe(evt.Kind, "success")
	}
	return report
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("outbox: handler panic: %v", r)
		}
	}()
	return h(ctx, evt)
}

func (d *Dispatcher) observe(kind Kind, status string) {
	if d.outcomes == nil {
		return
	}
	d.outcomes.WithLabelValues(string(kind), status).Inc()
}
