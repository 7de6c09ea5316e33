package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/tradeflow/internal/ledger"
	"github.com/odyssey-erp/tradeflow/internal/lifecycle"
	"github.com/odyssey-erp/tradeflow/internal/observability"
	"github.com/odyssey-erp/tradeflow/internal/outbox"
	"github.com/odyssey-erp/tradeflow/internal/platform/cache"
	"github.com/odyssey-erp/tradeflow/internal/platform/db"
	"github.com/odyssey-erp/tradeflow/internal/reporting"
	"github.com/odyssey-erp/tradeflow/internal/sequence"
	"github.com/odyssey-erp/tradeflow/internal/shared"
)

// Services holds the wired domain components shared by the binaries.
type Services struct {
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	RedisOpts   cache.Options
	Metrics     *observability.Metrics
	Sequences   *sequence.Generator
	Dispatcher  *outbox.Dispatcher
	Projector   *ledger.Projector
	Reconciler  *ledger.Reconciler
	ReportCache *reporting.Cache
	Reporting   *reporting.Service
	Lifecycle   *lifecycle.Service
}

// NewServices connects to PostgreSQL and Redis and wires every component.
// Redis is optional: when it cannot be reached the dashboard reads through.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, err
	}
	fx, err := cfg.Converter()
	if err != nil {
		pool.Close()
		return nil, err
	}

	redisOpts := cache.Options{Addr: cfg.RedisAddr}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Warn("redis unavailable, dashboard cache disabled", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	registerer := metrics.Registerer()

	sequences := sequence.NewGenerator(sequence.NewPgStore(pool), sequence.Options{
		MaxAttempts: cfg.SequenceMaxAttempts,
		Logger:      logger,
		Metrics:     sequence.NewMetrics(registerer),
	})

	dispatcher := outbox.NewDispatcher(outbox.DispatcherConfig{
		Store:       outbox.NewRepository(pool),
		Logger:      logger,
		Registerer:  registerer,
		MaxAttempts: cfg.OutboxMaxAttempts,
		BatchSize:   cfg.OutboxBatchSize,
	})

	ledgerRepo := ledger.NewRepository(pool)
	projector := ledger.NewProjector(ledgerRepo, ledgerRepo, fx, logger, ledger.NewMetrics(registerer))
	projector.Register(dispatcher)
	reconciler := ledger.NewReconciler(projector, ledgerRepo, logger, cfg.OutboxBatchSize)

	reportCache := reporting.NewCache(redisClient, cfg.DashboardCacheTTL, logger)
	reportService := reporting.NewService(reporting.NewRepository(pool), reportCache, logger)

	lifecycleService := lifecycle.NewService(lifecycle.Config{
		Repo: lifecycle.NewRepository(pool, db.TxOptions{
			LockTimeout:      cfg.DBLockTimeout,
			StatementTimeout: cfg.DBStatementTimeout,
		}),
		Sequences:    sequences,
		Events:       dispatcher,
		Dashboard:    reportService,
		Audit:        shared.NewAuditLogger(pool),
		Idempotency:  shared.NewIdempotencyStore(pool),
		Logger:       logger,
		Metrics:      lifecycle.NewMetrics(registerer),
		PaymentTerms: cfg.PaymentTerms(),
		BaseCurrency: cfg.BaseCurrency,
	})

	return &Services{
		Pool:        pool,
		Redis:       redisClient,
		RedisOpts:   redisOpts,
		Metrics:     metrics,
		Sequences:   sequences,
		Dispatcher:  dispatcher,
		Projector:   projector,
		Reconciler:  reconciler,
		ReportCache: reportCache,
		Reporting:   reportService,
		Lifecycle:   lifecycleService,
	}, nil
}

// Close releases connections.
func (s *Services) Close(logger *slog.Logger) {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	s.Pool.Close()
}
