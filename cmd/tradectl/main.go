package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/tradeflow/internal/app"
	"github.com/odyssey-erp/tradeflow/internal/ledger"
	"github.com/odyssey-erp/tradeflow/internal/platform/cache"
	"github.com/odyssey-erp/tradeflow/internal/platform/db"
	"github.com/odyssey-erp/tradeflow/internal/sequence"
	"github.com/odyssey-erp/tradeflow/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	lazy := &lazyServices{cfg: cfg, logger: logger}
	defer lazy.close()

	b := backend{
		migrate: func(ctx context.Context) (int, error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
			if err != nil {
				return 0, err
			}
			defer pool.Close()
			return db.Migrate(ctx, pool, logger)
		},
		issue: func(ctx context.Context, companyID int64, kind sequence.Kind) (sequence.Number, error) {
			s, err := lazy.get(ctx)
			if err != nil {
				return sequence.Number{}, err
			}
			return s.Sequences.Issue(ctx, companyID, kind)
		},
		repair: func(ctx context.Context, companyID int64) (ledger.RepairReport, error) {
			s, err := lazy.get(ctx)
			if err != nil {
				return ledger.RepairReport{}, err
			}
			return s.Reconciler.Repair(ctx, companyID)
		},
		enqueue: func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
			client := jobs.NewClient(cache.Options{Addr: cfg.RedisAddr}.AsynqOpts())
			defer client.Close()
			return client.Enqueue(ctx, task, opts...)
		},
	}

	if err := newRootCmd(b).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		lazy.close()
		os.Exit(1)
	}
}

// lazyServices connects only for commands that need the full wiring.
type lazyServices struct {
	cfg      *app.Config
	logger   *slog.Logger
	once     sync.Once
	services *app.Services
	err      error
}

func (l *lazyServices) get(ctx context.Context) (*app.Services, error) {
	l.once.Do(func() {
		l.services, l.err = app.NewServices(ctx, l.cfg, l.logger)
	})
	return l.services, l.err
}

func (l *lazyServices) close() {
	if l.services != nil {
		l.services.Close(l.logger)
		l.services = nil
	}
}
