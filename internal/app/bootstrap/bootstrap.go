package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	votesubmission "ballotcast/contexts/voting-client/vote-submission"
	httpadapter "ballotcast/contexts/voting-client/vote-submission/adapters/http"
	"ballotcast/contexts/voting-client/vote-submission/adapters/memory"
	postgresadapter "ballotcast/contexts/voting-client/vote-submission/adapters/postgres"
	sqliteadapter "ballotcast/contexts/voting-client/vote-submission/adapters/sqlite"
	"ballotcast/contexts/voting-client/vote-submission/application/commands"
	"ballotcast/contexts/voting-client/vote-submission/ports"
	"ballotcast/internal/platform/config"
	"ballotcast/internal/platform/db"
	"ballotcast/internal/platform/messaging"
	"ballotcast/internal/platform/observability"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type VoterOptions struct {
	// DryRun swaps the remote vote backend for the in-process one.
	DryRun bool
	// Offline builds only the progress side; no vote backend is configured.
	Offline bool
}

type VoterApp struct {
	Module   votesubmission.Module
	Config   config.Config
	Registry *prometheus.Registry
	// Backend is set in dry-run mode so callers can seed polls.
	Backend *memory.Backend

	bus     *messaging.Bus
	closers []func() error
	logger  *slog.Logger
}

func BuildVoter(ctx context.Context, opts VoterOptions) (*VoterApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "voter")
	app := &VoterApp{Config: cfg, logger: logger}

	progressRepo, drafts, err := app.buildProgress(ctx, cfg, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	var gateway ports.VoteGateway
	var polls ports.PollSource
	switch {
	case opts.Offline:
	case opts.DryRun:
		app.Backend = memory.NewBackend()
		gateway, polls = app.Backend, app.Backend
	default:
		if strings.TrimSpace(cfg.VoteBackendURL) == "" {
			_ = app.Close()
			return nil, errors.New("VOTE_BACKEND_URL is required unless running with --dry-run")
		}
		client := httpadapter.NewClient(cfg.VoteBackendURL, cfg.VoteBackendTimeout, logger)
		gateway, polls = client, client
	}

	app.Registry = observability.NewRegistry()
	metrics, err := observability.NewSubmissionMetrics(cfg.MetricsNamespace, app.Registry)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	clock := postgresadapter.SystemClock{}
	app.bus = messaging.NewBus(clock, logger).WithDedup(ports.TopicPollClosed, cfg.ClosureDedupWindow)

	app.Module = votesubmission.NewModule(votesubmission.Dependencies{
		Progress:   progressRepo,
		Drafts:     drafts,
		Gateway:    gateway,
		Polls:      polls,
		Publisher:  app.bus,
		Subscriber: app.bus,
		Clock:      clock,
		IDGen:      postgresadapter.UUIDGenerator{},
		Sleeper:    postgresadapter.TimerSleeper{},
		Metrics:    metrics,
		Coordinator: commands.Config{
			BatchSize:       cfg.BatchSize,
			MaxInFlight:     cfg.MaxInFlight,
			RetryAttempts:   zeroDisables(cfg.RetryAttempts),
			RetryBase:       cfg.RetryBase,
			RetryCap:        cfg.RetryCap,
			InterBatchDelay: zeroDisables(cfg.InterBatchDelay),
			CleanupSweeps:   zeroDisables(cfg.CleanupSweeps),
			CleanupInterval: cfg.CleanupSweepInterval,
		},
		ClosureDedupWindow:     cfg.ClosureDedupWindow,
		DisableClosureConsumer: !cfg.EnableClosureConsumer,
		Logger:                 logger,
	})
	return app, nil
}

// Start subscribes background consumers. They stop when ctx is cancelled.
func (a *VoterApp) Start(ctx context.Context) error {
	if err := a.Module.ClosureConsumer.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("voter app started",
		"event", "bootstrap_voter_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"progress_backend", a.Config.ProgressBackend,
		"dry_run", a.Backend != nil,
	)
	return nil
}

func (a *VoterApp) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *VoterApp) buildProgress(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
) (ports.ProgressRepository, ports.DraftRepository, error) {
	switch cfg.ProgressBackend {
	case config.ProgressBackendSQLite:
		handle, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, handle.Close)
		store := sqliteadapter.NewStore(handle.DB, logger)
		if err := store.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.ProgressBackendPostgres:
		pg, err := db.Connect(ctx, cfg.PostgresDSN, db.PostgresOptions{MaxOpenConns: cfg.MaxInFlight})
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, pg.Close)
		repo := postgresadapter.NewRepository(pg.DB, logger)
		if err := repo.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return repo, repo, nil
	default:
		store := memory.NewStore(nil)
		return store, store, nil
	}
}

// zeroDisables maps an explicit zero from the environment to the
// coordinator's "off" value; the coordinator treats zero as "use default".
func zeroDisables[T int | time.Duration](value T) T {
	if value == 0 {
		return -1
	}
	return value
}
