package votesubmission

import (
	"log/slog"
	"time"

	"ballotcast/contexts/voting-client/vote-submission/adapters/memory"
	"ballotcast/contexts/voting-client/vote-submission/application/commands"
	"ballotcast/contexts/voting-client/vote-submission/application/lifecycle"
	"ballotcast/contexts/voting-client/vote-submission/application/progress"
	"ballotcast/contexts/voting-client/vote-submission/application/queries"
	"ballotcast/contexts/voting-client/vote-submission/application/sessions"
	"ballotcast/contexts/voting-client/vote-submission/application/validation"
	"ballotcast/contexts/voting-client/vote-submission/application/workers"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

// Module holds the process-wide collaborators. Coordinators created from one
// Module share its session registry, closure monitor and progress store.
type Module struct {
	Sessions        *sessions.Registry
	Monitor         *lifecycle.Monitor
	Progress        progress.Store
	Validator       validation.AnswerValidator
	Queries         queries.ProgressQuery
	ClosureConsumer workers.ClosureConsumer
	ClosureWatcher  *workers.ClosureWatcher

	Store   *memory.Store
	Backend *memory.Backend

	deps Dependencies
}

type Dependencies struct {
	Progress               ports.ProgressRepository
	Drafts                 ports.DraftRepository
	Gateway                ports.VoteGateway
	Polls                  ports.PollSource
	Publisher              ports.EventPublisher
	Subscriber             ports.EventSubscriber
	Clock                  ports.Clock
	IDGen                  ports.IDGenerator
	Sleeper                ports.Sleeper
	Metrics                ports.SubmissionMetrics
	Coordinator            commands.Config
	ClosureDedupWindow     time.Duration
	DisableClosureConsumer bool
	Logger                 *slog.Logger
}

func NewModule(deps Dependencies) Module {
	registry := sessions.NewRegistry(deps.Logger)
	monitor := lifecycle.NewMonitor(lifecycle.Dependencies{
		Sessions:    registry,
		Publisher:   deps.Publisher,
		Clock:       deps.Clock,
		IDGen:       deps.IDGen,
		Metrics:     deps.Metrics,
		DedupWindow: deps.ClosureDedupWindow,
		Logger:      deps.Logger,
	})
	return Module{
		Sessions: registry,
		Monitor:  monitor,
		Progress: progress.Store{
			Repository: deps.Progress,
			Clock:      deps.Clock,
			Logger:     deps.Logger,
		},
		Validator: validation.AnswerValidator{
			Polls:  deps.Polls,
			Drafts: deps.Drafts,
			Logger: deps.Logger,
		},
		Queries: queries.ProgressQuery{
			Progress: deps.Progress,
		},
		ClosureConsumer: workers.ClosureConsumer{
			Subscriber: deps.Subscriber,
			Monitor:    monitor,
			Disabled:   deps.DisableClosureConsumer || deps.Subscriber == nil,
			Logger:     deps.Logger,
		},
		ClosureWatcher: &workers.ClosureWatcher{
			Polls:     deps.Polls,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			IDGen:     deps.IDGen,
			Logger:    deps.Logger,
		},
		deps: deps,
	}
}

// NewCoordinator returns a coordinator for one caller context, such as a
// browser tab or a CLI invocation.
func (m Module) NewCoordinator() *commands.Coordinator {
	return commands.NewCoordinator(commands.Dependencies{
		Progress:  m.Progress,
		Sessions:  m.Sessions,
		Validator: m.Validator,
		Monitor:   m.Monitor,
		Gateway:   m.deps.Gateway,
		Polls:     m.deps.Polls,
		Drafts:    m.deps.Drafts,
		Publisher: m.deps.Publisher,
		Clock:     m.deps.Clock,
		IDGen:     m.deps.IDGen,
		Sleeper:   m.deps.Sleeper,
		Metrics:   m.deps.Metrics,
		Logger:    m.deps.Logger,
	}, m.deps.Coordinator)
}

// NewInMemoryModule wires the module to in-process storage and an in-process
// vote backend.
func NewInMemoryModule(seed []entities.VoteProgress, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	backend := memory.NewBackend()
	module := NewModule(Dependencies{
		Progress:           store,
		Drafts:             store,
		Gateway:            backend,
		Polls:              backend,
		Clock:              store,
		IDGen:              store,
		ClosureDedupWindow: 5 * time.Second,
		Logger:             logger,
	})
	module.Store = store
	module.Backend = backend
	return module
}
