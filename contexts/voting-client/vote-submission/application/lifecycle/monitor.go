package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/domain/services"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

type Dependencies struct {
	Sessions    ports.SessionRegistry
	Publisher   ports.EventPublisher
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Metrics     ports.SubmissionMetrics
	DedupWindow time.Duration
	Logger      *slog.Logger
}

// Monitor is the single owner of poll-closure state. Closure can be noticed
// by the batch check, the per-vote check and the server push consumer at
// the same time; repeats inside the dedup window are ignored.
type Monitor struct {
	deps  Dependencies
	dedup *services.DedupWindow

	mu        sync.Mutex
	closed    map[string]chan struct{}
	anyClosed bool
	closures  int
}

func NewMonitor(deps Dependencies) *Monitor {
	return &Monitor{
		deps:   deps,
		dedup:  services.NewDedupWindow(deps.DedupWindow),
		closed: make(map[string]chan struct{}),
	}
}

// OnClosed records that pollID closed. It returns true only for the first
// signal per poll; repeats, inside the dedup window or later, return false.
func (m *Monitor) OnClosed(ctx context.Context, pollID string) bool {
	logger := application.ResolveLogger(m.deps.Logger)
	metrics := application.ResolveMetrics(m.deps.Metrics)
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return false
	}
	now := m.now()
	if !m.dedup.Admit(pollID, now) {
		metrics.ClosureSignal(false)
		logger.Debug("duplicate poll closure ignored",
			"event", "vote_poll_closure_duplicate",
			"module", application.ModuleName,
			"layer", "application",
			"poll_id", pollID,
		)
		return false
	}

	m.mu.Lock()
	done := m.channelLocked(pollID)
	select {
	case <-done:
		m.mu.Unlock()
		// Closed is monotonic; a repeat after the window changes nothing.
		metrics.ClosureSignal(false)
		logger.Debug("repeat closure for already closed poll ignored",
			"event", "vote_poll_closure_repeat",
			"module", application.ModuleName,
			"layer", "application",
			"poll_id", pollID,
		)
		return false
	default:
		close(done)
	}
	m.anyClosed = true
	m.closures++
	m.mu.Unlock()

	if m.deps.Sessions != nil {
		m.deps.Sessions.DeactivateAll()
	}
	metrics.ClosureSignal(true)
	logger.Info("poll closure observed",
		"event", "vote_poll_closed",
		"module", application.ModuleName,
		"layer", "application",
		"poll_id", pollID,
	)
	m.publishCompleted(ctx, pollID, now)
	return true
}

func (m *Monitor) IsClosed(pollID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	done, ok := m.closed[strings.TrimSpace(pollID)]
	if !ok {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once pollID has closed. Waiters use
// it to wake up from backoff and inter-batch sleeps.
func (m *Monitor) Done(pollID string) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channelLocked(strings.TrimSpace(pollID))
}

// AnyClosed reports whether any poll has closed during this process lifetime.
func (m *Monitor) AnyClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anyClosed
}

// Closures counts genuine closure signals.
func (m *Monitor) Closures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closures
}

func (m *Monitor) channelLocked(pollID string) chan struct{} {
	done, ok := m.closed[pollID]
	if !ok {
		done = make(chan struct{})
		m.closed[pollID] = done
	}
	return done
}

func (m *Monitor) publishCompleted(ctx context.Context, pollID string, now time.Time) {
	if m.deps.Publisher == nil {
		return
	}
	logger := application.ResolveLogger(m.deps.Logger)
	eventID := fmt.Sprintf("%s-closed-%d", pollID, now.UnixNano())
	if m.deps.IDGen != nil {
		id, err := m.deps.IDGen.NewID(ctx)
		if err != nil {
			logger.Warn("closure event id generation failed",
				"event", "vote_poll_closed_event_id_failed",
				"module", application.ModuleName,
				"layer", "application",
				"poll_id", pollID,
				"error", err.Error(),
			)
		} else {
			eventID = id
		}
	}
	envelope, err := application.NewEnvelope(
		eventID,
		ports.TopicSubmissionCompleted,
		pollID,
		now,
		map[string]any{
			"poll_id": pollID,
			"state":   string(entities.StateAborted),
			"reason":  string(entities.AbortReasonPollClosed),
		},
	)
	if err != nil {
		return
	}
	if err := m.deps.Publisher.Publish(ctx, ports.TopicSubmissionCompleted, envelope); err != nil {
		logger.Warn("submission completion publish failed",
			"event", "vote_poll_closed_publish_failed",
			"module", application.ModuleName,
			"layer", "application",
			"poll_id", pollID,
			"error", err.Error(),
		)
	}
}

func (m *Monitor) now() time.Time {
	now := time.Now().UTC()
	if m.deps.Clock != nil {
		now = m.deps.Clock.Now().UTC()
	}
	return now
}
