package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

// ClosureWatcher polls the backend for the watched polls and publishes
// poll.closed once one of them reports closed.
type ClosureWatcher struct {
	Polls     ports.PollSource
	Publisher ports.EventPublisher
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger

	mu      sync.Mutex
	watched map[string]struct{}
}

func (w *ClosureWatcher) Watch(pollID string) {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched == nil {
		w.watched = make(map[string]struct{})
	}
	w.watched[pollID] = struct{}{}
}

// RunOnce checks every watched poll once. Closed polls stop being watched.
func (w *ClosureWatcher) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(w.Logger)
	if w.Polls == nil {
		return nil
	}
	for _, pollID := range w.snapshot() {
		poll, err := w.Polls.GetPoll(ctx, pollID)
		if err != nil {
			logger.Warn("poll closure check failed",
				"event", "vote_closure_watch_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"poll_id", pollID,
				"error", err.Error(),
			)
			continue
		}
		if !poll.Closed {
			continue
		}
		if err := w.publishClosed(ctx, pollID); err != nil {
			return err
		}
		w.unwatch(pollID)
	}
	return nil
}

// Run calls RunOnce every interval until ctx is cancelled.
func (w *ClosureWatcher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := w.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *ClosureWatcher) publishClosed(ctx context.Context, pollID string) error {
	logger := application.ResolveLogger(w.Logger)
	if w.Publisher == nil {
		return nil
	}
	now := time.Now().UTC()
	if w.Clock != nil {
		now = w.Clock.Now().UTC()
	}
	eventID := fmt.Sprintf("%s-closed-%d", pollID, now.UnixNano())
	if w.IDGen != nil {
		id, err := w.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		eventID = id
	}
	envelope, err := application.NewEnvelope(eventID, ports.TopicPollClosed, pollID, now, map[string]any{
		"poll_id":   pollID,
		"closed_at": now.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := w.Publisher.Publish(ctx, ports.TopicPollClosed, envelope); err != nil {
		logger.Error("poll.closed publish failed",
			"event", "vote_closure_watch_publish_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"poll_id", pollID,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("poll closure detected by watcher",
		"event", "vote_closure_watch_detected",
		"module", application.ModuleName,
		"layer", "worker",
		"poll_id", pollID,
	)
	return nil
}

func (w *ClosureWatcher) snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	items := make([]string, 0, len(w.watched))
	for pollID := range w.watched {
		items = append(items, pollID)
	}
	return items
}

func (w *ClosureWatcher) unwatch(pollID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, pollID)
}
