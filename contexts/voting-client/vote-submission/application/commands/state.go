package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

// UIState is what a presentation layer renders for this coordinator.
// Submitting and Locked are cleared on every exit path of HandleFormSubmit.
type UIState struct {
	PollID     string
	Submitting bool
	Locked     bool
	State      entities.SubmissionState
	Reason     entities.AbortReason
	Expected   int
	Confirmed  int
	VotesUsed  int
	VoteAmount int
}

func (c *Coordinator) UIState() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ui
}

// Subscribe registers an observer that receives every UI state change.
// The returned func removes it.
func (c *Coordinator) Subscribe(observer func(UIState)) func() {
	if observer == nil {
		return func() {}
	}
	c.mu.Lock()
	c.observers = append(c.observers, observer)
	index := len(c.observers) - 1
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if index < len(c.observers) {
			c.observers[index] = nil
		}
	}
}

// Close stops pending cleanup sweeps and waits for them to exit.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	c.sweeps.Wait()
}

func (c *Coordinator) begin(poll entities.Poll, participant entities.Participant, expected int, votesUsed int) {
	c.mu.Lock()
	c.running++
	c.mu.Unlock()
	c.setState(func(ui *UIState) {
		*ui = UIState{
			PollID:     poll.PollID,
			Submitting: true,
			Locked:     true,
			State:      entities.StateSubmitting,
			Expected:   expected,
			VotesUsed:  votesUsed,
			VoteAmount: participant.VoteAmount,
		}
	})
}

func (c *Coordinator) progressed(pollID string, confirmed int) {
	c.setState(func(ui *UIState) {
		if ui.PollID == pollID {
			ui.Confirmed = confirmed
		}
	})
}

// finish is the only place a registered session is released.
func (c *Coordinator) finish(ctx context.Context, session entities.SubmissionSession, result SubmitResult) {
	c.deps.Sessions.Deactivate(session.SessionID)
	c.mu.Lock()
	c.running--
	c.mu.Unlock()
	c.setState(func(ui *UIState) {
		ui.Submitting = false
		ui.Locked = false
		ui.State = result.State
		ui.Reason = result.Reason
		ui.Confirmed = result.Confirmed
		if result.VotesUsed > ui.VotesUsed {
			ui.VotesUsed = result.VotesUsed
		}
	})
	c.metrics().SubmissionFinished(result.State)
	c.publishCompleted(context.WithoutCancel(ctx), session, result)
	c.scheduleSweep(session.ParticipantKey)
}

// scheduleSweep re-checks the lock flags a few times after a submission ends
// and clears them if a late signal set them again while nothing is running.
func (c *Coordinator) scheduleSweep(participantKey string) {
	if c.cfg.CleanupSweeps <= 0 {
		return
	}
	select {
	case <-c.stop:
		return
	default:
	}
	c.sweeps.Add(1)
	go func() {
		defer c.sweeps.Done()
		timer := time.NewTimer(c.cfg.CleanupInterval)
		defer timer.Stop()
		for i := 0; i < c.cfg.CleanupSweeps; i++ {
			select {
			case <-c.stop:
				return
			case <-timer.C:
			}
			if c.deps.Sessions.HasActive(participantKey) {
				return
			}
			c.clearStaleFlags()
			timer.Reset(c.cfg.CleanupInterval)
		}
	}()
}

func (c *Coordinator) clearStaleFlags() {
	c.mu.Lock()
	if c.running > 0 || (!c.ui.Submitting && !c.ui.Locked) {
		c.mu.Unlock()
		return
	}
	c.ui.Submitting = false
	c.ui.Locked = false
	snapshot, observers := c.ui, c.copyObserversLocked()
	c.mu.Unlock()
	application.ResolveLogger(c.deps.Logger).Warn("stale submission flags cleared by sweep",
		"event", "vote_submission_flags_swept",
		"module", application.ModuleName,
		"layer", "application",
		"poll_id", snapshot.PollID,
	)
	notify(observers, snapshot)
}

func (c *Coordinator) setState(mutate func(*UIState)) {
	c.mu.Lock()
	mutate(&c.ui)
	snapshot, observers := c.ui, c.copyObserversLocked()
	c.mu.Unlock()
	notify(observers, snapshot)
}

func (c *Coordinator) copyObserversLocked() []func(UIState) {
	observers := make([]func(UIState), 0, len(c.observers))
	for _, observer := range c.observers {
		if observer != nil {
			observers = append(observers, observer)
		}
	}
	return observers
}

func notify(observers []func(UIState), snapshot UIState) {
	for _, observer := range observers {
		observer(snapshot)
	}
}

// sleep waits for d unless ctx is cancelled or the poll closes first.
func (c *Coordinator) sleep(ctx context.Context, pollID string, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	sleepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := c.deps.Monitor.Done(pollID)
	go func() {
		select {
		case <-done:
			cancel()
		case <-sleepCtx.Done():
		}
	}()
	sleeper := c.deps.Sleeper
	if sleeper == nil {
		sleeper = timerSleeper{}
	}
	return sleeper.Sleep(sleepCtx, d)
}

func (c *Coordinator) jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	if c.deps.Jitter != nil {
		return c.deps.Jitter(limit)
	}
	return rand.N(limit)
}

func (c *Coordinator) metrics() ports.SubmissionMetrics {
	return application.ResolveMetrics(c.deps.Metrics)
}

func (c *Coordinator) now() time.Time {
	now := time.Now().UTC()
	if c.deps.Clock != nil {
		now = c.deps.Clock.Now().UTC()
	}
	return now
}

func (c *Coordinator) newID(ctx context.Context) (string, error) {
	if c.deps.IDGen != nil {
		return c.deps.IDGen.NewID(ctx)
	}
	return fmt.Sprintf("session-%d", c.now().UnixNano()), nil
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
