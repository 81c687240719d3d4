package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"ballotcast/contexts/voting-client/vote-submission/application/sessions"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ports.EventEnvelope
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type countingMetrics struct {
	mu         sync.Mutex
	genuine    int
	duplicates int
}

func (m *countingMetrics) VotesConfirmed(int) {}
func (m *countingMetrics) VotesUnconfirmed(int) {}
func (m *countingMetrics) BatchRetried() {}
func (m *countingMetrics) SubmissionFinished(entities.SubmissionState) {}
func (m *countingMetrics) ClosureSignal(genuine bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if genuine {
		m.genuine++
	} else {
		m.duplicates++
	}
}

func TestOnClosedIgnoresDuplicatesInsideWindow(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	registry := sessions.NewRegistry(nil)
	publisher := &recordingPublisher{}
	metrics := &countingMetrics{}
	monitor := NewMonitor(Dependencies{
		Sessions:    registry,
		Publisher:   publisher,
		Clock:       clock,
		Metrics:     metrics,
		DedupWindow: 5 * time.Second,
	})
	if err := registry.Register(entities.SubmissionSession{SessionID: "s1", ParticipantKey: "user-1", PollID: "poll-1"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if !monitor.OnClosed(context.Background(), "poll-1") {
		t.Fatal("expected first closure to be genuine")
	}
	clock.advance(time.Second)
	if monitor.OnClosed(context.Background(), "poll-1") {
		t.Fatal("expected repeat inside window to be ignored")
	}

	if !monitor.IsClosed("poll-1") || !monitor.AnyClosed() {
		t.Fatal("expected poll-1 closed")
	}
	if monitor.IsClosed("poll-2") {
		t.Fatal("expected poll-2 open")
	}
	if registry.IsActive("s1") {
		t.Fatal("expected sessions deactivated on closure")
	}
	if monitor.Closures() != 1 || publisher.count() != 1 {
		t.Fatalf("expected one closure handled, got closures=%d published=%d", monitor.Closures(), publisher.count())
	}
	if metrics.genuine != 1 || metrics.duplicates != 1 {
		t.Fatalf("unexpected closure metrics: %+v", metrics)
	}
}

func TestDoneWakesWaiters(t *testing.T) {
	monitor := NewMonitor(Dependencies{})
	done := monitor.Done("poll-1")
	select {
	case <-done:
		t.Fatal("expected open poll channel to block")
	default:
	}

	go monitor.OnClosed(context.Background(), "poll-1")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected waiter to wake on closure")
	}
}

func TestConcurrentClosureSignalsHandledOnce(t *testing.T) {
	publisher := &recordingPublisher{}
	monitor := NewMonitor(Dependencies{Publisher: publisher, DedupWindow: time.Minute})
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.OnClosed(context.Background(), "poll-1")
		}()
	}
	wg.Wait()
	if monitor.Closures() != 1 || publisher.count() != 1 {
		t.Fatalf("expected closure handled once, got closures=%d published=%d", monitor.Closures(), publisher.count())
	}
}

func TestRepeatClosureAfterWindowLeavesOtherSessionsActive(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	registry := sessions.NewRegistry(nil)
	publisher := &recordingPublisher{}
	metrics := &countingMetrics{}
	monitor := NewMonitor(Dependencies{
		Sessions:    registry,
		Publisher:   publisher,
		Clock:       clock,
		Metrics:     metrics,
		DedupWindow: 5 * time.Second,
	})

	if !monitor.OnClosed(context.Background(), "poll-a") {
		t.Fatal("expected first closure to be genuine")
	}
	if err := registry.Register(entities.SubmissionSession{SessionID: "s-b", ParticipantKey: "user-1", PollID: "poll-b"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	clock.advance(6 * time.Second)
	if monitor.OnClosed(context.Background(), "poll-a") {
		t.Fatal("expected repeat for an already closed poll to be ignored")
	}
	if !registry.IsActive("s-b") {
		t.Fatal("expected session on poll-b to stay active")
	}
	if monitor.Closures() != 1 || publisher.count() != 1 {
		t.Fatalf("expected one closure handled, got closures=%d published=%d", monitor.Closures(), publisher.count())
	}
	if metrics.genuine != 1 || metrics.duplicates != 1 {
		t.Fatalf("unexpected closure metrics: %+v", metrics)
	}
}
