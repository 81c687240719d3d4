package commands

import (
	"context"
	"sync"
	"testing"
	"time"

	"ballotcast/contexts/voting-client/vote-submission/adapters/memory"
	"ballotcast/contexts/voting-client/vote-submission/application/lifecycle"
	"ballotcast/contexts/voting-client/vote-submission/application/progress"
	"ballotcast/contexts/voting-client/vote-submission/application/sessions"
	"ballotcast/contexts/voting-client/vote-submission/application/validation"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

const (
	testPollID        = "poll-1"
	testParticipantID = "p1"
	testEventUserID   = "user-1"
)

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, item := range p.topics {
		if item == topic {
			total++
		}
	}
	return total
}

type recordingMetrics struct {
	mu          sync.Mutex
	confirmed   int
	unconfirmed int
	retries     int
	finished    []entities.SubmissionState
}

func (m *recordingMetrics) VotesConfirmed(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmed += count
}

func (m *recordingMetrics) VotesUnconfirmed(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unconfirmed += count
}

func (m *recordingMetrics) BatchRetried() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *recordingMetrics) SubmissionFinished(state entities.SubmissionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, state)
}

func (m *recordingMetrics) ClosureSignal(bool) {}

type harness struct {
	store     *memory.Store
	backend   *memory.Backend
	sessions  *sessions.Registry
	monitor   *lifecycle.Monitor
	publisher *recordingPublisher
	metrics   *recordingMetrics
	sleeper   *recordingSleeper
	cfg       Config
}

func newHarness(seed ...entities.VoteProgress) *harness {
	store := memory.NewStore(seed)
	registry := sessions.NewRegistry(nil)
	publisher := &recordingPublisher{}
	metrics := &recordingMetrics{}
	return &harness{
		store:     store,
		backend:   memory.NewBackend(),
		sessions:  registry,
		publisher: publisher,
		metrics:   metrics,
		sleeper:   &recordingSleeper{},
		monitor: lifecycle.NewMonitor(lifecycle.Dependencies{
			Sessions:    registry,
			Publisher:   publisher,
			Clock:       store,
			IDGen:       store,
			Metrics:     metrics,
			DedupWindow: time.Minute,
		}),
		cfg: Config{
			RetryBase:       time.Millisecond,
			RetryCap:        10 * time.Millisecond,
			InterBatchDelay: -1,
			CleanupSweeps:   -1,
		},
	}
}

func (h *harness) coordinator() *Coordinator {
	return NewCoordinator(Dependencies{
		Progress:  progress.Store{Repository: h.store, Clock: h.store},
		Sessions:  h.sessions,
		Validator: validation.AnswerValidator{Polls: h.backend, Drafts: h.store},
		Monitor:   h.monitor,
		Gateway:   h.backend,
		Polls:     h.backend,
		Drafts:    h.store,
		Publisher: h.publisher,
		Clock:     h.store,
		IDGen:     h.store,
		Sleeper:   h.sleeper,
		Metrics:   h.metrics,
		Jitter:    func(time.Duration) time.Duration { return 0 },
	}, h.cfg)
}

func (h *harness) seedPoll(pollType entities.PollType, voteAmount int) entities.Poll {
	poll := entities.Poll{
		PollID:    testPollID,
		Type:      pollType,
		Multivote: voteAmount > 1,
		PossibleAnswers: []entities.Answer{
			{ID: "a1", Content: "Yes"},
			{ID: "a2", Content: "No"},
			{ID: "a3", Content: "Maybe"},
		},
	}
	h.backend.PutPoll(poll)
	h.backend.PutParticipant(testPollID, entities.Participant{
		ParticipantID: testParticipantID,
		EventUserID:   testEventUserID,
		VoteAmount:    voteAmount,
	})
	return poll
}

func submit(ctx context.Context, c *Coordinator, ballot entities.Ballot, requested int) (SubmitResult, error) {
	return c.HandleFormSubmit(ctx, SubmitCommand{
		Ballot:         &ballot,
		Poll:           &entities.Poll{PollID: testPollID},
		Participant:    &entities.Participant{ParticipantID: testParticipantID, EventUserID: testEventUserID},
		RequestedVotes: requested,
	})
}

func (h *harness) storedProgress(t *testing.T) entities.VoteProgress {
	t.Helper()
	record, found, err := h.store.GetProgress(context.Background(), testPollID, testEventUserID)
	if err != nil {
		t.Fatalf("get progress failed: %v", err)
	}
	if !found {
		return entities.NewVoteProgress(testPollID, testEventUserID)
	}
	return record
}
