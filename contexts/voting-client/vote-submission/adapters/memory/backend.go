package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

const (
	RequestKindAnswer = "answer"
	RequestKindBulk   = "bulk"
)

var errBackendUnavailable = errors.New("vote backend unavailable")

// Backend is an in-process vote-acceptance service. It is used by the
// dry-run CLI mode and by tests; it never deduplicates requests.
type Backend struct {
	mu sync.Mutex

	polls        map[string]entities.Poll
	participants map[string]entities.Participant
	accepted     map[string]int
	closeAfter   map[string]int

	failNext  int
	bulkLimit int
	onRequest func(kind string, pollID string)

	answers []ports.AnswerInput
	bulks   []ports.BulkAnswerInput
}

func NewBackend() *Backend {
	return &Backend{
		polls:        make(map[string]entities.Poll),
		participants: make(map[string]entities.Participant),
		accepted:     make(map[string]int),
		closeAfter:   make(map[string]int),
	}
}

func (b *Backend) PutPoll(poll entities.Poll) {
	poll.PollID = strings.TrimSpace(poll.PollID)
	poll.PossibleAnswers = append([]entities.Answer(nil), poll.PossibleAnswers...)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls[poll.PollID] = poll
}

func (b *Backend) PutParticipant(pollID string, participant entities.Participant) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.participants[participantKeyOf(pollID, participant.ParticipantID)] = participant
}

func (b *Backend) ClosePoll(pollID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked(strings.TrimSpace(pollID))
}

// CloseAfter closes the poll as soon as votes accepted for it reach limit.
func (b *Backend) CloseAfter(pollID string, limit int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeAfter[strings.TrimSpace(pollID)] = limit
}

// FailNext makes the next count requests fail with a transport error.
func (b *Backend) FailNext(count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = count
}

// LimitBulk caps how many votes a single bulk request may have accepted.
func (b *Backend) LimitBulk(limit int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bulkLimit = limit
}

// OnRequest installs a hook that runs before each request is processed,
// outside the backend lock.
func (b *Backend) OnRequest(hook func(kind string, pollID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRequest = hook
}

func (b *Backend) SubmitAnswer(_ context.Context, input ports.AnswerInput) error {
	b.beforeRequest(RequestKindAnswer, input.PollID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answers = append(b.answers, input)
	if b.failNext > 0 {
		b.failNext--
		return errBackendUnavailable
	}
	poll, ok := b.polls[strings.TrimSpace(input.PollID)]
	if !ok {
		return domainerrors.ErrPollNotFound
	}
	if poll.Closed {
		return domainerrors.ErrPollClosed
	}
	if !input.IsLastItem {
		return nil
	}
	cycle := max(input.VoteCycle, 1)
	if got := b.acceptLocked(poll.PollID, input.ParticipantID, cycle); got < cycle {
		return domainerrors.ErrPollClosed
	}
	return nil
}

func (b *Backend) SubmitBulkAnswer(_ context.Context, input ports.BulkAnswerInput) (int, error) {
	b.beforeRequest(RequestKindBulk, input.PollID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bulks = append(b.bulks, input)
	if b.failNext > 0 {
		b.failNext--
		return 0, errBackendUnavailable
	}
	poll, ok := b.polls[strings.TrimSpace(input.PollID)]
	if !ok {
		return 0, domainerrors.ErrPollNotFound
	}
	if poll.Closed {
		return 0, domainerrors.ErrPollClosed
	}
	requested := max(input.VoteCount, 0)
	if b.bulkLimit > 0 {
		requested = min(requested, b.bulkLimit)
	}
	got := b.acceptLocked(poll.PollID, input.ParticipantID, requested)
	if got < input.VoteCount && b.polls[poll.PollID].Closed {
		return got, domainerrors.ErrPollClosed
	}
	return got, nil
}

func (b *Backend) GetPoll(_ context.Context, pollID string) (entities.Poll, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	poll, ok := b.polls[strings.TrimSpace(pollID)]
	if !ok {
		return entities.Poll{}, domainerrors.ErrPollNotFound
	}
	poll.PossibleAnswers = append([]entities.Answer(nil), poll.PossibleAnswers...)
	return poll, nil
}

func (b *Backend) GetParticipant(_ context.Context, pollID string, participantID string) (entities.Participant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	participant, ok := b.participants[participantKeyOf(pollID, participantID)]
	if !ok {
		return entities.Participant{}, domainerrors.ErrParticipantNotFound
	}
	return participant, nil
}

// Accepted returns how many votes the backend accepted for pollID.
func (b *Backend) Accepted(pollID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accepted[strings.TrimSpace(pollID)]
}

// Requests returns the number of answer and bulk requests received.
func (b *Backend) Requests() (answers int, bulks int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.answers), len(b.bulks)
}

func (b *Backend) Answers() []ports.AnswerInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ports.AnswerInput(nil), b.answers...)
}

func (b *Backend) Bulks() []ports.BulkAnswerInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ports.BulkAnswerInput(nil), b.bulks...)
}

func (b *Backend) beforeRequest(kind string, pollID string) {
	b.mu.Lock()
	hook := b.onRequest
	b.mu.Unlock()
	if hook != nil {
		hook(kind, strings.TrimSpace(pollID))
	}
}

// acceptLocked records up to count votes and closes the poll once its
// close-after limit is reached.
func (b *Backend) acceptLocked(pollID string, participantID string, count int) int {
	if limit, ok := b.closeAfter[pollID]; ok {
		count = min(count, max(limit-b.accepted[pollID], 0))
	}
	b.accepted[pollID] += count
	key := participantKeyOf(pollID, participantID)
	if participant, ok := b.participants[key]; ok {
		participant.ServerVoteCycle += count
		b.participants[key] = participant
	}
	if limit, ok := b.closeAfter[pollID]; ok && b.accepted[pollID] >= limit {
		b.closeLocked(pollID)
	}
	return count
}

func (b *Backend) closeLocked(pollID string) {
	poll, ok := b.polls[pollID]
	if !ok {
		return
	}
	poll.Closed = true
	b.polls[pollID] = poll
}

func participantKeyOf(pollID string, participantID string) string {
	return strings.TrimSpace(pollID) + "|" + strings.TrimSpace(participantID)
}

var _ ports.VoteGateway = (*Backend)(nil)
var _ ports.PollSource = (*Backend)(nil)
