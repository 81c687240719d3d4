package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/ports"

	"github.com/google/uuid"
)

type progressKey struct {
	pollID         string
	participantKey string
}

// Store keeps progress, drafts and current-poll markers in process memory.
type Store struct {
	mu sync.RWMutex

	progress    map[progressKey]entities.VoteProgress
	drafts      map[progressKey]entities.BallotDraft
	currentPoll map[string]string
}

func NewStore(seed []entities.VoteProgress) *Store {
	progress := make(map[progressKey]entities.VoteProgress, len(seed))
	for _, item := range seed {
		progress[keyOf(item.PollID, item.ParticipantKey)] = cloneProgress(item)
	}
	return &Store{
		progress:    progress,
		drafts:      make(map[progressKey]entities.BallotDraft),
		currentPoll: make(map[string]string),
	}
}

func (s *Store) GetProgress(_ context.Context, pollID string, participantKey string) (entities.VoteProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.progress[keyOf(pollID, participantKey)]
	if !ok {
		return entities.VoteProgress{}, false, nil
	}
	return cloneProgress(item), true, nil
}

func (s *Store) SaveProgress(_ context.Context, progress entities.VoteProgress) error {
	progress.PollID = strings.TrimSpace(progress.PollID)
	progress.ParticipantKey = strings.TrimSpace(progress.ParticipantKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[keyOf(progress.PollID, progress.ParticipantKey)] = cloneProgress(progress)
	return nil
}

func (s *Store) GetCurrentPoll(_ context.Context, participantKey string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pollID, ok := s.currentPoll[strings.TrimSpace(participantKey)]
	return pollID, ok, nil
}

func (s *Store) SetCurrentPoll(_ context.Context, participantKey string, pollID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPoll[strings.TrimSpace(participantKey)] = strings.TrimSpace(pollID)
	return nil
}

func (s *Store) SaveDraft(_ context.Context, draft entities.BallotDraft) error {
	draft.Ballot.MultipleAnswerIDs = append([]string(nil), draft.Ballot.MultipleAnswerIDs...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[keyOf(draft.PollID, draft.ParticipantKey)] = draft
	return nil
}

func (s *Store) GetDraft(_ context.Context, pollID string, participantKey string) (entities.BallotDraft, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	draft, ok := s.drafts[keyOf(pollID, participantKey)]
	return draft, ok, nil
}

func (s *Store) DeleteDraft(_ context.Context, pollID string, participantKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, keyOf(pollID, participantKey))
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func keyOf(pollID string, participantKey string) progressKey {
	return progressKey{pollID: strings.TrimSpace(pollID), participantKey: strings.TrimSpace(participantKey)}
}

func cloneProgress(item entities.VoteProgress) entities.VoteProgress {
	if item.MaxVotesOverride != nil {
		value := *item.MaxVotesOverride
		item.MaxVotesOverride = &value
	}
	return item
}

var _ ports.ProgressRepository = (*Store)(nil)
var _ ports.DraftRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
