package progress

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

// Store is the durable per-(poll, participant) record of votes already used.
// Every write goes straight to the repository and returns only after it has
// been committed, so an immediate reload never observes stale progress.
type Store struct {
	Repository ports.ProgressRepository
	Clock      ports.Clock
	Logger     *slog.Logger
}

// Load returns the stored progress, or a fresh record with resume counter 1
// when nothing has been persisted yet.
func (s Store) Load(ctx context.Context, pollID string, participantKey string) (entities.VoteProgress, error) {
	pollID, participantKey = strings.TrimSpace(pollID), strings.TrimSpace(participantKey)
	if pollID == "" || participantKey == "" {
		return entities.VoteProgress{}, domainerrors.ErrInvalidProgressInput
	}
	progress, found, err := s.Repository.GetProgress(ctx, pollID, participantKey)
	if err != nil {
		return entities.VoteProgress{}, err
	}
	if !found {
		return entities.NewVoteProgress(pollID, participantKey), nil
	}
	return progress, nil
}

func (s Store) GetMaxVotesOverride(ctx context.Context, pollID string, participantKey string) (*int, error) {
	progress, err := s.Load(ctx, pollID, participantKey)
	if err != nil {
		return nil, err
	}
	if value, ok := progress.Override(); ok {
		return &value, nil
	}
	return nil, nil
}

// SetMaxVotesOverride stores the participant's split-voting choice for a poll.
// It survives reloads and takes priority over per-call requested counts.
func (s Store) SetMaxVotesOverride(ctx context.Context, pollID string, participantKey string, votes int) error {
	logger := application.ResolveLogger(s.Logger)
	if votes <= 0 {
		return domainerrors.ErrInvalidProgressInput
	}
	progress, err := s.Load(ctx, pollID, participantKey)
	if err != nil {
		return err
	}
	value := votes
	progress.MaxVotesOverride = &value
	progress.UpdatedAt = s.now()
	if err := s.Repository.SaveProgress(ctx, progress); err != nil {
		return err
	}
	logger.Info("vote split override stored",
		"event", "vote_progress_override_stored",
		"module", application.ModuleName,
		"layer", "application",
		"poll_id", progress.PollID,
		"participant_key", progress.ParticipantKey,
		"max_votes_override", votes,
	)
	return nil
}

// UpsertProgress writes votesUsed and the resume counter. Passing
// entities.ResumeCounterExhausted as counter marks the quota as used up.
// Writing the same values twice is a no-op; lowering votesUsed is refused.
func (s Store) UpsertProgress(
	ctx context.Context,
	pollID string,
	counter int,
	votesUsed int,
	participantKey string,
) error {
	logger := application.ResolveLogger(s.Logger)
	if votesUsed < 0 || (counter < 1 && counter != entities.ResumeCounterExhausted) {
		return domainerrors.ErrInvalidProgressInput
	}
	progress, err := s.Load(ctx, pollID, participantKey)
	if err != nil {
		return err
	}
	if votesUsed < progress.VotesUsed {
		logger.Warn("vote progress regression refused",
			"event", "vote_progress_regression_refused",
			"module", application.ModuleName,
			"layer", "application",
			"poll_id", progress.PollID,
			"participant_key", progress.ParticipantKey,
			"stored_votes_used", progress.VotesUsed,
			"requested_votes_used", votesUsed,
		)
		return domainerrors.ErrProgressRegression
	}
	completed := counter == entities.ResumeCounterExhausted
	if progress.VotesUsed == votesUsed && progress.ResumeCounter == counter && progress.Completed == completed {
		return nil
	}

	progress.VotesUsed = votesUsed
	progress.ResumeCounter = counter
	progress.Completed = completed
	progress.UpdatedAt = s.now()
	if err := s.Repository.SaveProgress(ctx, progress); err != nil {
		return err
	}
	logger.Info("vote progress stored",
		"event", "vote_progress_stored",
		"module", application.ModuleName,
		"layer", "application",
		"poll_id", progress.PollID,
		"participant_key", progress.ParticipantKey,
		"votes_used", progress.VotesUsed,
		"resume_counter", progress.ResumeCounter,
		"completed", progress.Completed,
	)
	return nil
}

// ResetKeepingOverride clears progress for pollID while keeping the split
// override. A nil keptOverride keeps whatever override the poll already had.
func (s Store) ResetKeepingOverride(
	ctx context.Context,
	pollID string,
	participantKey string,
	keptOverride *int,
) error {
	logger := application.ResolveLogger(s.Logger)
	existing, err := s.Load(ctx, pollID, participantKey)
	if err != nil {
		return err
	}
	fresh := entities.NewVoteProgress(existing.PollID, existing.ParticipantKey)
	switch {
	case keptOverride != nil && *keptOverride > 0:
		value := *keptOverride
		fresh.MaxVotesOverride = &value
	case existing.MaxVotesOverride != nil:
		value := *existing.MaxVotesOverride
		fresh.MaxVotesOverride = &value
	}
	fresh.UpdatedAt = s.now()
	if err := s.Repository.SaveProgress(ctx, fresh); err != nil {
		return err
	}
	logger.Info("vote progress reset",
		"event", "vote_progress_reset",
		"module", application.ModuleName,
		"layer", "application",
		"poll_id", fresh.PollID,
		"participant_key", fresh.ParticipantKey,
		"override_kept", fresh.MaxVotesOverride != nil,
	)
	return nil
}

// Clear drops progress and the override for pollID.
func (s Store) Clear(ctx context.Context, pollID string, participantKey string) error {
	existing, err := s.Load(ctx, pollID, participantKey)
	if err != nil {
		return err
	}
	fresh := entities.NewVoteProgress(existing.PollID, existing.ParticipantKey)
	fresh.UpdatedAt = s.now()
	if err := s.Repository.SaveProgress(ctx, fresh); err != nil {
		return err
	}
	application.ResolveLogger(s.Logger).Info("vote progress cleared",
		"event", "vote_progress_cleared",
		"module", application.ModuleName,
		"layer", "application",
		"poll_id", fresh.PollID,
		"participant_key", fresh.ParticipantKey,
	)
	return nil
}

// ObservePoll records pollID as the participant's current poll. When the poll
// id genuinely changes, progress for the new poll starts from zero carrying
// the previous poll's override; reloading the same poll changes nothing.
// Polls that already have progress are never reset here.
func (s Store) ObservePoll(ctx context.Context, pollID string, participantKey string) (bool, error) {
	pollID, participantKey = strings.TrimSpace(pollID), strings.TrimSpace(participantKey)
	if pollID == "" || participantKey == "" {
		return false, domainerrors.ErrInvalidProgressInput
	}
	current, found, err := s.Repository.GetCurrentPoll(ctx, participantKey)
	if err != nil {
		return false, err
	}
	if found && current == pollID {
		return false, nil
	}
	if found && current != "" {
		previous, err := s.Load(ctx, current, participantKey)
		if err != nil {
			return false, err
		}
		if _, exists, err := s.Repository.GetProgress(ctx, pollID, participantKey); err != nil {
			return false, err
		} else if !exists {
			if err := s.ResetKeepingOverride(ctx, pollID, participantKey, previous.MaxVotesOverride); err != nil {
				return false, err
			}
		}
	}
	if err := s.Repository.SetCurrentPoll(ctx, participantKey, pollID); err != nil {
		return false, err
	}
	return found && current != "", nil
}

func (s Store) now() time.Time {
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	return now
}
