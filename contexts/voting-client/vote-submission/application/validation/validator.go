package validation

import (
	"context"
	"log/slog"
	"strings"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

// AnswerValidator checks a ballot against the poll's current option set. A
// ballot that no longer fits the poll has its persisted draft discarded.
type AnswerValidator struct {
	Polls  ports.PollSource
	Drafts ports.DraftRepository
	Logger *slog.Logger
}

// Validate refreshes the poll from the backend when a PollSource is configured
// so that options removed server-side are detected.
func (v AnswerValidator) Validate(
	ctx context.Context,
	ballot entities.Ballot,
	poll entities.Poll,
	participantKey string,
) (entities.ResolvedAnswers, error) {
	logger := application.ResolveLogger(v.Logger)
	if v.Polls != nil && strings.TrimSpace(poll.PollID) != "" {
		fresh, err := v.Polls.GetPoll(ctx, poll.PollID)
		if err != nil {
			logger.Warn("poll refresh before validation failed",
				"event", "vote_validation_poll_refresh_failed",
				"module", application.ModuleName,
				"layer", "application",
				"poll_id", poll.PollID,
				"error", err.Error(),
			)
			return entities.ResolvedAnswers{}, err
		}
		poll = fresh
	}
	resolved, err := ValidateAgainst(ballot, poll)
	if err != nil {
		v.discardDraft(ctx, poll.PollID, participantKey)
		logger.Warn("ballot rejected by validation",
			"event", "vote_validation_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"poll_id", poll.PollID,
			"participant_key", participantKey,
			"ballot_kind", string(ballot.Kind()),
		)
		return entities.ResolvedAnswers{}, err
	}
	return resolved, nil
}

// ValidateAgainst resolves ballot against the given poll snapshot without
// contacting the backend.
func ValidateAgainst(ballot entities.Ballot, poll entities.Poll) (entities.ResolvedAnswers, error) {
	kind := ballot.Kind()
	switch kind {
	case entities.BallotKindAbstain:
		return entities.ResolvedAnswers{Kind: kind}, nil
	case entities.BallotKindSingle, entities.BallotKindMultiple:
	default:
		return entities.ResolvedAnswers{}, domainerrors.ErrInvalidAnswer
	}

	ids := ballot.AnswerIDs()
	if kind == entities.BallotKindMultiple && len(ids) > 1 && !poll.IsMultipleChoice() {
		return entities.ResolvedAnswers{}, domainerrors.ErrInvalidAnswer
	}
	seen := make(map[string]struct{}, len(ids))
	answers := make([]entities.Answer, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			return entities.ResolvedAnswers{}, domainerrors.ErrInvalidAnswer
		}
		if _, dup := seen[id]; dup {
			return entities.ResolvedAnswers{}, domainerrors.ErrInvalidAnswer
		}
		seen[id] = struct{}{}
		answer, ok := poll.AnswerByID(id)
		if !ok {
			return entities.ResolvedAnswers{}, domainerrors.ErrInvalidAnswer
		}
		answers = append(answers, answer)
	}
	return entities.ResolvedAnswers{Kind: kind, Answers: answers}, nil
}

func (v AnswerValidator) discardDraft(ctx context.Context, pollID string, participantKey string) {
	if v.Drafts == nil || strings.TrimSpace(pollID) == "" || strings.TrimSpace(participantKey) == "" {
		return
	}
	if err := v.Drafts.DeleteDraft(ctx, pollID, participantKey); err != nil {
		application.ResolveLogger(v.Logger).Warn("stale ballot draft delete failed",
			"event", "vote_validation_draft_delete_failed",
			"module", application.ModuleName,
			"layer", "application",
			"poll_id", pollID,
			"participant_key", participantKey,
			"error", err.Error(),
		)
	}
}
