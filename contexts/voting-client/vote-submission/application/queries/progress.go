package queries

import (
	"context"
	"strings"

	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
	"ballotcast/contexts/voting-client/vote-submission/domain/services"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

type ProgressView struct {
	PollID           string
	ParticipantKey   string
	VoteAmount       int
	VotesUsed        int
	RemainingVotes   int
	ResumeCounter    int
	MaxVotesOverride *int
	Completed        bool
}

type ProgressQuery struct {
	Progress ports.ProgressRepository
}

// Get reports remaining votes for the participant. A voteAmount of zero
// leaves RemainingVotes at zero.
func (q ProgressQuery) Get(ctx context.Context, pollID string, participantKey string, voteAmount int) (ProgressView, error) {
	pollID, participantKey = strings.TrimSpace(pollID), strings.TrimSpace(participantKey)
	if pollID == "" || participantKey == "" || voteAmount < 0 {
		return ProgressView{}, domainerrors.ErrInvalidProgressInput
	}
	record, found, err := q.Progress.GetProgress(ctx, pollID, participantKey)
	if err != nil {
		return ProgressView{}, err
	}
	if !found {
		record = entities.NewVoteProgress(pollID, participantKey)
	}
	return ProgressView{
		PollID:           record.PollID,
		ParticipantKey:   record.ParticipantKey,
		VoteAmount:       voteAmount,
		VotesUsed:        record.VotesUsed,
		RemainingVotes:   services.RemainingVotes(voteAmount, record.VotesUsed),
		ResumeCounter:    record.ResumeCounter,
		MaxVotesOverride: record.MaxVotesOverride,
		Completed:        record.IsExhausted(),
	}, nil
}
