package queries

import (
	"context"
	"errors"
	"testing"

	"ballotcast/contexts/voting-client/vote-submission/adapters/memory"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
)

func TestProgressQueryReportsRemainingVotes(t *testing.T) {
	override := 2
	store := memory.NewStore([]entities.VoteProgress{{
		PollID:           "poll-1",
		ParticipantKey:   "user-1",
		VotesUsed:        4,
		ResumeCounter:    3,
		MaxVotesOverride: &override,
	}})
	query := ProgressQuery{Progress: store}

	view, err := query.Get(context.Background(), "poll-1", "user-1", 10)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if view.RemainingVotes != 6 || view.VotesUsed != 4 || view.ResumeCounter != 3 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.MaxVotesOverride == nil || *view.MaxVotesOverride != 2 {
		t.Fatalf("expected override 2, got %v", view.MaxVotesOverride)
	}

	fresh, err := query.Get(context.Background(), "poll-2", "user-1", 3)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if fresh.RemainingVotes != 3 || fresh.ResumeCounter != 1 {
		t.Fatalf("unexpected fresh view: %+v", fresh)
	}

	if _, err := query.Get(context.Background(), "poll-1", "", 3); !errors.Is(err, domainerrors.ErrInvalidProgressInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
