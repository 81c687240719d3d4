package validation

import (
	"context"
	"errors"
	"testing"

	"ballotcast/contexts/voting-client/vote-submission/adapters/memory"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	domainerrors "ballotcast/contexts/voting-client/vote-submission/domain/errors"
)

func testPoll(pollType entities.PollType) entities.Poll {
	return entities.Poll{
		PollID: "poll-1",
		Type:   pollType,
		PossibleAnswers: []entities.Answer{
			{ID: "a1", Content: "Yes"},
			{ID: "a2", Content: "No"},
		},
	}
}

func TestValidateAgainst(t *testing.T) {
	cases := []struct {
		name    string
		ballot  entities.Ballot
		poll    entities.Poll
		wantErr bool
		answers int
	}{
		{name: "abstain", ballot: entities.Ballot{Abstain: true}, poll: testPoll(entities.PollTypeSingleChoice)},
		{name: "single", ballot: entities.Ballot{SingleAnswerID: "a1"}, poll: testPoll(entities.PollTypeSingleChoice), answers: 1},
		{name: "multiple", ballot: entities.Ballot{MultipleAnswerIDs: []string{"a1", "a2"}}, poll: testPoll(entities.PollTypeMultipleChoice), answers: 2},
		{name: "multiple on single choice", ballot: entities.Ballot{MultipleAnswerIDs: []string{"a1", "a2"}}, poll: testPoll(entities.PollTypeSingleChoice), wantErr: true},
		{name: "unknown answer", ballot: entities.Ballot{SingleAnswerID: "a9"}, poll: testPoll(entities.PollTypeSingleChoice), wantErr: true},
		{name: "duplicate answer", ballot: entities.Ballot{MultipleAnswerIDs: []string{"a1", "a1"}}, poll: testPoll(entities.PollTypeMultipleChoice), wantErr: true},
		{name: "empty ballot", ballot: entities.Ballot{}, poll: testPoll(entities.PollTypeSingleChoice), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolved, err := ValidateAgainst(tc.ballot, tc.poll)
			if tc.wantErr {
				if !errors.Is(err, domainerrors.ErrInvalidAnswer) {
					t.Fatalf("expected invalid answer, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate failed: %v", err)
			}
			if len(resolved.Answers) != tc.answers {
				t.Fatalf("expected %d answers, got %d", tc.answers, len(resolved.Answers))
			}
		})
	}
}

func TestValidateDetectsRemovedOptionAndDropsDraft(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend()
	drafts := memory.NewStore(nil)
	poll := testPoll(entities.PollTypeSingleChoice)
	backend.PutPoll(poll)
	ballot := entities.Ballot{SingleAnswerID: "a2"}
	if err := drafts.SaveDraft(ctx, entities.BallotDraft{PollID: "poll-1", ParticipantKey: "user-1", Ballot: ballot}); err != nil {
		t.Fatalf("save draft failed: %v", err)
	}

	updated := poll
	updated.PossibleAnswers = poll.PossibleAnswers[:1]
	backend.PutPoll(updated)

	validator := AnswerValidator{Polls: backend, Drafts: drafts}
	if _, err := validator.Validate(ctx, ballot, poll, "user-1"); !errors.Is(err, domainerrors.ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer after option removal, got %v", err)
	}
	if _, found, _ := drafts.GetDraft(ctx, "poll-1", "user-1"); found {
		t.Fatal("expected stale draft to be discarded")
	}
}
