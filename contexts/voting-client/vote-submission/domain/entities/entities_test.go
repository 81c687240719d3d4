package entities

import "testing"

func TestBallotKind(t *testing.T) {
	cases := []struct {
		name   string
		ballot Ballot
		want   BallotKind
	}{
		{name: "abstain", ballot: Ballot{Abstain: true}, want: BallotKindAbstain},
		{name: "single", ballot: Ballot{SingleAnswerID: "a"}, want: BallotKindSingle},
		{name: "multiple", ballot: Ballot{MultipleAnswerIDs: []string{"a", "b"}}, want: BallotKindMultiple},
		{name: "empty", ballot: Ballot{}, want: BallotKindInvalid},
		{name: "blank single", ballot: Ballot{SingleAnswerID: "  "}, want: BallotKindInvalid},
		{name: "abstain and answer", ballot: Ballot{Abstain: true, SingleAnswerID: "a"}, want: BallotKindInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ballot.Kind(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestResolvedAnswersSingleTarget(t *testing.T) {
	if !(ResolvedAnswers{Kind: BallotKindAbstain}).IsSingleTarget() {
		t.Fatal("expected abstention to be single target")
	}
	multi := ResolvedAnswers{Kind: BallotKindMultiple, Answers: []Answer{{ID: "a"}, {ID: "b"}}}
	if multi.IsSingleTarget() {
		t.Fatal("expected two answers to need itemized submission")
	}
}

func TestParticipantProgressKeyPrefersEventUser(t *testing.T) {
	if key := (Participant{ParticipantID: "p1", EventUserID: "eu1"}).ProgressKey(); key != "eu1" {
		t.Fatalf("expected event user key, got %s", key)
	}
	if key := (Participant{ParticipantID: "p1"}).ProgressKey(); key != "p1" {
		t.Fatalf("expected participant id fallback, got %s", key)
	}
}

func TestVoteProgressExhaustedAndOverride(t *testing.T) {
	progress := NewVoteProgress("poll-1", "user-1")
	if progress.ResumeCounter != 1 || progress.IsExhausted() {
		t.Fatalf("unexpected fresh progress: %+v", progress)
	}
	progress.ResumeCounter = ResumeCounterExhausted
	if !progress.IsExhausted() {
		t.Fatal("expected exhausted sentinel to be recognised")
	}
	zero := 0
	progress.MaxVotesOverride = &zero
	if _, ok := progress.Override(); ok {
		t.Fatal("expected zero override to count as unset")
	}
}
