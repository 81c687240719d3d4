package entities

import "strings"

type BallotKind string

const (
	BallotKindAbstain  BallotKind = "abstain"
	BallotKindSingle   BallotKind = "single"
	BallotKindMultiple BallotKind = "multiple"
	BallotKindInvalid  BallotKind = "invalid"
)

// Ballot is the participant's selection before submission. Exactly one of
// Abstain, SingleAnswerID and MultipleAnswerIDs is populated.
type Ballot struct {
	Abstain           bool
	SingleAnswerID    string
	MultipleAnswerIDs []string
	UseAllVotes       bool
}

func (b Ballot) Kind() BallotKind {
	populated := 0
	kind := BallotKindInvalid
	if b.Abstain {
		populated++
		kind = BallotKindAbstain
	}
	if strings.TrimSpace(b.SingleAnswerID) != "" {
		populated++
		kind = BallotKindSingle
	}
	if len(b.MultipleAnswerIDs) > 0 {
		populated++
		kind = BallotKindMultiple
	}
	if populated != 1 {
		return BallotKindInvalid
	}
	return kind
}

// AnswerIDs lists every answer id referenced by the ballot.
func (b Ballot) AnswerIDs() []string {
	switch b.Kind() {
	case BallotKindSingle:
		return []string{strings.TrimSpace(b.SingleAnswerID)}
	case BallotKindMultiple:
		ids := make([]string, 0, len(b.MultipleAnswerIDs))
		for _, id := range b.MultipleAnswerIDs {
			ids = append(ids, strings.TrimSpace(id))
		}
		return ids
	default:
		return nil
	}
}

// ResolvedAnswers is a ballot after validation against the poll's current
// option set.
type ResolvedAnswers struct {
	Kind    BallotKind
	Answers []Answer
}

// IsSingleTarget reports whether every vote of the ballot lands on a single
// target (one answer or an abstention), which makes it eligible for bulk
// submission.
func (r ResolvedAnswers) IsSingleTarget() bool {
	switch r.Kind {
	case BallotKindAbstain:
		return true
	case BallotKindSingle:
		return len(r.Answers) == 1
	case BallotKindMultiple:
		return len(r.Answers) == 1
	default:
		return false
	}
}
