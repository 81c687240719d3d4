package entities

import "strings"

type PollType string

const (
	PollTypeSingleChoice   PollType = "single"
	PollTypeMultipleChoice PollType = "multiple"
)

type Answer struct {
	ID      string
	Content string
}

// Poll is the live snapshot of a poll as seen by the voting client. Closed only
// ever moves from false to true.
type Poll struct {
	PollID          string
	EventID         string
	Title           string
	Type            PollType
	Closed          bool
	PossibleAnswers []Answer
	Multivote       bool
}

func (p Poll) AnswerByID(answerID string) (Answer, bool) {
	answerID = strings.TrimSpace(answerID)
	for _, answer := range p.PossibleAnswers {
		if answer.ID == answerID {
			return answer, true
		}
	}
	return Answer{}, false
}

func (p Poll) IsMultipleChoice() bool {
	return p.Type == PollTypeMultipleChoice
}

type Participant struct {
	ParticipantID   string
	EventUserID     string
	VoteAmount      int
	ServerVoteCycle int
}

// ProgressKey is the key progress records are stored under. The event user id
// is preferred because it is stable across devices for the same event.
func (p Participant) ProgressKey() string {
	if key := strings.TrimSpace(p.EventUserID); key != "" {
		return key
	}
	return strings.TrimSpace(p.ParticipantID)
}
