package http

const (
	ErrorCodePollClosed          = "poll_closed"
	ErrorCodePollNotFound        = "poll_not_found"
	ErrorCodeParticipantNotFound = "participant_not_found"
)

// ErrorResponse is the body of a non-2xx reply. Accepted is set by the bulk
// endpoint when part of the request was counted before the failure.
type ErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Accepted int    `json:"accepted,omitempty"`
}

// SubmitAnswerRequest is one discrete vote. AnswerID is null for abstentions.
type SubmitAnswerRequest struct {
	ParticipantID string  `json:"participant_id"`
	AnswerID      *string `json:"answer_id"`
	AnswerContent string  `json:"answer_content,omitempty"`
	Abstain       bool    `json:"abstain"`
	VoteCycle     int     `json:"vote_cycle"`
	ItemIndex     int     `json:"item_index"`
	ItemLength    int     `json:"item_length"`
	IsLastItem    bool    `json:"is_last_item"`
}

type SubmitBulkAnswerRequest struct {
	SubmitAnswerRequest
	VoteCount int `json:"vote_count"`
}

type SubmitBulkAnswerResponse struct {
	Accepted int `json:"accepted"`
}

type AnswerOption struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type PollResponse struct {
	PollID          string         `json:"poll_id"`
	EventID         string         `json:"event_id"`
	Title           string         `json:"title"`
	Type            string         `json:"type"`
	Closed          bool           `json:"closed"`
	Multivote       bool           `json:"multivote"`
	PossibleAnswers []AnswerOption `json:"possible_answers"`
}

type ParticipantResponse struct {
	ParticipantID   string `json:"participant_id"`
	EventUserID     string `json:"event_user_id"`
	VoteAmount      int    `json:"vote_amount"`
	ServerVoteCycle int    `json:"server_vote_cycle"`
}
