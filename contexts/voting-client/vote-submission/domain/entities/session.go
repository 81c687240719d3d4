package entities

import "time"

type SubmissionSession struct {
	SessionID      string
	ParticipantKey string
	PollID         string
	ExpectedVotes  int
	Active         bool
	StartedAt      time.Time
}

type SubmissionState string

const (
	StateIdle       SubmissionState = "idle"
	StateSubmitting SubmissionState = "submitting"
	StateCompleted  SubmissionState = "completed"
	StateExhausted  SubmissionState = "exhausted"
	StateAborted    SubmissionState = "aborted"
)

type AbortReason string

const (
	AbortReasonNone             AbortReason = ""
	AbortReasonPollClosed       AbortReason = "poll_closed"
	AbortReasonSessionConflict  AbortReason = "session_conflict"
	AbortReasonInvalidAnswer    AbortReason = "invalid_answer"
	AbortReasonTransportFailure AbortReason = "transport_failure"
)
