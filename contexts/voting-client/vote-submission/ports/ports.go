package ports

import (
	"context"
	"encoding/json"
	"time"

	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
)

type ProgressRepository interface {
	GetProgress(ctx context.Context, pollID string, participantKey string) (entities.VoteProgress, bool, error)
	SaveProgress(ctx context.Context, progress entities.VoteProgress) error
	// GetCurrentPoll returns the poll the participant last submitted for.
	GetCurrentPoll(ctx context.Context, participantKey string) (string, bool, error)
	SetCurrentPoll(ctx context.Context, participantKey string, pollID string) error
}

type DraftRepository interface {
	SaveDraft(ctx context.Context, draft entities.BallotDraft) error
	GetDraft(ctx context.Context, pollID string, participantKey string) (entities.BallotDraft, bool, error)
	DeleteDraft(ctx context.Context, pollID string, participantKey string) error
}

type SessionRegistry interface {
	Register(session entities.SubmissionSession) error
	IsActive(sessionID string) bool
	Get(sessionID string) (entities.SubmissionSession, bool)
	HasActive(participantKey string) bool
	Deactivate(sessionID string)
	DeactivateAll()
}

// AnswerInput is one discrete vote request for the vote backend.
type AnswerInput struct {
	ParticipantID string
	PollID        string
	AnswerID      string
	AnswerContent string
	Abstain       bool
	VoteCycle     int
	ItemIndex     int
	ItemLength    int
	IsLastItem    bool
}

// BulkAnswerInput encodes VoteCount identical votes in one request.
type BulkAnswerInput struct {
	AnswerInput
	VoteCount int
}

type VoteGateway interface {
	SubmitAnswer(ctx context.Context, input AnswerInput) error
	SubmitBulkAnswer(ctx context.Context, input BulkAnswerInput) (int, error)
}

type PollSource interface {
	GetPoll(ctx context.Context, pollID string) (entities.Poll, error)
	GetParticipant(ctx context.Context, pollID string, participantID string) (entities.Participant, error)
}

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

type Clock interface {
	Now() time.Time
}

type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// SubmissionMetrics receives counters from the coordinator and the closure
// monitor. Implementations must be safe for concurrent use.
type SubmissionMetrics interface {
	VotesConfirmed(count int)
	VotesUnconfirmed(count int)
	BatchRetried()
	SubmissionFinished(state entities.SubmissionState)
	ClosureSignal(genuine bool)
}
