package commands

import (
	"context"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

func (c *Coordinator) publishProgress(ctx context.Context, session entities.SubmissionSession, confirmed int, expected int) {
	c.publish(ctx, ports.TopicVotingProgress, session, map[string]any{
		"poll_id":         session.PollID,
		"participant_key": session.ParticipantKey,
		"session_id":      session.SessionID,
		"confirmed":       confirmed,
		"expected":        expected,
	})
}

func (c *Coordinator) publishCompleted(ctx context.Context, session entities.SubmissionSession, result SubmitResult) {
	c.publish(ctx, ports.TopicSubmissionCompleted, session, map[string]any{
		"poll_id":         session.PollID,
		"participant_key": session.ParticipantKey,
		"session_id":      session.SessionID,
		"state":           string(result.State),
		"reason":          string(result.Reason),
		"confirmed":       result.Confirmed,
		"votes_used":      result.VotesUsed,
	})
}

func (c *Coordinator) publish(ctx context.Context, topic string, session entities.SubmissionSession, data map[string]any) {
	if c.deps.Publisher == nil {
		return
	}
	logger := application.ResolveLogger(c.deps.Logger)
	eventID, err := c.newID(ctx)
	if err != nil {
		logger.Warn("event id generation failed",
			"event", "vote_submission_event_id_failed",
			"module", application.ModuleName,
			"layer", "application",
			"topic", topic,
			"session_id", session.SessionID,
			"error", err.Error(),
		)
		return
	}
	envelope, err := application.NewEnvelope(eventID, topic, session.PollID, c.now(), data)
	if err != nil {
		return
	}
	if err := c.deps.Publisher.Publish(ctx, topic, envelope); err != nil {
		logger.Warn("event publish failed",
			"event", "vote_submission_publish_failed",
			"module", application.ModuleName,
			"layer", "application",
			"topic", topic,
			"session_id", session.SessionID,
			"error", err.Error(),
		)
	}
}
