package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	application "ballotcast/contexts/voting-client/vote-submission/application"
	"ballotcast/contexts/voting-client/vote-submission/application/lifecycle"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

const defaultClosureCG = "vote-submission-closure-cg"

// ClosureConsumer turns server-pushed poll.closed events into monitor signals.
type ClosureConsumer struct {
	Subscriber    ports.EventSubscriber
	Monitor       *lifecycle.Monitor
	ConsumerGroup string
	Disabled      bool
	Logger        *slog.Logger
}

func (c ClosureConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("poll closure consumer disabled by feature flag",
			"event", "vote_closure_consumer_disabled",
			"module", application.ModuleName,
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultClosureCG
	}
	if err := c.Subscriber.Subscribe(ctx, ports.TopicPollClosed, group, c.handlePollClosed); err != nil {
		logger.Error("poll closure consumer subscribe failed",
			"event", "vote_closure_consumer_subscribe_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"topic", ports.TopicPollClosed,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("poll closure consumer subscribed",
		"event", "vote_closure_consumer_started",
		"module", application.ModuleName,
		"layer", "worker",
		"topic", ports.TopicPollClosed,
		"consumer_group", group,
	)
	return nil
}

func (c ClosureConsumer) handlePollClosed(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	var payload struct {
		PollID string `json:"poll_id"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("poll.closed payload decode failed",
			"event", "vote_closure_decode_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	pollID := strings.TrimSpace(payload.PollID)
	if pollID == "" {
		pollID = strings.TrimSpace(event.PartitionKey)
	}
	genuine := c.Monitor.OnClosed(ctx, pollID)
	logger.Debug("poll.closed consumed",
		"event", "vote_closure_consumed",
		"module", application.ModuleName,
		"layer", "worker",
		"event_id", event.EventID,
		"poll_id", pollID,
		"genuine", genuine,
	)
	return nil
}
