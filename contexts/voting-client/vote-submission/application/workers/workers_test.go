package workers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ballotcast/contexts/voting-client/vote-submission/adapters/memory"
	"ballotcast/contexts/voting-client/vote-submission/application/lifecycle"
	"ballotcast/contexts/voting-client/vote-submission/domain/entities"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

type capturingSubscriber struct {
	topic   string
	group   string
	handler func(context.Context, ports.EventEnvelope) error
}

func (s *capturingSubscriber) Subscribe(
	_ context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	s.topic = topic
	s.group = consumerGroup
	s.handler = handler
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []ports.EventEnvelope
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func TestClosureConsumerSignalsMonitor(t *testing.T) {
	monitor := lifecycle.NewMonitor(lifecycle.Dependencies{DedupWindow: time.Minute})
	subscriber := &capturingSubscriber{}
	consumer := ClosureConsumer{Subscriber: subscriber, Monitor: monitor}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if subscriber.topic != ports.TopicPollClosed || subscriber.group != defaultClosureCG {
		t.Fatalf("unexpected subscription %s/%s", subscriber.topic, subscriber.group)
	}

	data, _ := json.Marshal(map[string]string{"poll_id": "poll-1"})
	if err := subscriber.handler(context.Background(), ports.EventEnvelope{EventID: "e1", Data: data}); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if err := subscriber.handler(context.Background(), ports.EventEnvelope{EventID: "e2", PartitionKey: "poll-1", Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !monitor.IsClosed("poll-1") || monitor.Closures() != 1 {
		t.Fatalf("expected one genuine closure, got %d", monitor.Closures())
	}
	if err := subscriber.handler(context.Background(), ports.EventEnvelope{EventID: "e3", Data: json.RawMessage(`not-json`)}); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
}

func TestClosureConsumerDisabled(t *testing.T) {
	subscriber := &capturingSubscriber{}
	consumer := ClosureConsumer{Subscriber: subscriber, Disabled: true}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if subscriber.handler != nil {
		t.Fatal("expected no subscription when disabled")
	}
}

func TestClosureWatcherPublishesOnceForClosedPoll(t *testing.T) {
	backend := memory.NewBackend()
	backend.PutPoll(entities.Poll{PollID: "poll-1"})
	publisher := &recordingPublisher{}
	watcher := &ClosureWatcher{Polls: backend, Publisher: publisher}
	watcher.Watch("poll-1")
	watcher.Watch("missing")

	if err := watcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once failed: %v", err)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no events for open poll, got %d", len(publisher.events))
	}

	backend.ClosePoll("poll-1")
	if err := watcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once failed: %v", err)
	}
	if err := watcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once failed: %v", err)
	}
	if len(publisher.events) != 1 || publisher.topics[0] != ports.TopicPollClosed {
		t.Fatalf("expected one poll.closed event, got %v", publisher.topics)
	}
	if publisher.events[0].PartitionKey != "poll-1" {
		t.Fatalf("expected partition key poll-1, got %s", publisher.events[0].PartitionKey)
	}
}
