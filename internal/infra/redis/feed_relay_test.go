package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
	"quiz-intake-service/internal/domain"
)

type chanBroadcaster chan domain.SubmissionSummary

func (c chanBroadcaster) Broadcast(s domain.SubmissionSummary) { c <- s }

func TestFeedRelayForwardsPublishedSubmissions(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	out := make(chanBroadcaster, 1)
	relay := NewFeedRelay(client, "intake:submissions", out, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for mr.PubSubNumSub("intake:submissions")["intake:submissions"] == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("relay never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	pub := NewFeedPublisher(client, "intake:submissions")
	if err := pub.PublishSubmission(context.Background(), domain.SubmissionSummary{ID: "abc", Name: "A"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-out:
		if got.ID != "abc" || got.Name != "A" {
			t.Fatalf("unexpected summary %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("relay did not forward the message")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("relay run: %v", err)
	}
}
