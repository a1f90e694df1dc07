package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"quiz-intake-service/internal/domain"
)

// Broadcaster delivers a summary to the subscribers of one process.
type Broadcaster interface {
	Broadcast(summary domain.SubmissionSummary)
}

// FeedPublisher announces created submissions on a Redis channel so that the
// live feed of every worker sees them, not only the worker that stored them.
type FeedPublisher struct {
	client  *redis.Client
	channel string
}

func NewFeedPublisher(client *redis.Client, channel string) *FeedPublisher {
	return &FeedPublisher{client: client, channel: channel}
}

func (p *FeedPublisher) PublishSubmission(ctx context.Context, summary domain.SubmissionSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}

// FeedRelay copies channel messages into the local feed.
type FeedRelay struct {
	client  *redis.Client
	channel string
	feed    Broadcaster
	logger  *zap.Logger
}

func NewFeedRelay(client *redis.Client, channel string, feed Broadcaster, logger *zap.Logger) *FeedRelay {
	return &FeedRelay{client: client, channel: channel, feed: feed, logger: logger}
}

// Run blocks until ctx is done. go-redis reconnects the subscription on its own.
func (r *FeedRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var summary domain.SubmissionSummary
			if err := json.Unmarshal([]byte(msg.Payload), &summary); err != nil {
				r.logger.Warn("dropping malformed feed message", zap.Error(err))
				continue
			}
			r.feed.Broadcast(summary)
		}
	}
}
