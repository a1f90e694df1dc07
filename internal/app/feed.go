package app

import (
	"context"
	"sync"

	"quiz-intake-service/internal/domain"
)

// Feed fans newly created submissions out to live admin subscribers in this process.
type Feed struct {
	mu          sync.Mutex
	subscribers map[chan domain.SubmissionSummary]struct{}
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[chan domain.SubmissionSummary]struct{})}
}

// PublishSubmission broadcasts locally; it is the EventPublisher used without Redis.
func (f *Feed) PublishSubmission(_ context.Context, summary domain.SubmissionSummary) error {
	f.Broadcast(summary)
	return nil
}

// Subscribe returns a channel of summaries.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *Feed) Subscribe() (<-chan domain.SubmissionSummary, func()) {
	ch := make(chan domain.SubmissionSummary, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast never blocks: a full subscriber loses its oldest pending update.
func (f *Feed) Broadcast(summary domain.SubmissionSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- summary:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- summary
		}
	}
}

// Subscribers reports how many live subscribers are attached.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
