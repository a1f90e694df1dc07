package client

import (
	"context"
	"time"
)

const (
	backoffStep = 2 * time.Second
	backoffCap  = 10 * time.Second

	// DefaultHealthTimeout bounds the whole health polling phase.
	DefaultHealthTimeout = 2 * time.Minute
)

// BackoffDelay is the wait after the given 1-based probe attempt:
// min(2s*attempt, 10s).
func BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt >= int(backoffCap/backoffStep) {
		return backoffCap
	}
	return time.Duration(attempt) * backoffStep
}

// Clock abstracts time so the polling loop can be tested without waiting.
type Clock interface {
	Now() time.Time
	// Sleep returns early with ctx.Err() when ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
