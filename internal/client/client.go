// Package client talks to the intake API the way the browser client does: it
// polls the health endpoint with a capped linear backoff before sending a
// submission, and never retries the submission itself.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"quiz-intake-service/internal/domain"
)

// ErrServerBusy means the server never reported healthy within the timeout.
// Nothing was sent.
var ErrServerBusy = errors.New("server busy, please try again shortly")

// StatusError carries a non-2xx submission response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("submission failed with status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL       string
	http          *http.Client
	clock         Clock
	healthPath    string
	healthTimeout time.Duration
	logger        *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock is for tests that must not really sleep.
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) { c.healthTimeout = d }
}

func WithHealthPath(path string) Option {
	return func(c *Client) { c.healthPath = path }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: 30 * time.Second},
		clock:         realClock{},
		healthPath:    "/health",
		healthTimeout: DefaultHealthTimeout,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WaitForHealthy probes until the server answers 2xx or timeout has elapsed.
// Network errors count as "not yet healthy". It never returns an error; a
// cancelled ctx reports false.
func (c *Client) WaitForHealthy(ctx context.Context, timeout time.Duration) bool {
	start := c.clock.Now()
	for attempt := 1; ; attempt++ {
		if c.probe(ctx) {
			return true
		}
		if c.clock.Now().Sub(start) >= timeout {
			return false
		}
		delay := BackoffDelay(attempt)
		c.logger.Debug("server not ready", zap.Int("attempt", attempt), zap.Duration("retry_in", delay))
		if err := c.clock.Sleep(ctx, delay); err != nil {
			return false
		}
	}
}

func (c *Client) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Submit waits for a healthy server and then sends the payload exactly once.
func (c *Client) Submit(ctx context.Context, in domain.NewSubmission) (domain.Submission, error) {
	if !c.WaitForHealthy(ctx, c.healthTimeout) {
		return domain.Submission{}, ErrServerBusy
	}

	body, err := json.Marshal(in)
	if err != nil {
		return domain.Submission{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/students", bytes.NewReader(body))
	if err != nil {
		return domain.Submission{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("send submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A failed body read must not hide the status.
		text, err := io.ReadAll(resp.Body)
		if err != nil {
			text = nil
		}
		return domain.Submission{}, &StatusError{StatusCode: resp.StatusCode, Body: string(text)}
	}

	var saved domain.Submission
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return domain.Submission{}, fmt.Errorf("decode submission: %w", err)
	}
	return saved, nil
}
