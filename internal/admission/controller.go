// Package admission bounds the number of requests one worker process handles
// concurrently. The counter is process-local; N workers admit up to N×ceiling.
package admission

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// RetryAfterSeconds is the advisory delay sent with every busy response.
const RetryAfterSeconds = "2"

// Status is the body of health and busy responses.
type Status struct {
	Status         string `json:"status"`
	ActiveRequests int64  `json:"activeRequests"`
}

// Controller counts in-flight requests against a fixed ceiling.
type Controller struct {
	ceiling  int64
	active   atomic.Int64
	gauge    prometheus.Gauge
	rejected prometheus.Counter
}

// Option customizes a Controller.
type Option func(*Controller)

// WithMetrics mirrors the counter into a gauge and counts rejections.
func WithMetrics(active prometheus.Gauge, rejected prometheus.Counter) Option {
	return func(c *Controller) {
		c.gauge = active
		c.rejected = rejected
	}
}

func NewController(ceiling int, opts ...Option) *Controller {
	if ceiling < 1 {
		ceiling = 1
	}
	c := &Controller{ceiling: int64(ceiling)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Active returns the current number of in-flight gated requests.
func (c *Controller) Active() int64 {
	return c.active.Load()
}

func (c *Controller) Ceiling() int64 {
	return c.ceiling
}

// Acquire increments the counter and reports whether the request is admitted.
// The returned release must be called exactly once whatever the outcome; it is
// idempotent so a second call is harmless.
func (c *Controller) Acquire() (release func(), admitted bool, active int64) {
	active = c.active.Add(1)
	c.observe(active)
	var once atomic.Bool
	release = func() {
		if once.CompareAndSwap(false, true) {
			c.observe(c.active.Add(-1))
		}
	}
	return release, active <= c.ceiling, active
}

// Middleware gates next. Requests over the ceiling get 429 and never reach next.
func (c *Controller) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, admitted, active := c.Acquire()
		// Runs on return, panic, or after next notices a client abort.
		defer release()

		if !admitted {
			if c.rejected != nil {
				c.rejected.Inc()
			}
			writeBusy(w, active)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HealthHandler reports load without taking a slot itself.
func (c *Controller) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	active := c.Active()
	if active >= c.ceiling {
		writeBusy(w, active)
		return
	}
	writeStatus(w, http.StatusOK, Status{Status: "ok", ActiveRequests: active})
}

func (c *Controller) observe(active int64) {
	if c.gauge != nil {
		c.gauge.Set(float64(active))
	}
}

func writeBusy(w http.ResponseWriter, active int64) {
	w.Header().Set("Retry-After", RetryAfterSeconds)
	writeStatus(w, http.StatusTooManyRequests, Status{Status: "busy", ActiveRequests: active})
}

func writeStatus(w http.ResponseWriter, code int, body Status) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
