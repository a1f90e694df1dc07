package admission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConcurrentRequestsOverCeilingAreRejected(t *testing.T) {
	const ceiling, total = 5, 12
	ctrl := NewController(ceiling)

	entered := make(chan struct{}, total)
	gate := make(chan struct{})
	handler := ctrl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-gate
		w.WriteHeader(http.StatusCreated)
	}))

	codes := make(chan int, total)
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/students", nil))
			codes <- rec.Code
		}()
	}

	// Rejections come back while the admitted requests still hold their slots.
	rejected := 0
	deadline := time.After(5 * time.Second)
	for rejected < total-ceiling {
		select {
		case code := <-codes:
			if code != http.StatusTooManyRequests {
				t.Fatalf("unexpected early status %d", code)
			}
			rejected++
		case <-deadline:
			t.Fatalf("timed out waiting for rejections, got %d", rejected)
		}
	}
	for i := 0; i < ceiling; i++ {
		<-entered
	}
	if got := ctrl.Active(); got != ceiling {
		t.Fatalf("expected %d active, got %d", ceiling, got)
	}

	close(gate)
	wg.Wait()
	close(codes)
	for code := range codes {
		if code != http.StatusCreated {
			t.Fatalf("expected admitted request to finish with 201, got %d", code)
		}
	}
	if got := ctrl.Active(); got != 0 {
		t.Fatalf("expected counter back to 0, got %d", got)
	}
}

func TestBusyResponseShape(t *testing.T) {
	ctrl := NewController(1)
	release, admitted, _ := ctrl.Acquire()
	if !admitted {
		t.Fatalf("first acquire should be admitted")
	}
	defer release()

	called := false
	handler := ctrl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/students", nil))

	if called {
		t.Fatalf("busy request must not reach the handler")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("expected Retry-After 2, got %q", rec.Header().Get("Retry-After"))
	}
	var body Status
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "busy" || body.ActiveRequests != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
	if got := ctrl.Active(); got != 1 {
		t.Fatalf("rejected request leaked a slot: active=%d", got)
	}
}

func TestCounterReleasedOnPanicAndAbort(t *testing.T) {
	ctrl := NewController(10)

	panicking := ctrl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	func() {
		defer func() { _ = recover() }()
		panicking.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()

	ctx, cancel := context.WithCancel(context.Background())
	aborted := ctrl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}))
	aborted.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	if got := ctrl.Active(); got != 0 {
		t.Fatalf("expected 0 active after panic and abort, got %d", got)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctrl := NewController(3)
	release, _, _ := ctrl.Acquire()
	release()
	release()
	if got := ctrl.Active(); got != 0 {
		t.Fatalf("double release must not go negative, got %d", got)
	}
}

func TestHealthHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "active"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{Name: "rejected"})
	reg.MustRegister(gauge, rejected)
	ctrl := NewController(2, WithMetrics(gauge, rejected))

	rec := httptest.NewRecorder()
	ctrl.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when idle, got %d", rec.Code)
	}

	r1, _, _ := ctrl.Acquire()
	r2, _, _ := ctrl.Acquire()
	defer r1()
	defer r2()

	rec = httptest.NewRecorder()
	ctrl.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 at ceiling, got %d", rec.Code)
	}
	var body Status
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ActiveRequests != 2 {
		t.Fatalf("health probe must not count itself, got %d", body.ActiveRequests)
	}
	if got := testutil.ToFloat64(gauge); got != 2 {
		t.Fatalf("expected gauge 2, got %v", got)
	}
}
