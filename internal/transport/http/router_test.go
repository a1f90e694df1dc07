package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"quiz-intake-service/internal/admission"
	"quiz-intake-service/internal/app"
	"quiz-intake-service/internal/catalog"
	"quiz-intake-service/internal/infra/memory"
	"quiz-intake-service/internal/observability"
)

type testServer struct {
	*httptest.Server
	admission *admission.Controller
}

func newTestServer(t *testing.T, ceiling int, production bool, staticDir string) *testServer {
	t.Helper()
	repo := memory.NewSubmissionRepository()
	questions := catalog.Default().Questions()
	feed := app.NewFeed()
	service := app.NewSubmissionService(repo,
		app.WithStats(memory.NewStatsCache(app.NewStatsCalculator(repo, questions), time.Minute)),
		app.WithPublisher(feed),
	)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	ctrl := admission.NewController(ceiling, admission.WithMetrics(metrics.ActiveRequests, metrics.AdmissionRejected))

	handler := NewRouter(RouterOptions{
		Admission:   ctrl,
		Submissions: NewSubmissionHandler(service, questions, zap.NewNop(), metrics.SubmissionsCreated),
		Live:        NewLiveHandler(feed, zap.NewNop()),
		Metrics:     metrics,
		Gatherer:    reg,
		Logger:      zap.NewNop(),
		Production:  production,
		StaticDir:   staticDir,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, admission: ctrl}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestSubmissionLifecycle(t *testing.T) {
	srv := newTestServer(t, 50, false, "")

	resp := postJSON(t, srv.URL+"/api/students", map[string]any{"email": "a@b.com"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without name, got %d", resp.StatusCode)
	}
	msg := decode[map[string]string](t, resp)
	if msg["message"] != "name and email required" {
		t.Fatalf("unexpected message %q", msg["message"])
	}

	resp = postJSON(t, srv.URL+"/api/students", map[string]any{"name": "S1", "email": "s1@b.com", "campus": "North"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	first := decode[map[string]any](t, resp)
	if first["_id"] == "" || first["createdAt"] == "" {
		t.Fatalf("expected id and timestamp, got %+v", first)
	}
	if answers, ok := first["answers"].([]any); !ok || len(answers) != 0 {
		t.Fatalf("expected empty answers array, got %#v", first["answers"])
	}

	time.Sleep(2 * time.Millisecond)
	resp = postJSON(t, srv.URL+"/api/students", map[string]any{
		"name": "S2", "email": "s2@b.com", "campus": "South",
		"answers": []map[string]any{
			{"questionId": "mbti-2", "category": "MBTI", "questionIndex": 2, "answer": "Think it through quietly on your own"},
			{"questionId": "mbti-1", "category": "MBTI", "questionIndex": 1, "answer": nil},
		},
	})
	second := decode[map[string]any](t, resp)

	resp, err := http.Get(srv.URL + "/api/students")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	list := decode[[]map[string]any](t, resp)
	if len(list) != 2 || list[0]["_id"] != second["_id"] || list[1]["_id"] != first["_id"] {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if _, ok := list[0]["answers"]; ok {
		t.Fatalf("list projection must not include answers")
	}

	resp, _ = http.Get(srv.URL + "/api/students?campus=North")
	north := decode[[]map[string]any](t, resp)
	if len(north) != 1 || north[0]["_id"] != first["_id"] {
		t.Fatalf("unexpected campus filter result %+v", north)
	}

	resp, _ = http.Get(srv.URL + "/api/students/" + second["_id"].(string))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for detail, got %d", resp.StatusCode)
	}
	detail := decode[map[string]any](t, resp)
	answers := detail["answers"].([]any)
	if len(answers) != 2 || answers[0].(map[string]any)["questionId"] != "mbti-2" || answers[1].(map[string]any)["answer"] != nil {
		t.Fatalf("answers must come back as submitted, got %+v", answers)
	}

	resp, _ = http.Get(srv.URL + "/api/students/does-not-exist")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/api/stats")
	stats := decode[[]map[string]any](t, resp)
	if len(stats) != catalog.Default().Len() {
		t.Fatalf("expected one stats entry per question, got %d", len(stats))
	}
	if stats[1]["id"] != "mbti-2" || stats[1]["counts"].(map[string]any)["Think it through quietly on your own"] != float64(1) {
		t.Fatalf("unexpected mbti-2 stats %+v", stats[1])
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	srv := newTestServer(t, 50, true, t.TempDir())

	resp, err := http.Get(srv.URL + "/api/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	msg := decode[map[string]string](t, resp)
	if msg["message"] != "API route not found" {
		t.Fatalf("unexpected message %q", msg["message"])
	}
}

func TestProductionServesSinglePageApp(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>spa</html>"), 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	srv := newTestServer(t, 50, true, dir)

	resp, _ := http.Get(srv.URL + "/admin")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "spa") {
		t.Fatalf("expected index.html for client route, got %d %q", resp.StatusCode, body)
	}

	resp, _ = http.Get(srv.URL + "/app.js")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "console.log") {
		t.Fatalf("expected static asset, got %q", body)
	}

	dev := newTestServer(t, 50, false, dir)
	resp, _ = http.Get(dev.URL + "/admin")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 outside production, got %d", resp.StatusCode)
	}
}

func TestBusyWorkerRejectsButStaysHealthyToProbe(t *testing.T) {
	srv := newTestServer(t, 1, false, "")
	release, _, _ := srv.admission.Acquire()

	resp := postJSON(t, srv.URL+"/api/students", map[string]any{"name": "A", "email": "a@b.com"})
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") != "2" {
		t.Fatalf("expected 429 with Retry-After, got %d %q", resp.StatusCode, resp.Header.Get("Retry-After"))
	}
	busy := decode[admission.Status](t, resp)
	if busy.Status != "busy" {
		t.Fatalf("unexpected busy body %+v", busy)
	}

	resp, _ = http.Get(srv.URL + "/health")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected busy health, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	release()
	resp, _ = http.Get(srv.URL + "/health")
	health := decode[admission.Status](t, resp)
	if resp.StatusCode != http.StatusOK || health.Status != "ok" || health.ActiveRequests != 0 {
		t.Fatalf("expected ok health, got %d %+v", resp.StatusCode, health)
	}

	resp, _ = http.Get(srv.URL + "/metrics")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "intake_admission_rejected_total 1") {
		t.Fatalf("expected rejection metric, got:\n%s", body)
	}
}

func TestLiveFeedStreamsNewSubmissions(t *testing.T) {
	srv := newTestServer(t, 50, false, "")

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/students/live"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered after the upgrade completes; retry the post until seen.
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	received := make(chan error, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		received <- conn.ReadJSON(&msg)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp := postJSON(t, srv.URL+"/api/students", map[string]any{"name": "Live", "email": "l@b.com"})
		resp.Body.Close()
		select {
		case err := <-received:
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if msg.Type != "submission" || msg.Payload["name"] != "Live" {
				t.Fatalf("unexpected message %+v", msg)
			}
			if _, ok := msg.Payload["answers"]; ok {
				t.Fatalf("live feed sends summaries only")
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("no live message received")
		}
	}
}
