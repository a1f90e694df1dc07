package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"quiz-intake-service/internal/collector"
	"quiz-intake-service/internal/config"
	"quiz-intake-service/internal/domain"
)

func writeSheet(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sheet.yaml")
	doc := `profile:
  name: Asha
  email: asha@example.com
  campus: North
answers:
  mbti-1: "Talk with many people"
  mbti-2: "Think it through quietly on your own"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write sheet: %v", err)
	}
	return path
}

func TestServeAndSubmit(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var cfg config.Config
	cfg.ApplyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- serve(ctx, cfg, ln, zap.NewNop()) }()

	base := "http://" + ln.Addr().String()
	progress := filepath.Join(t.TempDir(), "progress.json")
	var out bytes.Buffer
	err = runSubmit(ctx, submitOptions{
		sheet:         writeSheet(t),
		server:        base,
		progress:      progress,
		healthTimeout: 10 * time.Second,
	}, &out)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(out.String(), "answered 2 of 35 questions") {
		t.Fatalf("unexpected progress output %q", out.String())
	}
	if !strings.Contains(out.String(), "submitted ") {
		t.Fatalf("expected submitted id in output %q", out.String())
	}
	if _, err := os.Stat(progress); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected progress cleared, stat err %v", err)
	}

	resp, err := http.Get(base + "/api/students?campus=North")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	var list []domain.SubmissionSummary
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Asha" {
		t.Fatalf("expected one stored submission, got %+v", list)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func TestSubmitBusyKeepsProgress(t *testing.T) {
	posted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posted = true
		}
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	progress := filepath.Join(t.TempDir(), "progress.json")
	err := runSubmit(context.Background(), submitOptions{
		sheet:         writeSheet(t),
		server:        srv.URL,
		progress:      progress,
		healthTimeout: time.Nanosecond,
	}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "server busy") {
		t.Fatalf("expected server busy error, got %v", err)
	}
	if posted {
		t.Fatalf("submission must not be sent to a busy server")
	}

	saved, err := collector.NewFileStore(progress).Load()
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if saved.Answers["mbti-1"] != "Talk with many people" {
		t.Fatalf("expected answers kept for retry, got %+v", saved.Answers)
	}
}

func TestBackendOf(t *testing.T) {
	cases := map[string]backend{
		"":                                 backendMemory,
		"postgres://u:p@db/intake":         backendPostgres,
		"postgresql://db/intake":           backendPostgres,
		"mongodb://localhost:27017/intake": backendMongo,
		"mongodb+srv://cluster/intake":     backendMongo,
		"mysql://db":                       backendUnknown,
	}
	for url, want := range cases {
		if got := backendOf(url); got != want {
			t.Fatalf("backendOf(%q) = %d, want %d", url, got, want)
		}
	}
}

func TestMongoDatabaseFromURI(t *testing.T) {
	if got := mongoDatabase("mongodb://localhost:27017/survey", "fallback"); got != "survey" {
		t.Fatalf("expected database from uri, got %q", got)
	}
	if got := mongoDatabase("mongodb://localhost:27017", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback database, got %q", got)
	}
}

func TestOpenStoreRejectsUnknownScheme(t *testing.T) {
	var cfg config.Config
	cfg.Store.URL = "mysql://db"
	if _, _, err := openStore(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}
