package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"quiz-intake-service/internal/admission"
	"quiz-intake-service/internal/observability"
)

// RouterOptions wires the handlers of one worker.
type RouterOptions struct {
	Admission   *admission.Controller
	Submissions *SubmissionHandler
	Live        *LiveHandler // optional
	Metrics     *observability.Metrics
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
	// Production serves StaticDir as a single-page app for unmatched GETs.
	Production bool
	StaticDir  string
}

// NewRouter builds the HTTP surface. Health, metrics and the live feed bypass
// the admission gate; everything else goes through it.
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Logger, opts.Metrics))
	r.Use(cors)

	r.Get("/health", opts.Admission.HealthHandler)
	r.Get("/api/health", opts.Admission.HealthHandler)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.Live != nil {
		r.Get("/api/students/live", opts.Live.ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(opts.Admission.Middleware)
		r.Post("/api/students", opts.Submissions.Create)
		r.Get("/api/students", opts.Submissions.List)
		r.Get("/api/students/{id}", opts.Submissions.Get)
		r.Get("/api/questions", opts.Submissions.Questions)
		r.Get("/api/stats", opts.Submissions.Stats)
	})

	fallback := opts.Admission.Middleware(notFound(opts.Production, opts.StaticDir))
	r.NotFound(fallback.ServeHTTP)
	r.MethodNotAllowed(fallback.ServeHTTP)
	return r
}

func notFound(production bool, staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api" {
			writeJSON(w, http.StatusNotFound, messagePayload{Message: "API route not found"})
			return
		}
		if !production || staticDir == "" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		serveSPA(w, r, staticDir)
	}
}

// serveSPA serves an existing asset or falls back to index.html for client-side routes.
func serveSPA(w http.ResponseWriter, r *http.Request, staticDir string) {
	rel := filepath.FromSlash(strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/"))
	if rel != "" && rel != "." {
		candidate := filepath.Join(staticDir, rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			http.ServeFile(w, r, candidate)
			return
		}
	}
	http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
}

func requestLogger(logger *zap.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			if metrics != nil {
				code := strconv.Itoa(status)
				metrics.RequestTotal.WithLabelValues(r.Method, route, code).Inc()
				metrics.RequestDuration.WithLabelValues(r.Method, route, code).Observe(elapsed.Seconds())
			}
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", elapsed),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// cors mirrors the permissive policy the browser client was built against.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "Retry-After")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
