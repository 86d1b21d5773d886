package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-brief-automator/internal/archive"
	"github.com/JakeFAU/seo-brief-automator/internal/brief"
	"github.com/JakeFAU/seo-brief-automator/internal/config"
	"github.com/JakeFAU/seo-brief-automator/internal/metrics"
	"github.com/JakeFAU/seo-brief-automator/internal/pipeline"
	"github.com/JakeFAU/seo-brief-automator/internal/storage"
)

const (
	recentBriefLimit   = 10
	defaultRunsLimit   = 20
	maxRequestBodySize = 1 << 20
)

// StageController starts pipeline stages and reports job status.
type StageController interface {
	StartStage(ctx context.Context, stage brief.Stage, req pipeline.StartRequest) (pipeline.Ticket, error)
	Status() pipeline.StatusSnapshot
}

// BriefArchive lists and reads saved briefs.
type BriefArchive interface {
	Recent(ctx context.Context, limit int) ([]archive.Entry, error)
	Open(ctx context.Context, filename string) ([]byte, string, error)
}

// RunLister reads completed-run history.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]brief.RunSummary, error)
}

// ReadinessCheck reports whether a downstream dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Deps bundles the collaborators served over HTTP. Archive, History, Live
// and Ready are optional.
type Deps struct {
	Controller StageController
	Archive    BriefArchive
	History    RunLister
	Live       http.Handler
	Ready      []ReadinessCheck
}

// Example is one suggested keyword shown by the front end.
type Example struct {
	Keyword     string `json:"keyword"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

var examples = []Example{
	{Keyword: "financial planning", Description: "Comprehensive financial planning strategies", Category: "Finance"},
	{Keyword: "budget management", Description: "Effective budget management techniques", Category: "Finance"},
	{Keyword: "investment strategies", Description: "Investment strategies for different goals", Category: "Finance"},
}

// Server wires HTTP handlers to the pipeline controller and archive.
type Server struct {
	router         chi.Router
	deps           Deps
	enqueueTimeout time.Duration
	logger         *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if deps.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:           deps,
		enqueueTimeout: cfg.EnqueueTimeout(),
		logger:         logger,
	}
	if s.enqueueTimeout <= 0 {
		s.enqueueTimeout = 5 * time.Second
	}
	requestTimeout := cfg.RequestTimeout()
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		// WebSocket upgrades need the raw connection, so /ws skips the timeout
		// and metrics wrappers.
		if deps.Live != nil {
			r.Method(http.MethodGet, "/ws", deps.Live)
		}

		r.Group(func(r chi.Router) {
			r.Use(metrics.Middleware)
			r.Use(timeoutMiddleware(requestTimeout))

			for stage := brief.StageSERPCollect; stage <= brief.StageCombine; stage++ {
				r.Post(fmt.Sprintf("/start-step%d", int(stage)), s.startStage(stage))
			}
			r.Get("/status", s.status)
			r.Get("/ugc-html", s.stageHTML(brief.StageUGCResearch, "Step 2 must be completed first"))
			r.Get("/serp-html", s.stageHTML(brief.StageSERPAnalysis, "Step 3 must be completed first"))
			r.Get("/final-html", s.stageHTML(brief.StageCombine, "All steps must be completed first"))
			r.Get("/download/{filename}", s.download)

			r.Route("/api", func(r chi.Router) {
				r.Get("/examples", s.examples)
				r.Get("/recent-briefs", s.recentBriefs)
				r.Get("/runs", s.runs)
			})
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.deps.Ready {
		if err := check(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) startStage(stage brief.Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.StartRequest
		body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.enqueueTimeout)
		defer cancel()
		if _, err := s.deps.Controller.StartStage(ctx, stage, req); err != nil {
			writeError(w, startErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	}
}

func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, brief.ErrValidation), errors.Is(err, brief.ErrSequenceViolation):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrQueueClosed), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.Status())
}

func (s *Server) stageHTML(stage brief.Stage, notReady string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		out := s.deps.Controller.Status().Output(stage)
		if out == nil {
			writeError(w, http.StatusBadRequest, notReady)
			return
		}
		if out.HTMLOutput == "" {
			writeError(w, http.StatusNotFound, "No HTML output available")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, out.HTMLOutput); err != nil {
			s.logger.Warn("write stage html failed", zap.Error(err))
		}
	}
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	name := chi.URLParam(r, "filename")
	data, contentType, err := s.deps.Archive.Open(r.Context(), name)
	switch {
	case errors.Is(err, archive.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found")
		return
	case err != nil:
		s.logger.Error("open brief failed", zap.String("filename", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read brief")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write download failed", zap.Error(err))
	}
}

func (s *Server) examples(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, examples)
}

func (s *Server) recentBriefs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		writeJSON(w, http.StatusOK, []archive.Entry{})
		return
	}
	entries, err := s.deps.Archive.Recent(r.Context(), recentBriefLimit)
	if err != nil {
		// The listing is advisory; an unreadable archive shows as empty.
		s.logger.Error("list recent briefs failed", zap.Error(err))
		entries = nil
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) runs(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, []brief.RunSummary{})
		return
	}
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.deps.History.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []brief.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID assigned by the server middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Debug("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
