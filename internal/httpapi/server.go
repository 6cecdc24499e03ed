// Package httpapi serves the read-only status API of the headless loop.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Shailesh-Murmu/AutoMpp/internal/orchestrator"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

// Cycles is the orchestrator surface the API reads.
type Cycles interface {
	Phase() orchestrator.Phase
	Latest() (orchestrator.CycleReport, bool)
	Subscribe() (<-chan orchestrator.CycleReport, func())
}

// TaskSource loads the current task definitions.
type TaskSource interface {
	Load() (*taskdef.Set, error)
}

type ServerConfig struct {
	// Token, when set, is required as a bearer token on /v1 routes.
	Token           string
	RateLimitMax    int
	RateLimitWindow time.Duration
	Logger          *zap.Logger
}

type Server struct {
	cycles      Cycles
	tasks       TaskSource
	cfg         ServerConfig
	logger      *zap.Logger
	rateLimiter *rateLimiter
	router      chi.Router
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(cycles Cycles, tasks TaskSource) *Server {
	return NewServerWithConfig(cycles, tasks, ServerConfig{})
}

func NewServerWithConfig(cycles Cycles, tasks TaskSource, cfg ServerConfig) *Server {
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	s := &Server{
		cycles:      cycles,
		tasks:       tasks,
		cfg:         cfg,
		logger:      logger,
		rateLimiter: limiter,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Use(s.limitRate)
		r.Get("/tasks", s.handleTasks)
		r.Get("/cycles/latest", s.handleLatestCycle)
		r.Get("/events", s.handleEvents)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", getCorrelationID(r))
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"phase":  s.cycles.Phase().String(),
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	set, err := s.tasks.Load()
	if errors.Is(err, taskdef.ErrCorrupt) {
		writeError(w, http.StatusInternalServerError, "corrupt_task_file", err.Error(), correlationID)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	categories := taskdef.Categories
	if raw := r.URL.Query().Get("category"); raw != "" {
		category, err := taskdef.ParseCategory(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
			return
		}
		categories = []taskdef.Category{category}
	}
	out := make(map[taskdef.Category][]taskdef.Task, len(categories))
	for _, category := range categories {
		tasks := set.Tasks(category)
		if tasks == nil {
			tasks = []taskdef.Task{}
		}
		out[category] = tasks
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func (s *Server) handleLatestCycle(w http.ResponseWriter, r *http.Request) {
	report, ok := s.cycles.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no cycle has completed yet", getCorrelationID(r))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleEvents upgrades to a websocket and pushes every cycle report as it
// is published.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	reports, unsubscribe := s.cycles.Subscribe()
	defer unsubscribe()
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-reports:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, conn, report)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) limitRate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter != nil && !s.rateLimiter.allow(clientKey(r), time.Now()) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", getCorrelationID(r))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func getCorrelationID(r *http.Request) string {
	if id := r.Header.Get("X-Correlation-Id"); id != "" {
		return id
	}
	return middleware.GetReqID(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		r.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(r.window),
		}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	r.entries[key] = entry
	return true
}
