// Package admin exposes the REST + WebSocket control surface used by the
// operator console: trigger one-shot runs, browse and prune stored
// articles, manage the feed catalog, and stream live logs/progress events.
//
// Every mutation the admin surface performs goes through the same
// collaborators the scheduled jobs use (internal/feeds.Registry,
// internal/article.Store, the injected run/digest functions); this package
// adds no pipeline logic of its own, only transport.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"briefloom/internal/agents"
	"briefloom/internal/article"
	"briefloom/internal/auth"
	"briefloom/internal/clock"
	"briefloom/internal/feeds"
	"briefloom/internal/logging"
)

// RunOptions carries the parameters of a one-shot POST /api/run trigger.
type RunOptions struct {
	Limit       int
	DryRun      bool
	Concurrency int
}

// RunFunc performs one fetch-analyze cycle. Invoked detached from the
// triggering request's context so the HTTP response can return immediately.
type RunFunc func(ctx context.Context, opts RunOptions) error

// DigestFunc assembles and sends one digest. Same detached-context contract
// as RunFunc.
type DigestFunc func(ctx context.Context) error

// StatsFunc supplies pipeline-specific counters for GET /api/status,
// layered on top of the process-level stats this package always reports.
type StatsFunc func(ctx context.Context) (map[string]any, error)

// Config bundles the Server's collaborators.
type Config struct {
	Feeds     *feeds.Registry
	Articles  article.Store
	Scheduler *clock.Scheduler
	Tokens    *auth.TokenService

	Run    RunFunc
	Digest DigestFunc
	Stats  StatsFunc

	// CORSOrigins is the explicit allowlist of origins permitted to make
	// cross-origin requests. No wildcard is ever honored.
	CORSOrigins []string

	// MaxWSConnections bounds the total number of concurrent /ws/logs and
	// /ws/progress connections, combined. Defaults to 100.
	MaxWSConnections int32

	// LevelControl, if set, backs PATCH /api/loglevel so operators can
	// raise or lower a single component's verbosity without a restart.
	LevelControl *logging.ComponentFilterHandler

	Logger *slog.Logger
}

// Server is the admin HTTP/WebSocket surface. Construct one per process and
// mount its Router() under an http.Server.
type Server struct {
	feeds     *feeds.Registry
	articles  article.Store
	scheduler *clock.Scheduler
	tokens    *auth.TokenService

	run      RunFunc
	digest   DigestFunc
	statsFn  StatsFunc
	corsSet  map[string]bool
	maxConns int32

	levelControl *logging.ComponentFilterHandler

	logger *slog.Logger
	mux    *chi.Mux

	mu           sync.Mutex
	runningFetch bool
	runningDigest bool
	lastMode     agents.Mode

	wsConns atomic.Int32

	logHub      *hub
	progressHub *hub

	progressMu sync.Mutex
	progress   ProgressState
}

// New constructs a Server and mounts all routes.
func New(cfg Config) *Server {
	logger := logging.Default(cfg.Logger).With("component", "admin")

	maxConns := cfg.MaxWSConnections
	if maxConns <= 0 {
		maxConns = 100
	}

	corsSet := make(map[string]bool, len(cfg.CORSOrigins))
	for _, o := range cfg.CORSOrigins {
		if o == "*" {
			continue // wildcard is never honored
		}
		corsSet[o] = true
	}

	s := &Server{
		feeds:       cfg.Feeds,
		articles:    cfg.Articles,
		scheduler:   cfg.Scheduler,
		tokens:      cfg.Tokens,
		run:         cfg.Run,
		digest:      cfg.Digest,
		statsFn:     cfg.Stats,
		corsSet:     corsSet,
		maxConns:    maxConns,
		levelControl: cfg.LevelControl,
		logger:      logger,
		logHub:      newHub("logs", logger),
		progressHub: newHub("progress", logger),
	}

	s.mux = chi.NewRouter()
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(s.corsMiddleware)

	s.mux.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/status", s.handleStatus)
		r.Post("/run", s.handleRun)
		r.Post("/digest", s.handleDigest)
		r.Get("/articles", s.handleListArticles)
		r.Delete("/articles/{id}", s.handleDeleteArticle)
		r.Get("/feeds", s.handleListFeeds)
		r.Post("/feeds", s.handleAddFeed)
		r.Delete("/feeds", s.handleRemoveFeed)
		r.Patch("/feeds/{id}", s.handlePatchFeed)
		r.Get("/progress/state", s.handleProgressState)
		r.Patch("/loglevel", s.handlePatchLogLevel)
	})

	s.mux.Route("/ws", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/logs", s.handleWSLogs)
		r.Get("/progress", s.handleWSProgress)
	})

	return s
}

// Router returns the http.Handler to mount, e.g. http.ListenAndServe(addr, srv.Router()).
func (s *Server) Router() http.Handler {
	return s.mux
}

// LogHandler returns an slog.Handler that forwards records to every
// connected /ws/logs subscriber. main() does not install it in the process
// logger, so only records logged through a logger built on this handler
// reach /ws/logs; the service's own component logs are not streamed.
func (s *Server) LogHandler() slog.Handler {
	return &broadcastLogHandler{hub: s.logHub}
}

// PublishProgress pushes a progress snapshot to every /ws/progress
// subscriber and updates the state GET /api/progress/state returns.
func (s *Server) PublishProgress(p ProgressState) {
	p.UpdatedAt = time.Now().UTC()
	s.progressMu.Lock()
	s.progress = p
	s.progressMu.Unlock()
	s.progressHub.broadcast(p)
}

// ProgressState is a point-in-time snapshot of the running pipeline stage.
type ProgressState struct {
	Stage     string    `json:"stage"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// tryStartFetch atomically checks and sets the fetch-cycle running flag,
// per §5's is_running guard: a concurrent trigger must be rejected, not
// queued.
func (s *Server) tryStartFetch(mode agents.Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningFetch {
		return false
	}
	s.runningFetch = true
	s.lastMode = mode
	return true
}

func (s *Server) finishFetch() {
	s.mu.Lock()
	s.runningFetch = false
	s.mu.Unlock()
}

func (s *Server) tryStartDigest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningDigest {
		return false
	}
	s.runningDigest = true
	return true
}

func (s *Server) finishDigest() {
	s.mu.Lock()
	s.runningDigest = false
	s.mu.Unlock()
}

func (s *Server) isRunning() (running bool, mode agents.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningFetch || s.runningDigest, s.lastMode
}
