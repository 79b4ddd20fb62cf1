package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"nhooyr.io/websocket"

	"devspace/internal/adapter/llm"
	"devspace/internal/domain"
	"devspace/internal/infra/config"
	"devspace/internal/infra/middleware"
	"devspace/internal/usecase/runtime"
)

// EventSource is the subset of the event bus the event stream needs. An empty
// agentID subscribes to every event.
type EventSource interface {
	SubscribeAgent(agentID string, handler domain.EventHandler) func()
}

// ProviderHealthSource reports the state of the configured LLM backends.
type ProviderHealthSource interface {
	Health() []llm.ProviderHealth
}

// Deps holds the collaborators of the API server.
type Deps struct {
	Config     *config.Config
	Supervisor *runtime.Supervisor
	Tools      domain.ToolExecutor  // optional, reported by /api/v1/status
	Events     EventSource          // optional, enables /api/v1/events
	Scheduler  TaskScheduler        // optional, enables /api/v1/scheduler/tasks
	Providers  ProviderHealthSource // optional, reported by /api/v1/status
	Logger     *slog.Logger
}

// Server is the DevSpace HTTP API.
type Server struct {
	cfg     *config.Config
	sup     *runtime.Supervisor
	tools   domain.ToolExecutor
	events  EventSource
	sched   TaskScheduler
	llms    ProviderHealthSource
	auth    *TokenIssuer // nil when auth is disabled
	logger  *slog.Logger
	started time.Time
	router  *mux.Router

	clients sync.Map // connID (uint64) -> *eventClient
	nextID  atomic.Uint64

	mu        sync.Mutex
	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates the API server and its routes.
func NewServer(deps Deps) *Server {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sup := deps.Supervisor
	if sup == nil {
		sup = runtime.NewSupervisor(runtime.SupervisorDeps{Logger: logger})
	}

	s := &Server{
		cfg:     cfg,
		sup:     sup,
		tools:   deps.Tools,
		events:  deps.Events,
		sched:   deps.Scheduler,
		llms:    deps.Providers,
		logger:  logger,
		started: time.Now(),
	}
	if cfg.Security.AuthEnabled {
		s.auth = NewTokenIssuer(cfg.Security)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorCode(w, http.StatusNotFound, "route not found", domain.CodeNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorCode(w, http.StatusMethodNotAllowed, "method not allowed", domain.CodeInvalidInput)
	})

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1", s.handleAPIRoot).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/", s.handleAPIRoot).Methods(http.MethodGet)
	for _, sec := range sections {
		api.HandleFunc("/"+sec.Path, sectionHandler(sec)).Methods(http.MethodGet)
	}
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.auth != nil {
		api.HandleFunc("/auth/token", s.handleToken).Methods(http.MethodPost)
	}

	api.Handle("/agents", s.protect(s.handleListAgents)).Methods(http.MethodGet)
	api.Handle("/agents", s.protect(s.handleCreateAgent)).Methods(http.MethodPost)
	api.Handle("/agents/{id}", s.protect(s.handleGetAgent)).Methods(http.MethodGet)
	api.Handle("/agents/{id}", s.protect(s.handleDeleteAgent)).Methods(http.MethodDelete)
	api.Handle("/agents/{id}/status", s.protect(s.handleSetStatus)).Methods(http.MethodPut)
	api.Handle("/agents/{id}/messages", s.protect(s.handleSendMessage)).Methods(http.MethodPost)
	api.Handle("/agents/{id}/actions", s.protect(s.handleExecuteAction)).Methods(http.MethodPost)
	api.Handle("/agents/{id}/history", s.protect(s.handleGetHistory)).Methods(http.MethodGet)
	api.Handle("/agents/{id}/history", s.protect(s.handleClearHistory)).Methods(http.MethodDelete)
	api.Handle("/agents/{id}/context", s.protect(s.handleGetContext)).Methods(http.MethodGet)
	api.Handle("/agents/{id}/context", s.protect(s.handleClearContext)).Methods(http.MethodDelete)
	api.Handle("/agents/{id}/context/{key}", s.protect(s.handleGetContextKey)).Methods(http.MethodGet)
	api.Handle("/agents/{id}/context/{key}", s.protect(s.handleSetContextKey)).Methods(http.MethodPut)
	api.Handle("/events", s.protect(s.handleEvents)).Methods(http.MethodGet)
	if s.sched != nil {
		api.Handle("/scheduler/tasks", s.protect(s.handleListTasks)).Methods(http.MethodGet)
		api.Handle("/scheduler/tasks/{name}/run", s.protect(s.handleRunTask)).Methods(http.MethodPost)
	}

	return r
}

// protect wraps h with bearer auth when auth is enabled.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	if s.auth == nil {
		return h
	}
	return s.requireAuth(h)
}

// Handler returns the router wrapped in the middleware chain. The rate
// limiter's cleanup goroutine stops when ctx is cancelled.
func (s *Server) Handler(ctx context.Context) http.Handler {
	var h http.Handler = s.router
	if rl := s.cfg.API.RateLimit; rl.Enabled {
		h = middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
		})(h)
	}
	h = middleware.CORS(s.cfg.API.CORSOrigins)(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.RequestLogger(s.logger)(h)
	h = middleware.Recoverer(s.logger)(h)
	return h
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.API.Addr())
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(ctx),
		ReadTimeout:  s.cfg.API.ReadTimeout,
		WriteTimeout: s.cfg.API.WriteTimeout,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info("api server started", "addr", listener.Addr().String(), "auth", s.auth != nil)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Warn("api shutdown", "error", err)
		}
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	if ctx.Err() != nil {
		<-stopped
	}
	s.logger.Info("api server stopped")
	return nil
}

// Stop closes event streams and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.clients.Range(func(key, value any) bool {
		ec := value.(*eventClient)
		ec.close()
		ec.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// BoundAddr returns the address the server listens on. Empty before Serve.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.API.ShutdownTimeout > 0 {
		return s.cfg.API.ShutdownTimeout
	}
	return 10 * time.Second
}
