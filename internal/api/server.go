package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/homesense-core/internal/audit"
	"github.com/nerrad567/homesense-core/internal/automation"
	"github.com/nerrad567/homesense-core/internal/infrastructure/config"
	"github.com/nerrad567/homesense-core/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Logger defines the logging interface used by the server and hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateReader provides the current system state.
type StateReader interface {
	Snapshot() state.Snapshot
}

// Controller applies user commands. *automation.Arbiter satisfies it.
type Controller interface {
	Manual(ctx context.Context, id automation.SceneID, source, ip string) error
	SetMode(ctx context.Context, mode state.Mode, source, ip string)
	SetLogging(ctx context.Context, paused bool, source, ip string)
	Projector(ctx context.Context, on bool, source, ip string) error
	HDMI(ctx context.Context, port int, source, ip string) error
}

// Beeper sounds the buzzer to acknowledge a command.
type Beeper interface {
	Beep(ctx context.Context)
}

// AuditLog lists audit trail entries.
type AuditLog interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// AuditRecorder writes audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, source, actionType, details, ip string)
}

// TelemetryHistory lists stored telemetry rows, oldest first.
type TelemetryHistory interface {
	List(ctx context.Context, since time.Time, limit int) ([]state.Telemetry, error)
}

// FrameSource supplies JPEG frames for /video_feed.
type FrameSource interface {
	Next(ctx context.Context, after uint64) ([]byte, uint64, error)
	FrameInterval() time.Duration
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   Logger
	State    StateReader
	Control  Controller
	Beeper   Beeper           // optional
	AuditLog AuditLog         // optional
	Audit    AuditRecorder    // optional
	History  TelemetryHistory // optional
	Camera   FrameSource      // optional
	Hub      *Hub             // if set, the server uses this hub instead of creating its own
	Version  string
}

// Server is the HTTP server for HomeSense.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   Logger
	state    StateReader
	control  Controller
	beeper   Beeper
	auditLog AuditLog
	audit    AuditRecorder
	history  TelemetryHistory
	camera   FrameSource
	version  string
	server   *http.Server
	hub      *Hub
	cancel   context.CancelFunc // cancels background goroutines on Close()

	// seenIPs holds the addresses that have already loaded the panel.
	seenMu  sync.Mutex
	seenIPs map[string]struct{}
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (state store and controller)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.State == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if deps.Control == nil {
		return nil, fmt.Errorf("controller is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    withWSDefaults(deps.WS),
		logger:   logger,
		state:    deps.State,
		control:  deps.Control,
		beeper:   deps.Beeper,
		auditLog: deps.AuditLog,
		audit:    deps.Audit,
		history:  deps.History,
		camera:   deps.Camera,
		version:  deps.Version,
		hub:      deps.Hub,
		seenIPs:  make(map[string]struct{}),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It creates and runs a WebSocket hub if none was injected, builds the
// router, and launches the HTTP listener in a background goroutine. The
// server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return srvCtx
		},
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// Streaming responses end when the server context is cancelled, so
// Shutdown does not wait on open /video_feed connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// Hub returns the WebSocket hub. It is nil until Start unless one was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}
