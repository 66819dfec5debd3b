package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tap-run/tap/internal/ring"
	"github.com/tap-run/tap/internal/rtlog"
	"github.com/tap-run/tap/internal/supervisor"
)

// ServerConfig wires a Server to the runner it fronts.
type ServerConfig struct {
	Name       string
	SocketPath string
	Supervisor *supervisor.Supervisor
	Ring       *ring.Buffer
	RunnerPID  int
	StartedAt  time.Time
	PTY        bool
	Forward    bool
	// SpawnConfig is reused to respawn the child on restart.
	SpawnConfig supervisor.Config
}

// Server is the control-plane HTTP-over-Unix-socket endpoint described
// in spec.md §4.3.
type Server struct {
	cfg      ServerConfig
	runnerID string
	log      *slog.Logger

	httpServer *http.Server
	listener   net.Listener

	// onShutdown, if set, is invoked once after a successful /v1/stop
	// has closed the socket, so the runner process can exit.
	onShutdown func()

	mu       sync.Mutex
	shutdown bool
}

// OnShutdown registers a callback invoked after /v1/stop completes and
// the socket is closed.
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = fn
}

// NewServer constructs a Server. Call Bind, then Serve, to start it.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		cfg:      cfg,
		runnerID: uuid.NewString(),
		log:      rtlog.WithComponent("control"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/logs", s.handleLogs)
	mux.HandleFunc("/v1/restart", s.handleRestart)
	mux.HandleFunc("/v1/stop", s.handleStop)
	mux.HandleFunc("/", s.handleNotFound)

	s.httpServer = &http.Server{
		Handler: http.MaxBytesHandler(mux, MaxRequestBodyBytes),
	}
	return s
}

// Bind performs spec.md §4.3's stale-socket recovery and binds the
// listener. It does not start serving; call Serve for that.
func (s *Server) Bind(ctx context.Context) error {
	if _, err := os.Stat(s.cfg.SocketPath); err == nil {
		if probeAlive(s.cfg.SocketPath) {
			return newAPIError(ErrRunnerExists,
				"a responsive runner is already bound at %s; inspect it with 'tap status' or stop it with 'tap stop' before starting a new one",
				s.cfg.SocketPath)
		}
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			return fmt.Errorf("removing stale socket %s: %w", s.cfg.SocketPath, err)
		}
		s.log.Info("recovered stale socket", "path", s.cfg.SocketPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat socket path: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.SocketPath, err)
	}
	s.listener = listener
	return nil
}

// probeAlive performs a short-timeout GET /v1/status over the existing
// socket to decide whether it is held by a live runner.
func probeAlive(socketPath string) bool {
	client := &http.Client{
		Timeout: StaleCheckTimeout * time.Millisecond,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				dialer := net.Dialer{Timeout: StaleCheckTimeout * time.Millisecond}
				return dialer.DialContext(ctx, "unix", socketPath)
			},
		},
	}
	resp, err := client.Get("http://unix/v1/status")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Serve blocks, serving requests until the listener is closed or ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		return s.Close()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close shuts down the HTTP server and unlinks the socket. Idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)

	if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
