// Package control implements the request/response control-plane server
// (and its client) that exposes a runner's status, log queries, restart,
// and stop over HTTP/1.1 on a Unix-domain socket.
package control

import (
	"fmt"

	"github.com/tap-run/tap/internal/ring"
)

// APIError is the {"error":...,"message":...} body shape from
// spec.md §6, and also satisfies the error interface so it can be
// returned directly from handler and client code.
type APIError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

// Error codes named in spec.md §6 and §7.
const (
	ErrNoRunner       = "no_runner"
	ErrRunnerExists   = "runner_exists"
	ErrRequestTimeout = "request_timeout"
	ErrNotFound       = "not_found"
	ErrInternal       = "internal_error"
	ErrBadRequest     = "bad_request"
	ErrInvalidPattern = "invalid_pattern"
	ErrInvalidName    = "invalid_name"
)

func newAPIError(code, format string, args ...any) *APIError {
	return &APIError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// BufferStats mirrors ring.Stats for the status response's buffer field.
type BufferStats struct {
	MaxLines     int `json:"max_lines"`
	MaxBytes     int `json:"max_bytes"`
	CurrentLines int `json:"current_lines"`
	CurrentBytes int `json:"current_bytes"`
}

// LastExit describes the most recent child exit, if any.
type LastExit struct {
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

// StatusResponse is the GET /v1/status body.
type StatusResponse struct {
	Name       string      `json:"name"`
	RunnerPID  int         `json:"runner_pid"`
	ChildPID   *int        `json:"child_pid"`
	ChildState string      `json:"child_state"`
	StartedAt  int64       `json:"started_at"`
	UptimeMS   int64       `json:"uptime_ms"`
	PTY        bool        `json:"pty"`
	Forward    bool        `json:"forward"`
	Buffer     BufferStats `json:"buffer"`
	LastExit   LastExit    `json:"last_exit"`
}

// ObserveResponse is the GET /v1/logs body.
type ObserveResponse struct {
	Name       string         `json:"name"`
	CursorNext uint64         `json:"cursor_next"`
	Truncated  bool           `json:"truncated"`
	Dropped    bool           `json:"dropped"`
	Events     []ring.LogEvent `json:"events"`
	MatchCount int            `json:"match_count"`
}

// ReadySpec describes the restart readiness pattern.
type ReadySpec struct {
	Type          string `json:"type"` // "substring" | "regex"
	Pattern       string `json:"pattern"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
}

// RestartRequest is the POST /v1/restart body.
type RestartRequest struct {
	GraceMS   *int64     `json:"grace_ms,omitempty"`
	Ready     *ReadySpec `json:"ready,omitempty"`
	TimeoutMS *int64     `json:"timeout_ms,omitempty"`
	ClearLogs bool       `json:"clear_logs,omitempty"`
}

// RestartResponse is the POST /v1/restart body.
type RestartResponse struct {
	Restarted  bool    `json:"restarted"`
	Ready      bool    `json:"ready"`
	ReadyMatch *string `json:"ready_match,omitempty"`
	Reason     *string `json:"reason,omitempty"`
	Snippet    []string `json:"snippet,omitempty"`
	PID        *int    `json:"pid,omitempty"`
	CursorNext uint64  `json:"cursor_next"`
}

// StopRequest is the POST /v1/stop body.
type StopRequest struct {
	GraceMS *int64 `json:"grace_ms,omitempty"`
}

// StopResponse is the POST /v1/stop body.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

const (
	// DefaultRestartGraceMS, DefaultRestartTimeoutMS are spec.md §4.3's
	// restart defaults.
	DefaultRestartGraceMS   = 2000
	DefaultRestartTimeoutMS = 20000
	// DefaultStopGraceMS applies when a /v1/stop request omits grace_ms.
	DefaultStopGraceMS = 2000
	// MaxRequestBodyBytes caps request bodies per spec.md §4.3.
	MaxRequestBodyBytes = 1 << 20 // 1 MiB
	// StaleCheckTimeout bounds the stale-socket liveness probe at bind
	// time, per spec.md §4.3.
	StaleCheckTimeout = 500 // milliseconds
)

const restartRequestedMarker = "--- restart requested ---"

func restartedMarker(pid int) string {
	return fmt.Sprintf("--- restarted (pid=%d) ---", pid)
}
