package control

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tap-run/tap/internal/ring"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, status int, apiErr *APIError) {
	writeJSON(w, status, apiErr)
}

func statusForCode(code string) int {
	switch code {
	case ErrNoRunner, ErrNotFound:
		return http.StatusNotFound
	case ErrRunnerExists:
		return http.StatusConflict
	case ErrBadRequest, ErrInvalidPattern, ErrInvalidName:
		return http.StatusBadRequest
	case ErrRequestTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*APIError); ok {
		writeAPIError(w, statusForCode(apiErr.Code), apiErr)
		return
	}
	s.log.Error("internal error", "error", err)
	writeAPIError(w, http.StatusInternalServerError, newAPIError(ErrInternal, "%v", err))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeAPIError(w, http.StatusNotFound, newAPIError(ErrNotFound, "no such route: %s %s", r.Method, r.URL.Path))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, newAPIError(ErrBadRequest, "method not allowed"))
		return
	}

	snap := s.cfg.Supervisor.Snapshot()
	stats := s.cfg.Ring.Stats()

	var lastExit LastExit
	if snap.ExitCode != nil || snap.ExitSignal != nil {
		lastExit = LastExit{Code: snap.ExitCode, Signal: snap.ExitSignal}
	}

	w.Header().Set("X-Tap-Runner-Id", s.runnerID)

	resp := StatusResponse{
		Name:       s.cfg.Name,
		RunnerPID:  s.cfg.RunnerPID,
		ChildPID:   snap.PID,
		ChildState: string(snap.State),
		StartedAt:  s.cfg.StartedAt.UnixMilli(),
		UptimeMS:   time.Since(s.cfg.StartedAt).Milliseconds(),
		PTY:        s.cfg.PTY,
		Forward:    s.cfg.Forward,
		Buffer: BufferStats{
			MaxLines:     stats.MaxLines,
			MaxBytes:     stats.MaxBytes,
			CurrentLines: stats.CurrentLines,
			CurrentBytes: stats.CurrentBytes,
		},
		LastExit: lastExit,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, newAPIError(ErrBadRequest, "method not allowed"))
		return
	}

	q := r.URL.Query()
	opts := ring.QueryOptions{
		Stream:        ring.Stream(q.Get("stream")),
		Grep:          q.Get("grep"),
		Regex:         q.Get("regex") == "1",
		Invert:        q.Get("invert") == "1",
		CaseSensitive: q.Get("case_sensitive") == "1",
	}

	if v := q.Get("since_cursor"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.writeErr(w, newAPIError(ErrBadRequest, "invalid since_cursor: %v", err))
			return
		}
		opts.SinceCursor = &parsed
	} else if v := q.Get("since_ms"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeErr(w, newAPIError(ErrBadRequest, "invalid since_ms: %v", err))
			return
		}
		opts.SinceMS = &parsed
	} else if v := q.Get("last"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			s.writeErr(w, newAPIError(ErrBadRequest, "invalid last: %v", err))
			return
		}
		opts.Last = &parsed
	}

	if v := q.Get("max_lines"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			s.writeErr(w, newAPIError(ErrBadRequest, "invalid max_lines: %v", err))
			return
		}
		opts.MaxLines = parsed
	}
	if v := q.Get("max_bytes"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			s.writeErr(w, newAPIError(ErrBadRequest, "invalid max_bytes: %v", err))
			return
		}
		opts.MaxBytes = parsed
	}

	result, err := s.cfg.Ring.Query(opts)
	if err != nil {
		s.writeErr(w, newAPIError(ErrInvalidPattern, "%v", err))
		return
	}

	matchCount := 0
	if opts.Grep != "" {
		matchCount = len(result.Events)
	}

	writeJSON(w, http.StatusOK, ObserveResponse{
		Name:       s.cfg.Name,
		CursorNext: result.CursorNext,
		Truncated:  result.Truncated,
		Dropped:    result.Dropped,
		Events:     result.Events,
		MatchCount: matchCount,
	})
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, newAPIError(ErrBadRequest, "method not allowed"))
		return
	}

	var req RestartRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, newAPIError(ErrBadRequest, "malformed request body: %v", err))
		return
	}

	grace := DefaultRestartGraceMS * time.Millisecond
	if req.GraceMS != nil {
		grace = time.Duration(*req.GraceMS) * time.Millisecond
	}

	// Step 1: capture the cursor that will anchor readiness matching.
	restartCursor := s.cfg.Ring.NextSeq()
	s.cfg.Ring.InsertMarker(restartRequestedMarker)

	// Step 2-3: stop, optionally clear, then start the child.
	if err := s.cfg.Supervisor.Stop(r.Context(), grace); err != nil {
		s.writeErr(w, newAPIError(ErrInternal, "stopping child: %v", err))
		return
	}

	if req.ClearLogs {
		s.cfg.Ring.Clear()
		restartCursor = s.cfg.Ring.NextSeq()
	}

	s.cfg.Supervisor.UpdateConfig(s.cfg.SpawnConfig)
	var pid *int
	onSpawned := func(newPID int) {
		p := newPID
		pid = &p
		s.cfg.Ring.InsertMarker(restartedMarker(newPID))
	}
	if err := s.cfg.Supervisor.StartWithHook(onSpawned); err != nil {
		s.writeErr(w, newAPIError(ErrInternal, "restarting child: %v", err))
		return
	}

	cursorNext := s.cfg.Ring.NextSeq()

	if req.Ready == nil {
		writeJSON(w, http.StatusOK, RestartResponse{
			Restarted:  true,
			Ready:      true,
			PID:        pid,
			CursorNext: cursorNext,
		})
		return
	}

	timeout := DefaultRestartTimeoutMS * time.Millisecond
	if req.TimeoutMS != nil {
		timeout = time.Duration(*req.TimeoutMS) * time.Millisecond
	}

	waitResult, err := s.cfg.Ring.WaitForMatch(r.Context(), req.Ready.Pattern, req.Ready.Type == "regex", req.Ready.CaseSensitive, restartCursor, timeout)
	if err != nil {
		s.writeErr(w, newAPIError(ErrInvalidPattern, "%v", err))
		return
	}

	if waitResult.Matched {
		match := waitResult.MatchText
		writeJSON(w, http.StatusOK, RestartResponse{
			Restarted:  true,
			Ready:      true,
			ReadyMatch: &match,
			PID:        pid,
			CursorNext: cursorNext,
		})
		return
	}

	reason := "timeout waiting for readiness pattern"
	writeJSON(w, http.StatusOK, RestartResponse{
		Restarted:  true,
		Ready:      false,
		Reason:     &reason,
		Snippet:    waitResult.Snippet,
		PID:        pid,
		CursorNext: cursorNext,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, newAPIError(ErrBadRequest, "method not allowed"))
		return
	}

	var req StopRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeErr(w, newAPIError(ErrBadRequest, "malformed request body: %v", err))
		return
	}

	grace := DefaultStopGraceMS * time.Millisecond
	if req.GraceMS != nil {
		grace = time.Duration(*req.GraceMS) * time.Millisecond
	}

	if err := s.cfg.Supervisor.Stop(r.Context(), grace); err != nil {
		s.writeErr(w, newAPIError(ErrInternal, "stopping child: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, StopResponse{Stopped: true})

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = s.Close()
		if s.onShutdown != nil {
			s.onShutdown()
		}
	}()
}
