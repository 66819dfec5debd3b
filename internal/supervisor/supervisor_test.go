package supervisor

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tap-run/tap/internal/ring"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) add(text string, stream ring.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, text)
}

func (c *lineCollector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

func TestStartCapturesLines(t *testing.T) {
	collector := &lineCollector{}
	exitCh := make(chan Snapshot, 1)
	sv := New(Config{Command: []string{"sh", "-c", "echo line1; echo line2"}}, collector.add, func(s Snapshot) { exitCh <- s }, testLogger())

	if err := sv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case snap := <-exitCh:
		if snap.State != StateExited {
			t.Fatalf("expected exited, got %s", snap.State)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for exit")
	}

	lines := collector.snapshot()
	if len(lines) != 2 || lines[0] != "line1" || lines[1] != "line2" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestStartAcquiresPID(t *testing.T) {
	exitCh := make(chan Snapshot, 1)
	sv := New(Config{Command: []string{"sleep", "0.2"}}, func(string, ring.Stream) {}, func(s Snapshot) { exitCh <- s }, testLogger())
	if err := sv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := sv.Snapshot()
	if snap.State != StateRunning || snap.PID == nil {
		t.Fatalf("expected running with pid, got %+v", snap)
	}
	<-exitCh
}

func TestStopSendsTermAndWaits(t *testing.T) {
	exitCh := make(chan Snapshot, 1)
	sv := New(Config{Command: []string{"sleep", "30"}}, func(string, ring.Stream) {}, func(s Snapshot) { exitCh <- s }, testLogger())
	if err := sv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sv.Stop(ctx, 500*time.Millisecond); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	snap := sv.Snapshot()
	if snap.State != StateStopped {
		t.Fatalf("expected stopped, got %s", snap.State)
	}
}

func TestStopOnNotRunningIsNoop(t *testing.T) {
	sv := New(Config{Command: []string{"true"}}, func(string, ring.Stream) {}, func(Snapshot) {}, testLogger())
	if err := sv.Stop(context.Background(), time.Second); err != nil {
		t.Fatalf("Stop on stopped supervisor should be a no-op: %v", err)
	}
}

func TestStopForceKillsAfterGrace(t *testing.T) {
	// A command that ignores SIGTERM (trap '' TERM) to force the SIGKILL path.
	// It prints "trapped" once the trap is installed, and Stop is not called
	// before that line arrives, so SIGTERM cannot reach the shell too early.
	collector := &lineCollector{}
	exitCh := make(chan Snapshot, 1)
	sv := New(Config{Command: []string{"sh", "-c", "trap '' TERM; echo trapped; sleep 30"}}, collector.add, func(s Snapshot) { exitCh <- s }, testLogger())
	if err := sv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	trapDeadline := time.Now().Add(3 * time.Second)
	for len(collector.snapshot()) == 0 {
		if time.Now().After(trapDeadline) {
			t.Fatal("timed out waiting for the child to install its TERM trap")
		}
		time.Sleep(10 * time.Millisecond)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sv.Stop(ctx, 300*time.Millisecond); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 300*time.Millisecond {
		t.Fatalf("expected to wait out the grace period, elapsed=%v", elapsed)
	}
	if sv.Snapshot().State != StateStopped {
		t.Fatalf("expected stopped after SIGKILL fallback")
	}
}

func TestSpawnFailureSetsExitedWithSyntheticCode(t *testing.T) {
	sv := New(Config{Command: []string{"/nonexistent/definitely-not-a-binary"}}, func(string, ring.Stream) {}, func(Snapshot) {}, testLogger())
	err := sv.Start()
	if err == nil {
		t.Fatal("expected spawn error")
	}
	snap := sv.Snapshot()
	if snap.State != StateExited || snap.ExitCode == nil || *snap.ExitCode != 1 {
		t.Fatalf("expected synthetic exit code 1, got %+v", snap)
	}
}

func TestPTYModeProducesCombinedStream(t *testing.T) {
	collector := &lineCollector{}
	var streams []ring.Stream
	var mu sync.Mutex
	onLine := func(text string, stream ring.Stream) {
		mu.Lock()
		streams = append(streams, stream)
		mu.Unlock()
		collector.add(text, stream)
	}
	exitCh := make(chan Snapshot, 1)
	sv := New(Config{Command: []string{"echo", "hello"}, UsePTY: true}, onLine, func(s Snapshot) { exitCh <- s }, testLogger())
	if err := sv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-exitCh

	mu.Lock()
	defer mu.Unlock()
	for _, s := range streams {
		if s != ring.StreamCombined {
			t.Fatalf("expected all PTY-mode lines tagged combined, got %s", s)
		}
	}
}
