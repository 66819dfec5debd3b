// tap-runner spawns and supervises a single child process, exposing its
// status, captured output, and lifecycle controls over a Unix-domain
// socket. It is started directly (tap-runner --name NAME -- CMD); the tap
// client connects to a running runner but does not launch one.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/tap-run/tap/internal/control"
	"github.com/tap-run/tap/internal/locator"
	"github.com/tap-run/tap/internal/ring"
	"github.com/tap-run/tap/internal/rtlog"
	"github.com/tap-run/tap/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tap-runner: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		name     string
		cwd      string
		usePTY   bool
		maxLines int
		maxBytes int
		envFlags []string
	)

	flagSet := pflag.NewFlagSet("tap-runner", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "service name (required)")
	flagSet.StringVar(&cwd, "cwd", "", "working directory for the child (default: current directory)")
	flagSet.BoolVar(&usePTY, "pty", false, "run the child under a pseudo-terminal-approximating combined stream")
	flagSet.IntVar(&maxLines, "max-lines", ring.DefaultMaxLines, "ring buffer line retention cap")
	flagSet.IntVar(&maxBytes, "max-bytes", ring.DefaultMaxBytes, "ring buffer byte retention cap")
	flagSet.StringArrayVar(&envFlags, "env", nil, "KEY=VALUE environment override (repeatable)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	command := flagSet.Args()
	if name == "" {
		return fmt.Errorf("--name is required")
	}
	if len(command) == 0 {
		return fmt.Errorf("no command given; usage: tap-runner --name NAME -- CMD [ARGS...]")
	}
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		cwd = wd
	}

	tapDir := filepath.Join(cwd, ".tap")
	if err := os.MkdirAll(tapDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", tapDir, err)
	}

	req := locator.ResolveRequest{TapDir: tapDir, Name: name}
	resolved, err := locator.Resolve(req)
	if err != nil && err != locator.ErrNotFound {
		return fmt.Errorf("resolving socket path: %w", err)
	}
	socketPath := resolved.Path

	log := rtlog.WithComponent("tap-runner")
	runnerID := uuid.NewString()
	log.Info("starting", "name", name, "runner_id", runnerID, "pty", usePTY, "socket", socketPath)

	buf := ring.New(ring.WithCaps(maxLines, maxBytes))

	spawnConfig := supervisor.Config{
		Command: command,
		Cwd:     cwd,
		Env:     envFlags,
		UsePTY:  usePTY,
	}

	onLine := func(text string, stream ring.Stream) {
		buf.Append(text, stream)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onExit := func(snap supervisor.Snapshot) {
		buf.InsertMarker(exitMarker(snap))
	}

	sup := supervisor.New(spawnConfig, onLine, onExit, rtlog.WithService(name))
	if err := sup.Start(); err != nil {
		return fmt.Errorf("starting child: %w", err)
	}

	srv := control.NewServer(control.ServerConfig{
		Name:        name,
		SocketPath:  socketPath,
		Supervisor:  sup,
		Ring:        buf,
		RunnerPID:   os.Getpid(),
		StartedAt:   time.Now(),
		PTY:         usePTY,
		SpawnConfig: spawnConfig,
	})

	shutdown := make(chan struct{})
	srv.OnShutdown(func() {
		log.Info("stop requested over control socket, exiting")
		close(shutdown)
	})

	if err := srv.Bind(ctx); err != nil {
		_ = sup.Stop(context.Background(), 2*time.Second)
		return err
	}

	if err := writeMeta(tapDir, name, os.Getpid()); err != nil {
		log.Warn("writing meta.yaml sidecar failed", "error", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("signal received, shutting down")
		_ = sup.Stop(context.Background(), 2*time.Second)
		_ = srv.Close()
	case <-shutdown:
	case err := <-serveErr:
		if err != nil {
			log.Error("control server exited", "error", err)
		}
		_ = sup.Stop(context.Background(), 2*time.Second)
	}

	return nil
}

func exitMarker(snap supervisor.Snapshot) string {
	switch {
	case snap.ExitSignal != nil:
		return fmt.Sprintf("--- exited (signal=%s) ---", *snap.ExitSignal)
	case snap.ExitCode != nil:
		return fmt.Sprintf("--- exited (code=%d) ---", *snap.ExitCode)
	default:
		return "--- exited ---"
	}
}

func writeMeta(tapDir, name string, pid int) error {
	meta := locator.ServiceMeta{Name: name, PID: pid, StartedAt: time.Now()}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(tapDir, "meta.yaml"), data, 0o600)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tap-runner supervises one child process and exposes control over a
Unix-domain socket.

Usage:
  tap-runner --name NAME [flags] -- CMD [ARGS...]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
