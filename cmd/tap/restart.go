package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/tap-run/tap/internal/control"
)

func runRestart(args []string) error {
	var (
		name          string
		dir           string
		graceMS       int64
		readyPattern  string
		readyRegex    bool
		caseSensitive bool
		timeoutMS     int64
		clearLogs     bool
	)
	flagSet := pflag.NewFlagSet("restart", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "service name (default: basename of the --dir directory)")
	flagSet.StringVar(&dir, "dir", "", "workspace directory to search from (default: current directory)")
	flagSet.Int64Var(&graceMS, "grace", 0, "milliseconds to wait before SIGKILL (default: server default)")
	flagSet.StringVar(&readyPattern, "ready-pattern", "", "wait for this pattern in output before reporting ready")
	flagSet.BoolVar(&readyRegex, "ready-regex", false, "treat --ready-pattern as a regular expression")
	flagSet.BoolVar(&caseSensitive, "case-sensitive", false, "make --ready-pattern case-sensitive")
	flagSet.Int64Var(&timeoutMS, "timeout", 0, "milliseconds to wait for --ready-pattern (default: server default)")
	flagSet.BoolVar(&clearLogs, "clear-logs", false, "clear retained logs before restarting")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	client, _, err := resolveClient(name, dir)
	if err != nil {
		return err
	}

	req := control.RestartRequest{ClearLogs: clearLogs}
	if graceMS > 0 {
		req.GraceMS = &graceMS
	}
	if timeoutMS > 0 {
		req.TimeoutMS = &timeoutMS
	}
	if readyPattern != "" {
		readyType := "substring"
		if readyRegex {
			readyType = "regex"
		}
		req.Ready = &control.ReadySpec{Type: readyType, Pattern: readyPattern, CaseSensitive: caseSensitive}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := client.Restart(ctx, req)
	if err != nil {
		return err
	}

	if resp.ReadyMatch != nil {
		fmt.Printf("restarted, ready: matched %q\n", *resp.ReadyMatch)
	} else if resp.Ready {
		fmt.Println("restarted, ready")
	} else {
		reason := ""
		if resp.Reason != nil {
			reason = *resp.Reason
		}
		fmt.Printf("restarted, not ready: %s\n", reason)
		for _, line := range resp.Snippet {
			fmt.Printf("  %s\n", line)
		}
	}
	return nil
}
