package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/tap-run/tap/internal/control"
)

func runLogs(args []string) error {
	var (
		name          string
		dir           string
		last          int
		grep          string
		regex         bool
		invert        bool
		caseSensitive bool
		stream        string
	)
	flagSet := pflag.NewFlagSet("logs", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "service name (default: basename of the --dir directory)")
	flagSet.StringVar(&dir, "dir", "", "workspace directory to search from (default: current directory)")
	flagSet.IntVar(&last, "last", 0, "return only the trailing N events")
	flagSet.StringVar(&grep, "grep", "", "filter events by substring or regex")
	flagSet.BoolVar(&regex, "regex", false, "treat --grep as a regular expression")
	flagSet.BoolVar(&invert, "invert", false, "invert the --grep match")
	flagSet.BoolVar(&caseSensitive, "case-sensitive", false, "make --grep case-sensitive")
	flagSet.StringVar(&stream, "stream", "", "filter to stdout or stderr")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	client, _, err := resolveClient(name, dir)
	if err != nil {
		return err
	}

	req := control.LogsRequest{
		Stream:        stream,
		Grep:          grep,
		Regex:         regex,
		Invert:        invert,
		CaseSensitive: caseSensitive,
	}
	if last > 0 {
		req.Last = &last
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.Logs(ctx, req)
	if err != nil {
		return err
	}

	for _, event := range resp.Events {
		fmt.Printf("[%s] %s\n", event.Stream, event.Text)
	}
	if resp.Truncated {
		fmt.Fprintln(os.Stderr, "(output truncated; narrow your query)")
	}
	return nil
}
