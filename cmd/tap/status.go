package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

func runStatus(args []string) error {
	var name, dir string
	flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "service name (default: basename of the --dir directory)")
	flagSet.StringVar(&dir, "dir", "", "workspace directory to search from (default: current directory)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	client, _, err := resolveClient(name, dir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(status)
}

func runStop(args []string) error {
	var name, dir string
	var graceMS int64
	flagSet := pflag.NewFlagSet("stop", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "service name (default: basename of the --dir directory)")
	flagSet.StringVar(&dir, "dir", "", "workspace directory to search from (default: current directory)")
	flagSet.Int64Var(&graceMS, "grace", 0, "milliseconds to wait before SIGKILL (default: server default)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	client, _, err := resolveClient(name, dir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req := stopRequestFrom(graceMS)
	resp, err := client.Stop(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("stopped: %v\n", resp.Stopped)
	return nil
}
