package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/tap-run/tap/internal/control"
	"github.com/tap-run/tap/internal/cursorcache"
)

const observePollInterval = 500 * time.Millisecond

func runObserve(args []string) error {
	var (
		name          string
		dir           string
		grep          string
		regex         bool
		caseSensitive bool
		fromStart     bool
	)
	flagSet := pflag.NewFlagSet("observe", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "service name (default: basename of the --dir directory)")
	flagSet.StringVar(&dir, "dir", "", "workspace directory to search from (default: current directory)")
	flagSet.StringVar(&grep, "grep", "", "filter events by substring or regex")
	flagSet.BoolVar(&regex, "regex", false, "treat --grep as a regular expression")
	flagSet.BoolVar(&caseSensitive, "case-sensitive", false, "make --grep case-sensitive")
	flagSet.BoolVar(&fromStart, "from-start", false, "ignore the cursor cache and start from the beginning")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	client, svc, err := resolveClient(name, dir)
	if err != nil {
		return err
	}

	cache := cursorcache.Load()
	key := cursorcache.Key(svc.TapDir, svc.Name)

	var cursor uint64
	if !fromStart {
		if cached, ok := cache.Get(key); ok {
			cursor = cached
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = client.Observe(ctx, cursor, observePollInterval, func(batch control.ObserveResponse) error {
		for _, event := range batch.Events {
			if grep != "" && !lineMatches(event.Text, grep, regex, caseSensitive) {
				continue
			}
			fmt.Printf("[%s] %s\n", event.Stream, event.Text)
		}
		cache.Set(key, batch.CursorNext)
		return cache.Save()
	})

	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
