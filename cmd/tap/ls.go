package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/tap-run/tap/internal/locator"
)

func runLs(args []string) error {
	var dir string
	flagSet := pflag.NewFlagSet("ls", pflag.ContinueOnError)
	flagSet.StringVar(&dir, "dir", "", "workspace directory to search from (default: current directory)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		dir = wd
	}

	services := locator.Enumerate(dir, locator.DefaultMaxDepth)
	if len(services) == 0 {
		fmt.Println("no services found")
		return nil
	}

	for _, svc := range services {
		pidInfo := ""
		if svc.Metadata != nil {
			pidInfo = fmt.Sprintf(" (pid=%d)", svc.Metadata.PID)
		}
		fmt.Printf("%s\t%s%s\n", svc.Name, svc.Path, pidInfo)
	}
	return nil
}
