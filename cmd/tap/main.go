// tap is the client for inspecting and controlling a tap-runner
// instance: status, log queries, follow-mode observation, restart, stop,
// and workspace-wide service discovery.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	var err error
	switch sub {
	case "status":
		err = runStatus(args)
	case "logs":
		err = runLogs(args)
	case "observe":
		err = runObserve(args)
	case "restart":
		err = runRestart(args)
	case "stop":
		err = runStop(args)
	case "ls":
		err = runLs(args)
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "tap: unknown subcommand %q\n", sub)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "tap %s: %v\n", sub, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `tap controls a supervised child process over its Unix-domain socket.

Usage:
  tap status   [--name NAME] [--dir DIR]
  tap logs     [--name NAME] [--dir DIR] [--last N] [--grep PATTERN] [--regex] [--stream stdout|stderr]
  tap observe  [--name NAME] [--dir DIR] [--grep PATTERN] [--regex]
  tap restart  [--name NAME] [--dir DIR] [--grace MS] [--ready-pattern PAT] [--ready-regex] [--timeout MS] [--clear-logs]
  tap stop     [--name NAME] [--dir DIR] [--grace MS]
  tap ls       [--dir DIR]
`)
}
