// Command takt runs the goal service: an MCP server plus scheduler in
// serve mode, and one-shot goal execution, plan inspection, and simulation
// subcommands for local use.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = cmdServe(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "plan":
		err = cmdPlan(os.Args[2:])
	case "simulate":
		err = cmdSimulate(os.Args[2:])
	case "timeline":
		err = cmdTimeline(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "takt: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "takt:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: takt <command> [flags]

Commands:
  serve      start the MCP goal service (stdio) with scheduler and metrics
  run        execute a goal once and print its result
  plan       resolve a goal and print its ordered action list
  simulate   run the embedded production simulator for a product batch
  timeline   render a simulated batch as a Gantt chart
  version    print the build version

Configuration is read from TAKT_* environment variables and
~/.takt/settings.json. Run "takt <command> -h" for command flags.
`)
}
