// Command clop-log views and analyzes protocol log files.
//
// Log files are written by clop-test and clop-device with the -protocol-log
// flag.
//
// Usage:
//
//	clop-log <command> [flags] <file.clog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON lines or CSV
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View the events of one test case
//	clop-log view -test-case TC-CLOPSTATE-2.3 run.clog
//
//	# View only injections
//	clop-log view -category injection run.clog
//
//	# Export to CSV
//	clop-log export -format csv -o run.csv run.clog
//
//	# Keep one connection
//	clop-log filter -conn-id abc12345-... -o conn.clog run.clog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/clopstate/clop-go/cmd/clop-log/commands"
)

const usage = `clop-log - Closure Protocol Log Analyzer

Usage:
  clop-log <command> [flags] <file.clog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON lines or CSV
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "clop-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// logPath returns the single positional argument or exits with usage.
func logPath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "clop-log %s - %s\n\nUsage:\n  clop-log %s [flags] <file.clog>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

func runView(args []string) {
	fs := newFlagSet("view", "View log file in human-readable format")
	layer := fs.String("layer", "", "Filter by layer (transport, wire, service)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, injection, state, error)")
	testCase := fs.String("test-case", "", "Filter by test case ID")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := logPath(fs)

	filter := commands.ViewFilter{TestCaseID: *testCase}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export log file to JSON lines or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := commands.RunExport(logPath(fs), *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter log file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	connID := fs.String("conn-id", "", "Filter by connection ID")
	deviceID := fs.String("device-id", "", "Filter by device ID")
	testCase := fs.String("test-case", "", "Filter by test case ID")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	layer := fs.String("layer", "", "Filter by layer (transport, wire, service)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, injection, state, error)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := logPath(fs)
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, commands.FilterOptions{
		Output:     *output,
		ConnID:     *connID,
		DeviceID:   *deviceID,
		TestCaseID: *testCase,
		TimeStart:  *timeStart,
		TimeEnd:    *timeEnd,
		Layer:      *layer,
		Direction:  *direction,
		Category:   *category,
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the log file")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := commands.RunStats(logPath(fs), os.Stdout); err != nil {
		fail(err)
	}
}
