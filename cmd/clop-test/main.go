// Command clop-test runs closure operational-state certification cases
// against a device under test.
//
// Usage:
//
//	clop-test [flags]
//
// Flags:
//
//	-target string         Device address (host:port); browses mDNS when empty
//	-pics string           Path to the PICS/PIXIT file
//	-tests string          Test case file or directory (default "./testdata/cases")
//	-run string            Only run cases whose ID or name matches (comma-separated globs)
//	-tags string           Only run cases with one of these tags
//	-exclude-tags string   Skip cases with any of these tags
//	-timeout duration      Default test case timeout (default 2m)
//	-suite-timeout duration Bound on the whole run (0 = derived)
//	-output string         Output format: text, json, junit (default "text")
//	-v                     Verbose step output
//	-debug                 Debug diagnostics on stderr
//	-simulate              Run against an in-process simulated device
//	-pipe string           FIFO of the device's app pipe, enables state injection
//	-protocol-log string   File path for protocol event logging (CBOR format)
//	-metrics-file string   Write run metrics in Prometheus text format
//
// Examples:
//
//	# Certify the simulator started with clop-device
//	clop-test -target localhost:5540 -pics testdata/pics/simulator.yaml \
//	    -pipe /tmp/chip_closure_fifo_4242
//
//	# Run one case in process
//	clop-test -simulate -pics testdata/pics/simulator.yaml -run TC-CLOPSTATE-2.3 -v
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clopstate/clop-go/internal/testharness/inject"
	"github.com/clopstate/clop-go/internal/testharness/runner"
	clopslog "github.com/clopstate/clop-go/pkg/log"
)

var (
	target       = flag.String("target", "", "Device address (host:port); browses mDNS when empty")
	iface        = flag.String("interface", "", "Network interface for mDNS browsing")
	pics         = flag.String("pics", "", "Path to the PICS/PIXIT file")
	tests        = flag.String("tests", "./testdata/cases", "Test case file or directory")
	run          = flag.String("run", "", "Only run cases whose ID or name matches (comma-separated globs)")
	tags         = flag.String("tags", "", "Only run cases with one of these tags (comma-separated)")
	excludeTags  = flag.String("exclude-tags", "", "Skip cases with any of these tags (comma-separated)")
	timeout      = flag.Duration("timeout", 2*time.Minute, "Default test case timeout")
	suiteTimeout = flag.Duration("suite-timeout", 0, "Bound on the whole run (0 = derived from case timeouts)")
	output       = flag.String("output", "text", "Output format: text, json, junit")
	verbose      = flag.Bool("v", false, "Verbose step output")
	debug        = flag.Bool("debug", false, "Debug diagnostics on stderr")
	simulate     = flag.Bool("simulate", false, "Run against an in-process simulated device")
	pipe         = flag.String("pipe", "", "FIFO of the device's app pipe, enables state injection")
	protocolLog  = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	metricsFile  = flag.String("metrics-file", "", "Write run metrics in Prometheus text format")
	failFast     = flag.Bool("fail-fast", false, "Stop after the first failing case")
)

func main() {
	flag.Parse()

	if *simulate && *target != "" {
		fmt.Fprintln(os.Stderr, "Error: -simulate and -target are mutually exclusive")
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	} else if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *output == "text" {
		log.SetFlags(log.Ltime)
		printBanner()
		switch {
		case *simulate:
			log.Printf("Target: simulated device")
		case *target != "":
			log.Printf("Target: %s", *target)
		default:
			log.Printf("Target: mDNS browse")
		}
		if *pics != "" {
			log.Printf("PICS: %s", *pics)
		}
		if *run != "" {
			log.Printf("Run: %s", *run)
		}
		log.Println()
	}

	var protocolLogger *clopslog.FileLogger
	if *protocolLog != "" {
		var err error
		protocolLogger, err = clopslog.NewFileLogger(*protocolLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create protocol logger: %v\n", err)
			os.Exit(1)
		}
	}

	config := &runner.Config{
		Target:             *target,
		Interface:          *iface,
		PICSFile:           *pics,
		TestDir:            *tests,
		Pattern:            *run,
		Tags:               *tags,
		ExcludeTags:        *excludeTags,
		Timeout:            *timeout,
		SuiteTimeout:       *suiteTimeout,
		StopOnFirstFailure: *failFast,
		Verbose:            *verbose,
		Output:             os.Stdout,
		OutputFormat:       *output,
		Simulate:           *simulate,
		Logger:             logger,
		MetricsFile:        *metricsFile,
	}
	// Only set interfaces when non-nil to avoid typed-nil interface issues.
	if protocolLogger != nil {
		config.ProtocolLogger = protocolLogger
	}
	if *pipe != "" {
		config.Injector = inject.NewPipe(*pipe)
	}

	r, err := runner.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result, err := r.Run(ctx)
	stop()
	r.Close()
	if protocolLogger != nil {
		protocolLogger.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if result.FailCount > 0 || result.TimedOut {
		os.Exit(1)
	}
}

func printBanner() {
	fmt.Print(`
  ____ _     ___  ____    _____         _
 / ___| |   / _ \|  _ \  |_   _|__  ___| |_
| |   | |  | | | | |_) |   | |/ _ \/ __| __|
| |___| |__| |_| |  __/    | |  __/\__ \ |_
 \____|_____\___/|_|       |_|\___||___/\__|

Closure Operational State Certification
`)
}
