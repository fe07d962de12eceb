// Command clop-device is a simulated closure that implements the closure
// operational-state cluster over TCP.
//
// Simulation stimuli arrive as JSON lines on a FIFO (the app pipe) or from
// the interactive console.
//
// Usage:
//
//	clop-device [flags]
//
// Flags:
//
//	-port int               Listen port (default 5540)
//	-endpoint int           Endpoint hosting the cluster (default 1)
//	-features string        Feature names, "|" or "," separated (default: all but Instantaneous and ManuallyOperable)
//	-timed string           Commands that require a timed invoke, e.g. "MoveTo,Calibrate"
//	-motion duration        Full stroke time (default 10s)
//	-calibration duration   Calibration time, 0 = until CalibrationEnded (default 0)
//	-app-pipe string        FIFO path (default /tmp/chip_closure_fifo_<pid>)
//	-name string            mDNS instance name (default "clop-<pid>")
//	-interface string       Network interface for mDNS
//	-no-mdns                Do not advertise on mDNS
//	-metrics-addr string    Serve Prometheus metrics on this address, e.g. ":9100"
//	-protocol-log string    File path for protocol event logging (CBOR format)
//	-log-level string       Log level: debug, info, warn, error (default "info")
//	-interactive            Start the operator console
//
// Examples:
//
//	# Start a device and drive it from the console
//	clop-device -interactive
//
//	# Device requiring timed MoveTo, metrics on :9100
//	clop-device -timed MoveTo -metrics-addr :9100
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clopstate/clop-go/cmd/clop-device/interactive"
	"github.com/clopstate/clop-go/pkg/apppipe"
	"github.com/clopstate/clop-go/pkg/clopstate"
	"github.com/clopstate/clop-go/pkg/closure"
	"github.com/clopstate/clop-go/pkg/discovery"
	cloplog "github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/transport"
	"github.com/clopstate/clop-go/pkg/wire"
)

// Config holds the device configuration.
type Config struct {
	Port        int
	Endpoint    uint
	Features    string
	Timed       string
	Motion      time.Duration
	Calibration time.Duration
	AppPipe     string
	Name        string
	Interface   string
	NoMDNS      bool
	MetricsAddr string
	ProtocolLog string
	LogLevel    string
	Interactive bool
}

var config Config

func init() {
	flag.IntVar(&config.Port, "port", transport.DefaultPort, "Listen port")
	flag.UintVar(&config.Endpoint, "endpoint", uint(closure.DefaultEndpoint), "Endpoint hosting the cluster")
	flag.StringVar(&config.Features, "features", "", "Feature names, \"|\" or \",\" separated (default: standard set)")
	flag.StringVar(&config.Timed, "timed", "", "Commands that require a timed invoke, e.g. \"MoveTo,Calibrate\"")
	flag.DurationVar(&config.Motion, "motion", closure.DefaultFullMotionDuration, "Full stroke time")
	flag.DurationVar(&config.Calibration, "calibration", 0, "Calibration time, 0 = until CalibrationEnded")
	flag.StringVar(&config.AppPipe, "app-pipe", "", "FIFO path (default /tmp/chip_closure_fifo_<pid>)")
	flag.StringVar(&config.Name, "name", "", "mDNS instance name (default \"clop-<pid>\")")
	flag.StringVar(&config.Interface, "interface", "", "Network interface for mDNS")
	flag.BoolVar(&config.NoMDNS, "no-mdns", false, "Do not advertise on mDNS")
	flag.StringVar(&config.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. \":9100\"")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&config.Interactive, "interactive", false, "Start the operator console")
}

func main() {
	flag.Parse()

	if err := validateConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	applyDefaults()

	features, err := parseFeatures(config.Features)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	timed, err := parseTimed(config.Timed)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Println("Closure Reference Device")
	log.Println("========================")
	log.Printf("Port: %d", config.Port)
	log.Printf("Endpoint: %d", config.Endpoint)
	log.Printf("Features: 0x%04x (%s)", uint32(features.Map), features)
	log.Printf("App pipe: %s", config.AppPipe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// In interactive mode all output goes through the console so it does
	// not interfere with the prompt.
	var console *interactive.Console
	var logOut io.Writer = os.Stderr
	if config.Interactive {
		console, err = interactive.New()
		if err != nil {
			log.Fatalf("Failed to start console: %v", err)
		}
		logOut = console.Stdout()
		log.SetOutput(logOut)
	}

	var protocolLogger cloplog.Logger
	if config.ProtocolLog != "" {
		fl, err := cloplog.NewFileLogger(config.ProtocolLog)
		if err != nil {
			log.Fatalf("Failed to create protocol logger: %v", err)
		}
		defer fl.Close()
		protocolLogger = fl
		log.Printf("Protocol logging to: %s", config.ProtocolLog)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	level := parseLevel(config.LogLevel)
	handler := slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)

	dev := closure.New(closure.Config{
		Endpoint:            uint16(config.Endpoint),
		Features:            features,
		FullMotionDuration:  config.Motion,
		CalibrationDuration: config.Calibration,
		TimedCommands:       timed,
		Logger:              logger,
		ProtocolLogger:      protocolLogger,
		Metrics:             closure.NewMetrics(reg),
	})
	defer dev.Close()

	server, err := closure.Listen(ctx, fmt.Sprintf(":%d", config.Port), dev)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()
	log.Printf("Listening on %s", server.Addr())

	pipe, err := apppipe.Listen(config.AppPipe, dev.Inject, logger.With("component", "apppipe"))
	if err != nil {
		log.Fatalf("Failed to open app pipe: %v", err)
	}
	defer pipe.Close()
	go func() {
		if err := pipe.Serve(ctx); err != nil {
			log.Printf("App pipe stopped: %v", err)
		}
	}()

	if !config.NoMDNS {
		adv := discovery.NewAdvertiser(config.Interface)
		err := adv.Advertise(&discovery.Info{
			Instance:   config.Name,
			Port:       uint16(config.Port),
			Endpoint:   uint16(config.Endpoint),
			FeatureMap: uint32(features.Map),
			Name:       "Closure Reference Device",
		})
		if err != nil {
			log.Printf("Warning: mDNS advertisement failed: %v", err)
		} else {
			defer adv.Stop()
			log.Printf("Advertising %s on mDNS", config.Name)
		}
	}

	if config.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              config.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("Metrics on http://%s/metrics", config.MetricsAddr)
	}

	if console != nil {
		console.Attach(dev)
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}
	log.Println("Shutting down...")
}

func validateConfig() error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port must be 0-65535, got %d", config.Port)
	}
	if config.Endpoint == 0 || config.Endpoint > 65534 {
		return fmt.Errorf("endpoint must be 1-65534, got %d", config.Endpoint)
	}
	if config.Motion <= 0 {
		return fmt.Errorf("motion must be positive, got %v", config.Motion)
	}
	if config.Calibration < 0 {
		return fmt.Errorf("calibration must not be negative, got %v", config.Calibration)
	}
	return nil
}

func applyDefaults() {
	if config.AppPipe == "" {
		config.AppPipe = apppipe.DefaultPath(os.Getpid())
	}
	if config.Name == "" {
		config.Name = fmt.Sprintf("clop-%d", os.Getpid())
	}
}

// parseFeatures returns the standard set for an empty list.
func parseFeatures(s string) (clopstate.FeatureSet, error) {
	if strings.TrimSpace(s) == "" {
		return clopstate.DefaultFeatures(), nil
	}
	f, err := clopstate.ParseFeatures(s)
	if err != nil {
		return clopstate.FeatureSet{}, err
	}
	return clopstate.FeatureSet{Map: f}, nil
}

func parseTimed(s string) ([]wire.CommandID, error) {
	var ids []wire.CommandID
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		id, err := wire.ParseCommandID(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
