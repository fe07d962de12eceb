// Package runner executes closure certification test cases against a real
// or simulated device.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clopstate/clop-go/internal/testharness/commonops"
	"github.com/clopstate/clop-go/internal/testharness/engine"
	"github.com/clopstate/clop-go/internal/testharness/inject"
	"github.com/clopstate/clop-go/internal/testharness/loader"
	"github.com/clopstate/clop-go/internal/testharness/reporter"
	"github.com/clopstate/clop-go/pkg/apppipe"
	"github.com/clopstate/clop-go/pkg/closure"
	"github.com/clopstate/clop-go/pkg/log"
)

// Config configures the test runner.
type Config struct {
	// Target is the device address (host:port). When empty and Simulate is
	// off, the runner browses mDNS for a device.
	Target string

	// Interface restricts mDNS browsing to one network interface.
	Interface string

	// BrowseTimeout bounds the mDNS browse.
	BrowseTimeout time.Duration

	// Endpoint hosting the closure cluster (default 1).
	Endpoint uint16

	// PICSFile is the path to the PICS file. PICS, when set, takes precedence.
	// In simulate mode with neither set, the simulated device's own PICS
	// is used.
	PICSFile string
	PICS     *loader.PICSFile

	// TestDir is a test case file or directory.
	TestDir string

	// Pattern filters test cases by ID or name (comma-separated globs).
	Pattern string

	// Tags includes only tests with at least one of these tags (comma-separated).
	Tags string

	// ExcludeTags excludes tests with any of these tags (comma-separated).
	ExcludeTags string

	// Timeout is the default test case timeout.
	Timeout time.Duration

	// StepTimeout is the default step timeout.
	StepTimeout time.Duration

	// SuiteTimeout bounds the whole run (0 = derived from the case timeouts).
	SuiteTimeout time.Duration

	// RequestTimeout bounds a single read or invoke.
	RequestTimeout time.Duration

	// DialAttempts is how often to try connecting before giving up.
	DialAttempts int

	StopOnFirstFailure bool

	Verbose bool

	// Output is where results go (default stdout).
	Output io.Writer

	// OutputFormat is "text", "json" or "junit".
	OutputFormat string

	// Simulate runs every test case against a fresh in-process device.
	Simulate bool

	// SimulatedMotion is the simulated full stroke time.
	SimulatedMotion time.Duration

	// SimulatedCalibration is the simulated calibration time. Zero means a
	// calibration only ends on a CalibrationEnded injection.
	SimulatedCalibration time.Duration

	// Injector delivers out-of-band state changes. Nil means none, unless
	// Simulate is set, which injects directly into the simulated device.
	Injector inject.StateInjector

	// ProtocolLogger receives protocol events tagged with the running test case.
	ProtocolLogger log.Logger

	// Logger receives diagnostics.
	Logger *slog.Logger

	// MetricsFile, when set, receives the run metrics in text format.
	MetricsFile string
}

// Runner executes test cases against a target device.
type Runner struct {
	config   *Config
	engine   *engine.Engine
	reporter reporter.Reporter
	pics     *loader.PICSFile
	logger   *slog.Logger
	metrics  *Metrics
	runID    string

	protocol *caseTagger
	injector inject.StateInjector

	ops  *commonops.Operations
	conn *Connection
	sim  *simulator
}

// New creates a runner. It loads and validates the PICS file.
func New(config *Config) (*Runner, error) {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Endpoint == 0 {
		config.Endpoint = closure.DefaultEndpoint
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pics := config.PICS
	if pics == nil && config.PICSFile != "" {
		var err error
		if pics, err = loader.LoadPICS(config.PICSFile); err != nil {
			return nil, err
		}
	}
	if pics == nil && config.Simulate {
		pics = simulatorPICS(config.SimulatedMotion)
	}
	if pics != nil {
		var errs []error
		for _, v := range loader.ValidatePICS(pics) {
			if v.Level == loader.ValidationLevelWarning {
				logger.Warn("PICS", "item", v.Field, "message", v.Message)
				continue
			}
			errs = append(errs, v)
		}
		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("invalid PICS: %w", err)
		}
	}

	rep, err := reporter.New(config.OutputFormat, config.Output, config.Verbose)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		config:   config,
		reporter: rep,
		pics:     pics,
		logger:   logger,
		metrics:  NewMetrics(),
		runID:    uuid.NewString(),
		protocol: newCaseTagger(config.ProtocolLogger),
		injector: config.Injector,
	}
	if r.injector == nil {
		r.injector = inject.Noop{}
	}

	r.engine = engine.NewWithConfig(&engine.EngineConfig{
		DefaultTimeout:     config.Timeout,
		StepTimeout:        config.StepTimeout,
		SuiteTimeout:       config.SuiteTimeout,
		StopOnFirstFailure: config.StopOnFirstFailure,
		PICS:               pics,
		SetupPreconditions: r.setupPreconditions,
		OnStepComplete:     r.observeStep,
		OnTestComplete:     r.testComplete,
	})
	engine.RegisterStandardCheckers(r.engine)
	r.registerHandlers()
	return r, nil
}

// RunID identifies this run in logs.
func (r *Runner) RunID() string { return r.runID }

// Metrics returns the run metrics.
func (r *Runner) Metrics() *Metrics { return r.metrics }

// Run loads, filters and executes the test cases, then reports the result.
func (r *Runner) Run(ctx context.Context) (*engine.SuiteResult, error) {
	cases, err := loader.Load(r.config.TestDir)
	if err != nil {
		return nil, fmt.Errorf("load tests: %w", err)
	}
	cases = filterByPattern(cases, r.config.Pattern)
	cases = filterByTags(cases, r.config.Tags)
	cases = filterByExcludeTags(cases, r.config.ExcludeTags)
	if len(cases) == 0 {
		return nil, fmt.Errorf("no test cases found matching filters (pattern=%q, tags=%q, exclude-tags=%q)",
			r.config.Pattern, r.config.Tags, r.config.ExcludeTags)
	}

	target, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("starting run", "run", r.runID, "target", target, "cases", len(cases))

	result := r.engine.RunSuite(ctx, cases)
	result.SuiteName = fmt.Sprintf("CLOPSTATE Certification (%s)", target)
	r.reporter.ReportSuite(result)

	if r.config.MetricsFile != "" {
		if err := r.metrics.WriteTextfile(r.config.MetricsFile); err != nil {
			return result, fmt.Errorf("write metrics: %w", err)
		}
	}
	return result, nil
}

// connect establishes the device session and builds the shared operations.
func (r *Runner) connect(ctx context.Context) (string, error) {
	dial := DialConfig{
		Attempts:       r.config.DialAttempts,
		RequestTimeout: r.config.RequestTimeout,
		ProtocolLogger: r.protocol.logger(),
	}

	var dut commonops.DUT
	var target string
	switch {
	case r.config.Simulate:
		r.sim = newSimulator(closure.Config{
			Endpoint:            r.config.Endpoint,
			FullMotionDuration:  r.config.SimulatedMotion,
			ProgressInterval:    progressInterval(r.config.SimulatedMotion),
			CalibrationDuration: r.config.SimulatedCalibration,
			Logger:              r.logger.With("component", "simulated-device"),
			ProtocolLogger:      r.protocol.logger(),
		}, dial)
		if err := r.sim.restart(ctx); err != nil {
			return "", err
		}
		if _, ok := r.injector.(inject.Noop); ok {
			r.injector = inject.NewDirect(r.sim)
		}
		dut, target = r.sim, "simulated"

	default:
		target = r.config.Target
		if target == "" {
			svc, err := browseTarget(ctx, r.config.Interface, r.config.BrowseTimeout)
			if err != nil {
				return "", fmt.Errorf("browse for device: %w", err)
			}
			r.logger.Info("discovered device", "service", svc.String())
			target = svc.Target()
			if svc.Endpoint != 0 {
				r.config.Endpoint = svc.Endpoint
			}
		}
		conn, err := Dial(ctx, target, dial)
		if err != nil {
			return "", err
		}
		r.conn = conn
		dut = conn
	}

	r.ops = commonops.New(dut,
		commonops.WithLogger(r.logger.With("component", "commonops")),
		commonops.WithObserver(r.metrics),
	)
	return target, nil
}

// progressInterval keeps a shortened simulated stroke at ten ticks or more.
func progressInterval(motion time.Duration) time.Duration {
	if motion <= 0 {
		return 0
	}
	return min(closure.DefaultProgressInterval, motion/10)
}

// setupPreconditions brings the device to its initial state before a case.
// A simulated device is replaced; a real one gets a Reset injection when an
// injector is available.
func (r *Runner) setupPreconditions(ctx context.Context, tc *loader.TestCase, _ *engine.ExecutionState) error {
	r.protocol.setCase(tc.ID)
	r.logger.Info("test case", "id", tc.ID, "name", tc.Name)

	if r.sim != nil {
		return r.sim.restart(ctx)
	}
	if r.injector.Available() {
		if err := r.injector.Inject(ctx, apppipe.Message{Name: apppipe.NameReset}); err != nil {
			r.logger.Warn("reset injection failed", "id", tc.ID, "error", err)
		}
	}
	return nil
}

func (r *Runner) testComplete(result *engine.TestResult) {
	status := "passed"
	switch {
	case result.Skipped:
		status = "skipped"
	case !result.Passed:
		status = "failed"
	}
	r.logger.Info("test case done", "id", result.TestCase.ID, "status", status, "duration", result.Duration)
	r.protocol.setCase("")
}

// Close releases the device session.
func (r *Runner) Close() error {
	var err error
	if r.conn != nil {
		err = r.conn.Close()
		r.conn = nil
	}
	if r.sim != nil {
		r.sim.stop()
	}
	return err
}

// caseTagger stamps protocol events with the test case that is running.
type caseTagger struct {
	next log.Logger

	mu      sync.RWMutex
	current log.Logger
}

func newCaseTagger(next log.Logger) *caseTagger {
	if next == nil {
		return nil
	}
	return &caseTagger{next: next, current: next}
}

// logger returns t as a log.Logger, or nil when protocol logging is off.
func (t *caseTagger) logger() log.Logger {
	if t == nil {
		return nil
	}
	return t
}

func (t *caseTagger) setCase(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" {
		t.current = t.next
		return
	}
	t.current = log.WithTestCase(t.next, id)
}

func (t *caseTagger) Log(event log.Event) {
	t.mu.RLock()
	current := t.current
	t.mu.RUnlock()
	current.Log(event)
}

// filterByPattern keeps cases whose ID or name matches one of the
// comma-separated glob patterns. An empty pattern keeps everything.
func filterByPattern(cases []*loader.TestCase, pattern string) []*loader.TestCase {
	patterns := parseTags(pattern)
	if len(patterns) == 0 {
		return cases
	}
	var filtered []*loader.TestCase
	for _, tc := range cases {
		for _, p := range patterns {
			if matchPattern(tc.ID, p) || matchPattern(tc.Name, p) {
				filtered = append(filtered, tc)
				break
			}
		}
	}
	return filtered
}

// filterByTags keeps only tests that have at least one of the tags.
func filterByTags(cases []*loader.TestCase, tags string) []*loader.TestCase {
	wanted := parseTags(tags)
	if len(wanted) == 0 {
		return cases
	}
	var filtered []*loader.TestCase
	for _, tc := range cases {
		if hasAnyTag(tc.Tags, wanted) {
			filtered = append(filtered, tc)
		}
	}
	return filtered
}

// filterByExcludeTags removes tests that have any of the tags.
func filterByExcludeTags(cases []*loader.TestCase, excludeTags string) []*loader.TestCase {
	excluded := parseTags(excludeTags)
	if len(excluded) == 0 {
		return cases
	}
	var filtered []*loader.TestCase
	for _, tc := range cases {
		if !hasAnyTag(tc.Tags, excluded) {
			filtered = append(filtered, tc)
		}
	}
	return filtered
}

// parseTags splits a comma-separated list into trimmed non-empty items.
func parseTags(tags string) []string {
	var result []string
	for _, p := range strings.Split(tags, ",") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

func hasAnyTag(testTags, wanted []string) bool {
	for _, t := range testTags {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}

// matchPattern matches name against a shell glob. A malformed pattern only
// matches itself.
func matchPattern(name, pattern string) bool {
	ok, err := path.Match(pattern, name)
	if err != nil {
		return name == pattern
	}
	return ok
}
