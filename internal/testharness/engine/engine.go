package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/clopstate/clop-go/internal/testharness/loader"
)

// stepTimeoutPadding is added to a wait step's own duration.
const stepTimeoutPadding = 10 * time.Second

// Engine executes test cases.
type Engine struct {
	config   *EngineConfig
	handlers map[string]ActionHandler
	checkers map[string]ExpectChecker
	mu       sync.RWMutex
}

// New creates an engine with the default configuration.
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an engine. Zero timeouts fall back to the defaults.
func NewWithConfig(config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = def.DefaultTimeout
	}
	if config.StepTimeout == 0 {
		config.StepTimeout = def.StepTimeout
	}

	e := &Engine{
		config:   config,
		handlers: make(map[string]ActionHandler),
		checkers: make(map[string]ExpectChecker),
	}
	e.RegisterChecker(CheckerNameDefault, defaultChecker)
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() *EngineConfig { return e.config }

// RegisterHandler registers an action handler.
func (e *Engine) RegisterHandler(action string, handler ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[action] = handler
}

// RegisterChecker registers an expectation checker.
func (e *Engine) RegisterChecker(key string, checker ExpectChecker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkers[key] = checker
}

// Run executes a single test case.
func (e *Engine) Run(ctx context.Context, tc *loader.TestCase) *TestResult {
	result := &TestResult{
		TestCase:  tc,
		StartTime: time.Now(),
	}
	finish := func() *TestResult {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		return result
	}

	if tc.Skip {
		result.Skipped = true
		result.SkipReason = tc.SkipReason
		if result.SkipReason == "" {
			result.SkipReason = "skipped by test definition"
		}
		return finish()
	}

	if e.config.PICS != nil && !loader.CheckPICSRequirements(e.config.PICS, tc.PICSRequirements) {
		result.Skipped = true
		result.SkipReason = "PICS requirements not met"
		return finish()
	}

	timeout := e.config.DefaultTimeout
	if tc.Timeout != "" {
		if d, err := time.ParseDuration(tc.Timeout); err == nil {
			timeout = d
		}
	}
	testCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state := NewExecutionState(testCtx)
	state.PICS = e.config.PICS

	if e.config.SetupPreconditions != nil {
		if err := e.config.SetupPreconditions(testCtx, tc, state); err != nil {
			result.Error = fmt.Errorf("precondition setup failed: %w", err)
			return finish()
		}
	}

	result.Passed = true
	for i := range tc.Steps {
		step := &tc.Steps[i]
		sr := e.executeStep(testCtx, step, i, state)
		result.StepResults = append(result.StepResults, sr)
		if e.config.OnStepComplete != nil {
			e.config.OnStepComplete(tc, sr)
		}
		if !sr.Passed {
			result.Passed = false
			result.Error = fmt.Errorf("%s: %w", step.Label(i), sr.Error)
			break
		}
	}
	return finish()
}

func (e *Engine) executeStep(ctx context.Context, step *loader.Step, index int, state *ExecutionState) *StepResult {
	result := &StepResult{
		Step:          step,
		StepIndex:     index,
		ExpectResults: make(map[string]*ExpectResult),
		Output:        make(map[string]any),
	}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	if !e.config.PICS.StepEnabled(step.PICS) {
		result.Passed = true
		result.Skipped = true
		result.SkipReason = fmt.Sprintf("PICS %s not enabled", step.PICS)
		return result
	}

	timeout := e.config.StepTimeout
	if step.Timeout != "" {
		if d, err := time.ParseDuration(step.Timeout); err == nil {
			timeout = d
		}
	}
	if wait, err := WaitDuration(step.Params, e.config.PICS); err == nil && wait > 0 {
		if needed := wait + stepTimeoutPadding; needed > timeout {
			timeout = needed
		}
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.mu.RLock()
	handler, ok := e.handlers[step.Action]
	e.mu.RUnlock()
	if !ok {
		result.Error = fmt.Errorf("unknown action: %s", step.Action)
		return result
	}

	resolved := *step
	resolved.Params = InterpolateParamsWithPICS(step.Params, state, e.config.PICS)

	outputs, err := handler(stepCtx, &resolved, state)
	if errors.Is(err, ErrSkipStep) {
		result.Passed = true
		result.Skipped = true
		result.SkipReason = err.Error()
		return result
	}
	if err != nil {
		result.Error = err
		return result
	}

	for k, v := range outputs {
		state.Set(k, v)
		result.Output[k] = v
	}
	state.Set(InternalStepOutput, maps.Clone(result.Output))

	result.Passed = true
	expect := InterpolateParamsWithPICS(step.Expect, state, e.config.PICS)
	for _, key := range slices.Sorted(maps.Keys(expect)) {
		er := e.checkExpectation(key, expect[key], state)
		result.ExpectResults[key] = er
		if !er.Passed && result.Passed {
			result.Passed = false
			result.Error = fmt.Errorf("expectation failed: %s - %s", key, er.Message)
		}
	}
	return result
}

func (e *Engine) checkExpectation(key string, expected any, state *ExecutionState) *ExpectResult {
	e.mu.RLock()
	checker, ok := e.checkers[key]
	if !ok {
		checker = e.checkers[CheckerNameDefault]
	}
	e.mu.RUnlock()
	return checker(key, expected, state)
}

// RunSuite executes cases in order.
func (e *Engine) RunSuite(ctx context.Context, cases []*loader.TestCase) *SuiteResult {
	result := &SuiteResult{SuiteName: "Test Suite"}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	suiteTimeout := e.config.SuiteTimeout
	if suiteTimeout == 0 {
		var total time.Duration
		for _, tc := range cases {
			d := e.config.DefaultTimeout
			if tc.Timeout != "" {
				if parsed, err := time.ParseDuration(tc.Timeout); err == nil {
					d = parsed
				}
			}
			total += d
		}
		suiteTimeout = total + 2*time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, suiteTimeout)
	defer cancel()

	for _, tc := range cases {
		if ctx.Err() != nil {
			break
		}

		tr := e.Run(ctx, tc)
		result.Results = append(result.Results, tr)
		switch {
		case tr.Skipped:
			result.SkipCount++
		case tr.Passed:
			result.PassCount++
		default:
			result.FailCount++
		}

		if e.config.OnTestComplete != nil {
			e.config.OnTestComplete(tr)
		}
		if !tr.Passed && !tr.Skipped && e.config.StopOnFirstFailure {
			break
		}
	}
	result.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
	return result
}

// FilterAndRun runs the cases whose PICS requirements pics meets.
func (e *Engine) FilterAndRun(ctx context.Context, cases []*loader.TestCase, pics *loader.PICSFile) *SuiteResult {
	return e.RunSuite(ctx, loader.FilterTestCases(cases, pics))
}

// WaitDuration returns the wait a step's params request. It reads
// duration_seconds, duration_ms or a "pixit" timing name resolved against
// pics. The longest of the given forms wins.
func WaitDuration(params map[string]any, pics *loader.PICSFile) (time.Duration, error) {
	var d time.Duration
	if v, ok := params["duration_seconds"]; ok {
		secs, ok := number(v)
		if !ok || secs < 0 {
			return 0, fmt.Errorf("invalid duration_seconds %v", v)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if v, ok := params["duration_ms"]; ok {
		ms, ok := number(v)
		if !ok || ms < 0 {
			return 0, fmt.Errorf("invalid duration_ms %v", v)
		}
		d = max(d, time.Duration(ms*float64(time.Millisecond)))
	}
	if v, ok := params["pixit"]; ok {
		name, ok := v.(string)
		if !ok {
			return 0, fmt.Errorf("invalid pixit %v", v)
		}
		pd, err := pics.PIXITDuration(name)
		if err != nil {
			return 0, err
		}
		d = max(d, pd)
	}
	return d, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
