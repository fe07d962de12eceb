// Package engine runs loaded test cases step by step.
//
// Actions are supplied by the runner as ActionHandlers. The engine owns
// ordering, timeouts, PICS gating and expectation checks. Steps run strictly
// in sequence and the first failing step ends its test case.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clopstate/clop-go/internal/testharness/loader"
)

// ErrSkipStep marks a step that could not apply, e.g. an injection step
// without an injector. Skipped steps do not fail the case.
var ErrSkipStep = errors.New("step skipped")

// SkipStep returns an error that skips the current step with reason.
func SkipStep(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipStep, reason)
}

// TestResult is the outcome of one test case.
type TestResult struct {
	TestCase    *loader.TestCase
	Passed      bool
	Error       error
	StepResults []*StepResult
	Duration    time.Duration
	StartTime   time.Time
	EndTime     time.Time
	Skipped     bool
	SkipReason  string
}

// StepResult is the outcome of one step.
type StepResult struct {
	Step      *loader.Step
	StepIndex int
	Passed    bool
	Error     error

	Skipped    bool
	SkipReason string

	ExpectResults map[string]*ExpectResult
	Duration      time.Duration
	Output        map[string]any
}

// ExpectResult is the outcome of one expectation.
type ExpectResult struct {
	Key      string
	Expected any
	Actual   any
	Passed   bool
	Message  string
}

// SuiteResult is the outcome of a run.
type SuiteResult struct {
	SuiteName string
	Results   []*TestResult
	PassCount int
	FailCount int
	SkipCount int
	Duration  time.Duration

	// TimedOut is set when the suite timeout cut the run short.
	TimedOut bool
}

// ActionHandler performs a step action and returns outputs for the
// expectation checks and later steps.
type ActionHandler func(ctx context.Context, step *loader.Step, state *ExecutionState) (map[string]any, error)

// ExpectChecker checks one expectation.
type ExpectChecker func(key string, expected any, state *ExecutionState) *ExpectResult

// ExecutionState is shared by the steps of one test case.
type ExecutionState struct {
	Outputs map[string]any
	Context context.Context

	// PICS is the PICS file of the run, nil when none was given.
	PICS *loader.PICSFile

	// Custom holds handler-specific state.
	Custom map[string]any
}

// NewExecutionState creates an empty execution state.
func NewExecutionState(ctx context.Context) *ExecutionState {
	return &ExecutionState{
		Outputs: make(map[string]any),
		Custom:  make(map[string]any),
		Context: ctx,
	}
}

// Get returns an output. A "{{ name }}" key is resolved as a reference.
func (s *ExecutionState) Get(key string) (any, bool) {
	if ref, ok := strings.CutPrefix(key, "{{"); ok {
		if ref, ok = strings.CutSuffix(ref, "}}"); ok {
			key = strings.TrimSpace(ref)
		}
	}
	v, ok := s.Outputs[key]
	return v, ok
}

// Set stores an output.
func (s *ExecutionState) Set(key string, value any) {
	s.Outputs[key] = value
}

// EngineConfig configures the engine.
type EngineConfig struct {
	// DefaultTimeout bounds a test case without its own timeout.
	DefaultTimeout time.Duration

	// StepTimeout bounds a step without its own timeout.
	StepTimeout time.Duration

	// SuiteTimeout bounds RunSuite. Zero derives it from the case timeouts.
	SuiteTimeout time.Duration

	StopOnFirstFailure bool

	PICS *loader.PICSFile

	// SetupPreconditions runs before the first step of every case.
	SetupPreconditions func(ctx context.Context, tc *loader.TestCase, state *ExecutionState) error

	OnStepComplete func(tc *loader.TestCase, sr *StepResult)
	OnTestComplete func(result *TestResult)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		DefaultTimeout: 2 * time.Minute,
		StepTimeout:    30 * time.Second,
	}
}
