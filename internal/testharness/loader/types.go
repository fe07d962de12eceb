// Package loader reads YAML test cases and PICS/PIXIT files for the
// closure certification harness.
package loader

import (
	"strconv"
)

// TestCase is a single test case loaded from YAML.
type TestCase struct {
	// ID is the test case identifier, e.g. "TC-CLOPSTATE-2.3".
	ID string `yaml:"id"`

	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// PICSRequirements must all be supported for the case to run.
	PICSRequirements []string `yaml:"pics_requirements"`

	Steps []Step `yaml:"steps"`

	// Timeout bounds the whole case, e.g. "90s".
	Timeout string `yaml:"timeout,omitempty"`

	Tags []string `yaml:"tags,omitempty"`

	// Skip disables the case. SkipReason is reported.
	Skip       bool   `yaml:"skip,omitempty"`
	SkipReason string `yaml:"skip_reason,omitempty"`

	// File is where the case was loaded from.
	File string `yaml:"-"`
}

// Step is a single action of a test case.
type Step struct {
	// Name is the step label used in reports, e.g. "2a".
	Name string `yaml:"name,omitempty"`

	// Action selects the runner handler, e.g. "send_command".
	Action string `yaml:"action"`

	Params map[string]any `yaml:"params,omitempty"`

	// Expect holds checks applied to the step outputs.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Timeout overrides the engine step timeout.
	Timeout string `yaml:"timeout,omitempty"`

	Description string `yaml:"description,omitempty"`

	// PICS gates the step. The step is skipped unless the item is supported.
	// A leading "!" inverts the gate.
	PICS string `yaml:"pics,omitempty"`

	// Line is the line of the step in its file.
	Line int `yaml:"-"`
}

// Label returns the step name, or its 1-based position when unnamed.
func (s *Step) Label(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return strconv.Itoa(index + 1)
}

// PICSDevice describes the device a PICS file belongs to.
type PICSDevice struct {
	Vendor  string `yaml:"vendor"`
	Product string `yaml:"product"`
	Model   string `yaml:"model"`
	Version string `yaml:"version"`
}

// PICSFile is a Protocol Implementation Conformance Statement with the
// PIXIT values that parameterise the test cases.
type PICSFile struct {
	// Name identifies this PICS configuration.
	Name string `yaml:"-"`

	Device PICSDevice `yaml:"device"`

	// Items maps PICS identifiers to their values, e.g. CLOPSTATE.S=true.
	Items map[string]any `yaml:"items"`

	// PIXIT maps test parameters to values. Timing parameters are seconds.
	// Keys are stored without the "PIXIT." prefix.
	PIXIT map[string]any `yaml:"pixit"`
}

// ValidationLevel is the severity of a validation issue.
type ValidationLevel string

const (
	ValidationLevelError   ValidationLevel = "error"
	ValidationLevelWarning ValidationLevel = "warning"
)

// ValidationError is a PICS validation issue.
type ValidationError struct {
	Field   string
	Message string
	Level   ValidationLevel
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// LoadError reports a file that could not be loaded.
type LoadError struct {
	File string

	// Line is the 1-based line of the problem, 0 if unknown.
	Line int

	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	loc := e.File
	if loc == "" {
		loc = "<input>"
	}
	if e.Line > 0 {
		loc += ":" + strconv.Itoa(e.Line)
	}
	msg := loc + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
