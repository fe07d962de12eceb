// Package reporter formats test results as text, JSON or JUnit XML.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/clopstate/clop-go/internal/testharness/engine"
)

// Reporter formats and outputs test results.
type Reporter interface {
	ReportSuite(result *engine.SuiteResult)
	ReportTest(result *engine.TestResult)
}

// New returns the reporter for format ("text", "json" or "junit").
func New(format string, w io.Writer, verbose bool) (Reporter, error) {
	switch format {
	case "", "text":
		return NewTextReporter(w, verbose), nil
	case "json":
		return NewJSONReporter(w, true), nil
	case "junit":
		return NewJUnitReporter(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// TextReporter outputs human-readable text reports.
type TextReporter struct {
	writer  io.Writer
	verbose bool
	color   bool
}

// NewTextReporter creates a text reporter. Status tags are coloured when w
// is a terminal and NO_COLOR is unset.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{
		writer:  w,
		verbose: verbose,
		color:   isTerminal(w) && os.Getenv("NO_COLOR") == "",
	}
}

// SetColor forces colour on or off.
func (r *TextReporter) SetColor(on bool) { r.color = on }

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *TextReporter) tag(status string) string {
	if !r.color {
		return "[" + status + "]"
	}
	code := ansiGreen
	switch status {
	case "FAIL":
		code = ansiRed
	case "SKIP":
		code = ansiYellow
	}
	return "[" + code + status + ansiReset + "]"
}

// ReportSuite reports suite results in text format.
func (r *TextReporter) ReportSuite(result *engine.SuiteResult) {
	fmt.Fprintf(r.writer, "\n=== Suite: %s ===\n", result.SuiteName)
	fmt.Fprintf(r.writer, "Duration: %s\n\n", result.Duration.Round(time.Millisecond))

	for _, tr := range result.Results {
		r.ReportTest(tr)
	}

	fmt.Fprintf(r.writer, "\n--- Summary ---\n")
	fmt.Fprintf(r.writer, "Total:   %d\n", len(result.Results))
	fmt.Fprintf(r.writer, "Passed:  %d\n", result.PassCount)
	fmt.Fprintf(r.writer, "Failed:  %d\n", result.FailCount)
	fmt.Fprintf(r.writer, "Skipped: %d\n", result.SkipCount)
	if total := result.PassCount + result.FailCount; total > 0 {
		fmt.Fprintf(r.writer, "Pass Rate: %.1f%%\n", float64(result.PassCount)/float64(total)*100)
	}
	if result.TimedOut {
		fmt.Fprintf(r.writer, "Suite timed out; remaining tests were not run.\n")
	}
}

// ReportTest reports a single test result in text format.
func (r *TextReporter) ReportTest(result *engine.TestResult) {
	tc := result.TestCase
	fmt.Fprintf(r.writer, "%s %s - %s (%s)\n",
		r.tag(testStatus(result)), tc.ID, tc.Name, result.Duration.Round(time.Millisecond))

	if result.Skipped && result.SkipReason != "" {
		fmt.Fprintf(r.writer, "       Skip reason: %s\n", result.SkipReason)
	}
	if !result.Passed && result.Error != nil {
		fmt.Fprintf(r.writer, "       Error: %v\n", result.Error)
	}
	if !r.verbose {
		return
	}

	for _, sr := range result.StepResults {
		fmt.Fprintf(r.writer, "    %s Step %s: %s (%s)\n",
			r.tag(stepStatus(sr)), sr.Step.Label(sr.StepIndex), sr.Step.Action, sr.Duration.Round(time.Millisecond))
		if sr.Skipped {
			fmt.Fprintf(r.writer, "           Reason: %s\n", sr.SkipReason)
			continue
		}
		if !sr.Passed && sr.Error != nil {
			fmt.Fprintf(r.writer, "           Error: %v\n", sr.Error)
		}
		for _, key := range slices.Sorted(maps.Keys(sr.ExpectResults)) {
			er := sr.ExpectResults[key]
			mark := "OK"
			if !er.Passed {
				mark = "FAILED"
			}
			fmt.Fprintf(r.writer, "           [%s] %s: %s\n", mark, key, er.Message)
		}
	}
}

func testStatus(tr *engine.TestResult) string {
	switch {
	case tr.Skipped:
		return "SKIP"
	case tr.Passed:
		return "PASS"
	}
	return "FAIL"
}

// jsonStatus maps a PASS/FAIL/SKIP tag to the JSON report's wording.
func jsonStatus(tag string) string {
	switch tag {
	case "PASS":
		return "passed"
	case "SKIP":
		return "skipped"
	}
	return "failed"
}

func stepStatus(sr *engine.StepResult) string {
	switch {
	case sr.Skipped:
		return "SKIP"
	case sr.Passed:
		return "PASS"
	}
	return "FAIL"
}

// JSONReporter outputs JSON-formatted reports.
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{writer: w, pretty: pretty}
}

// JSONSuiteResult is the JSON representation of suite results.
type JSONSuiteResult struct {
	SuiteName string           `json:"suite_name"`
	Duration  string           `json:"duration"`
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	PassRate  float64          `json:"pass_rate"`
	TimedOut  bool             `json:"timed_out,omitempty"`
	Tests     []JSONTestResult `json:"tests"`
}

// JSONTestResult is the JSON representation of a test result.
type JSONTestResult struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Status     string           `json:"status"`
	Duration   string           `json:"duration"`
	Error      string           `json:"error,omitempty"`
	SkipReason string           `json:"skip_reason,omitempty"`
	Steps      []JSONStepResult `json:"steps,omitempty"`
}

// JSONStepResult is the JSON representation of a step result.
type JSONStepResult struct {
	Index      int                   `json:"index"`
	Name       string                `json:"name"`
	Action     string                `json:"action"`
	Status     string                `json:"status"`
	Duration   string                `json:"duration"`
	Error      string                `json:"error,omitempty"`
	SkipReason string                `json:"skip_reason,omitempty"`
	Expects    map[string]JSONExpect `json:"expects,omitempty"`
	Outputs    map[string]any        `json:"outputs,omitempty"`
}

// JSONExpect is the JSON representation of an expectation result.
type JSONExpect struct {
	Passed   bool   `json:"passed"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Message  string `json:"message"`
}

// ReportSuite reports suite results in JSON format.
func (r *JSONReporter) ReportSuite(result *engine.SuiteResult) {
	var passRate float64
	if total := result.PassCount + result.FailCount; total > 0 {
		passRate = float64(result.PassCount) / float64(total) * 100
	}

	jr := JSONSuiteResult{
		SuiteName: result.SuiteName,
		Duration:  result.Duration.Round(time.Millisecond).String(),
		Total:     len(result.Results),
		Passed:    result.PassCount,
		Failed:    result.FailCount,
		Skipped:   result.SkipCount,
		PassRate:  passRate,
		TimedOut:  result.TimedOut,
		Tests:     make([]JSONTestResult, 0, len(result.Results)),
	}
	for _, tr := range result.Results {
		jr.Tests = append(jr.Tests, testToJSON(tr))
	}
	r.writeJSON(jr)
}

// ReportTest reports a single test result in JSON format.
func (r *JSONReporter) ReportTest(result *engine.TestResult) {
	r.writeJSON(testToJSON(result))
}

func testToJSON(result *engine.TestResult) JSONTestResult {
	jr := JSONTestResult{
		ID:         result.TestCase.ID,
		Name:       result.TestCase.Name,
		Status:     jsonStatus(testStatus(result)),
		Duration:   result.Duration.Round(time.Millisecond).String(),
		SkipReason: result.SkipReason,
	}
	if result.Error != nil {
		jr.Error = result.Error.Error()
	}

	for _, sr := range result.StepResults {
		jsr := JSONStepResult{
			Index:      sr.StepIndex,
			Name:       sr.Step.Label(sr.StepIndex),
			Action:     sr.Step.Action,
			Status:     jsonStatus(stepStatus(sr)),
			Duration:   sr.Duration.Round(time.Millisecond).String(),
			SkipReason: sr.SkipReason,
			Outputs:    jsonSafeMap(sr.Output),
		}
		if sr.Error != nil {
			jsr.Error = sr.Error.Error()
		}
		if len(sr.ExpectResults) > 0 {
			jsr.Expects = make(map[string]JSONExpect, len(sr.ExpectResults))
			for key, er := range sr.ExpectResults {
				jsr.Expects[key] = JSONExpect{
					Passed:   er.Passed,
					Expected: jsonSafe(er.Expected),
					Actual:   jsonSafe(er.Actual),
					Message:  er.Message,
				}
			}
		}
		jr.Steps = append(jr.Steps, jsr)
	}
	return jr
}

// jsonSafe rewrites CBOR-decoded map[any]any values, which encoding/json
// rejects, into string-keyed maps.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = jsonSafe(val)
		}
		return m
	case map[string]any:
		return jsonSafeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonSafe(val)
		}
		return out
	}
	return v
}

func jsonSafeMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = jsonSafe(v)
	}
	return out
}

func (r *JSONReporter) writeJSON(v any) {
	var data []byte
	var err error
	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		fmt.Fprintf(r.writer, `{"error": "failed to marshal: %s"}`+"\n", err)
		return
	}
	fmt.Fprintln(r.writer, string(data))
}

// JUnitReporter outputs JUnit XML for CI integration.
type JUnitReporter struct {
	writer io.Writer
}

// NewJUnitReporter creates a new JUnit reporter.
func NewJUnitReporter(w io.Writer) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

// ReportSuite reports suite results in JUnit XML format.
func (r *JUnitReporter) ReportSuite(result *engine.SuiteResult) {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<testsuite name="%s" tests="%d" failures="%d" skipped="%d" time="%.3f">`+"\n",
		escapeXML(result.SuiteName),
		len(result.Results),
		result.FailCount,
		result.SkipCount,
		result.Duration.Seconds())

	for _, tr := range result.Results {
		tc := tr.TestCase
		fmt.Fprintf(&b, `  <testcase name="%s" classname="%s" time="%.3f">`+"\n",
			escapeXML(tc.Name), escapeXML(tc.ID), tr.Duration.Seconds())

		switch {
		case tr.Skipped:
			fmt.Fprintf(&b, `    <skipped message="%s"/>`+"\n", escapeXML(tr.SkipReason))
		case !tr.Passed && tr.Error != nil:
			fmt.Fprintf(&b, `    <failure message="%s">`+"\n", escapeXML(tr.Error.Error()))
			b.WriteString("      <![CDATA[")
			for _, sr := range tr.StepResults {
				if !sr.Passed {
					fmt.Fprintf(&b, "Step %s (%s): %v\n", sr.Step.Label(sr.StepIndex), sr.Step.Action, sr.Error)
				}
			}
			b.WriteString("]]>\n")
			b.WriteString("    </failure>\n")
		}
		b.WriteString("  </testcase>\n")
	}
	b.WriteString("</testsuite>\n")

	fmt.Fprint(r.writer, b.String())
}

// ReportTest reports a single test wrapped in a one-test suite.
func (r *JUnitReporter) ReportTest(result *engine.TestResult) {
	suite := &engine.SuiteResult{
		SuiteName: "Single Test",
		Results:   []*engine.TestResult{result},
		Duration:  result.Duration,
	}
	switch {
	case result.Skipped:
		suite.SkipCount = 1
	case result.Passed:
		suite.PassCount = 1
	default:
		suite.FailCount = 1
	}
	r.ReportSuite(suite)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string { return xmlEscaper.Replace(s) }
