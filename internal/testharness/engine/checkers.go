package engine

import (
	"fmt"

	"github.com/clopstate/clop-go/internal/testharness/assertions"
)

// sameValue compares by rendering, so YAML ints match decoded uint64s.
func sameValue(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func missing(key, output string, expected any) *ExpectResult {
	return &ExpectResult{
		Key:      key,
		Expected: expected,
		Passed:   false,
		Message:  fmt.Sprintf("output key %q not found", output),
	}
}

func fromResult(key string, expected, actual any, r *assertions.Result) *ExpectResult {
	return &ExpectResult{
		Key:      key,
		Expected: expected,
		Actual:   actual,
		Passed:   r.Passed,
		Message:  r.String(),
	}
}

// defaultChecker compares the output named key with expected. The string
// "present" only requires the key to exist.
func defaultChecker(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(key)
	if !ok {
		return missing(key, key, expected)
	}
	if s, isStr := expected.(string); isStr {
		if s == "present" {
			return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: true,
				Message: fmt.Sprintf("%s = %v", key, actual)}
		}
		if picsPattern.MatchString(s) {
			return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: false,
				Message: fmt.Sprintf("unresolved PICS reference %s (no -pics flag provided?)", s)}
		}
	}
	if sameValue(expected, actual) {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: true,
			Message: fmt.Sprintf("%s = %v", key, expected)}
	}
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: false,
		Message: fmt.Sprintf("expected %v, got %v", expected, actual)}
}

// CheckerValueEquals compares the "value" output with expected.
func CheckerValueEquals(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, KeyValue, expected)
	}
	r := assertions.Equal(fmt.Sprintf("%v", expected), fmt.Sprintf("%v", actual))
	return fromResult(key, expected, actual, r)
}

// CheckerValueNot passes when "value" differs from expected.
func CheckerValueNot(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, KeyValue, expected)
	}
	if sameValue(expected, actual) {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: false,
			Message: fmt.Sprintf("value must not be %v", expected)}
	}
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: true,
		Message: fmt.Sprintf("%v != %v", actual, expected)}
}

// CheckerValueIn passes when "value" equals one of the expected list items.
func CheckerValueIn(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, KeyValue, expected)
	}
	list, isList := expected.([]any)
	if !isList {
		return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: false,
			Message: fmt.Sprintf("value_in expects a list, got %T", expected)}
	}
	for _, item := range list {
		if sameValue(item, actual) {
			return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: true,
				Message: fmt.Sprintf("%v in %v", actual, list)}
		}
	}
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: false,
		Message: fmt.Sprintf("%v not in %v", actual, list)}
}

// CheckerValueInRange checks "value" against {min, max} or [min, max].
func CheckerValueInRange(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, KeyValue, expected)
	}
	var lo, hi any
	switch e := expected.(type) {
	case map[string]any:
		lo, hi = e["min"], e["max"]
	case []any:
		if len(e) == 2 {
			lo, hi = e[0], e[1]
		}
	}
	return fromResult(key, expected, actual, assertions.InRange(actual, lo, hi))
}

// CheckerContains checks that the "value" string or list contains expected.
func CheckerContains(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, KeyValue, expected)
	}
	if list, isList := actual.([]any); isList {
		for _, item := range list {
			if sameValue(item, expected) {
				return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: true,
					Message: fmt.Sprintf("list contains %v", expected)}
			}
		}
		return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: false,
			Message: fmt.Sprintf("list does not contain %v", expected)}
	}
	return fromResult(key, expected, actual, assertions.Contains(actual, expected))
}

// CheckerSaveAs stores "value" under the name given as expected.
func CheckerSaveAs(key string, expected any, state *ExecutionState) *ExpectResult {
	name, ok := expected.(string)
	if !ok || name == "" {
		return &ExpectResult{Key: key, Expected: expected, Passed: false,
			Message: "save_as expects a variable name"}
	}
	actual, ok := state.Get(KeyValue)
	if !ok {
		return missing(key, KeyValue, expected)
	}
	state.Set(name, actual)
	return &ExpectResult{Key: key, Expected: expected, Actual: actual, Passed: true,
		Message: fmt.Sprintf("saved %v as %s", actual, name)}
}

// RegisterStandardCheckers installs the value checkers on e.
func RegisterStandardCheckers(e *Engine) {
	e.RegisterChecker(CheckerNameValueEquals, CheckerValueEquals)
	e.RegisterChecker(CheckerNameValueNot, CheckerValueNot)
	e.RegisterChecker(CheckerNameValueIn, CheckerValueIn)
	e.RegisterChecker(CheckerNameValueInRange, CheckerValueInRange)
	e.RegisterChecker(CheckerNameContains, CheckerContains)
	e.RegisterChecker(CheckerNameSaveAs, CheckerSaveAs)
}
