// Package assertions provides check results for the closure certification
// harness. A Result records what was expected and what was observed so the
// reporter can print both.
package assertions

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/clopstate/clop-go/pkg/wire"
)

// Result is the outcome of one check.
type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
}

// Pass creates a passing result.
func Pass(message string) *Result {
	return &Result{Passed: true, Message: message}
}

// Fail creates a failing result.
func Fail(message string, expected, actual any) *Result {
	return &Result{Message: message, Expected: expected, Actual: actual}
}

// String renders a failure as "message: expected X, got Y".
func (r *Result) String() string {
	if r.Passed {
		return r.Message
	}
	return fmt.Sprintf("%s: expected %v, got %v", r.Message, r.Expected, r.Actual)
}

// Equal passes when expected and actual are deeply equal.
func Equal(expected, actual any) *Result {
	if reflect.DeepEqual(expected, actual) {
		return Pass(fmt.Sprintf("values are equal: %v", expected))
	}
	return Fail("values are not equal", expected, actual)
}

// True passes when value is true.
func True(value bool) *Result {
	if value {
		return Pass("value is true")
	}
	return Fail("expected true", true, false)
}

// Nil passes for nil and typed-nil pointers.
func Nil(value any) *Result {
	if value == nil {
		return Pass("value is nil")
	}
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return Pass("value is nil")
	}
	return Fail("expected nil", nil, value)
}

// Contains checks a string for a substring or a slice for an element.
func Contains(container, element any) *Result {
	cv := reflect.ValueOf(container)
	switch cv.Kind() {
	case reflect.String:
		e := fmt.Sprint(element)
		if strings.Contains(cv.String(), e) {
			return Pass(fmt.Sprintf("string contains %q", e))
		}
		return Fail(fmt.Sprintf("string does not contain %q", e), e, cv.String())
	case reflect.Slice, reflect.Array:
		for i := 0; i < cv.Len(); i++ {
			if reflect.DeepEqual(cv.Index(i).Interface(), element) {
				return Pass(fmt.Sprintf("slice contains %v", element))
			}
		}
		return Fail("slice does not contain element", element, container)
	default:
		return Fail("container must be string, slice or array", "container", cv.Kind().String())
	}
}

// InRange passes when value lies in [lo, hi].
func InRange(value, lo, hi any) *Result {
	vf, vok := toFloat64(value)
	lf, lok := toFloat64(lo)
	hf, hok := toFloat64(hi)
	if !vok || !lok || !hok {
		return Fail("values must be numeric", "[min, max]", value)
	}
	if vf >= lf && vf <= hf {
		return Pass(fmt.Sprintf("%v is in range [%v, %v]", value, lo, hi))
	}
	return Fail(fmt.Sprintf("%v is not in range [%v, %v]", value, lo, hi), fmt.Sprintf("[%v, %v]", lo, hi), value)
}

func toFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// WithinDuration passes when actual is within tolerance of expected.
func WithinDuration(actual, expected, tolerance time.Duration) *Result {
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}
	if diff <= tolerance {
		return Pass(fmt.Sprintf("duration %v is within %v +/- %v", actual, expected, tolerance))
	}
	return Fail(fmt.Sprintf("duration %v is not within %v +/- %v", actual, expected, tolerance),
		fmt.Sprintf("%v +/- %v", expected, tolerance), actual)
}

// HasStatus passes when the device answered with the expected status.
func HasStatus(actual, expected wire.Status) *Result {
	if actual == expected {
		return Pass(fmt.Sprintf("status is %s", expected))
	}
	return Fail("status mismatch", expected, actual)
}

// HasState passes when two labelled states match.
func HasState(actual, expected string) *Result {
	if actual == expected {
		return Pass(fmt.Sprintf("state is %s", expected))
	}
	return Fail("state mismatch", expected, actual)
}

// IsInstance passes when value has the same dynamic type as prototype.
// Pointers to the prototype type are accepted.
func IsInstance(value, prototype any) *Result {
	want := reflect.TypeOf(prototype)
	got := reflect.TypeOf(value)
	if got == want || (got != nil && got.Kind() == reflect.Pointer && got.Elem() == want) {
		return Pass(fmt.Sprintf("value is a %s", want))
	}
	return Fail("value is not an instance", typeName(want), typeName(got))
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	return t.String()
}

// NoError passes for a nil error.
func NoError(err error) *Result {
	if err == nil {
		return Pass("no error")
	}
	return Fail("expected no error", nil, err.Error())
}

// ErrorContains passes when err mentions substr.
func ErrorContains(err error, substr string) *Result {
	if err == nil {
		return Fail("expected an error", "error containing "+substr, nil)
	}
	if strings.Contains(err.Error(), substr) {
		return Pass(fmt.Sprintf("error contains %q", substr))
	}
	return Fail(fmt.Sprintf("error does not contain %q", substr), substr, err.Error())
}

// Len passes when a collection has n elements.
func Len(collection any, n int) *Result {
	cv := reflect.ValueOf(collection)
	switch cv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
	default:
		return Fail("value must be a collection", "collection", cv.Kind().String())
	}
	if cv.Len() == n {
		return Pass(fmt.Sprintf("length is %d", n))
	}
	return Fail("length mismatch", n, cv.Len())
}
