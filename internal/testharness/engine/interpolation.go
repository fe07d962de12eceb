package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/clopstate/clop-go/internal/testharness/loader"
)

// variablePattern matches {{ variable }} templates.
var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// picsPattern matches ${PIXIT.Name} and ${PICS.ITEM} references.
var picsPattern = regexp.MustCompile(`\$\{\s*([A-Za-z][A-Za-z0-9_.]*)\s*\}`)

// Interpolate replaces {{ variable }} placeholders with values from state.
// Undefined variables are left unchanged.
func Interpolate(template string, state *ExecutionState) string {
	if state == nil {
		return template
	}
	return variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		value, ok := state.Outputs[name]
		if !ok {
			return match
		}
		return valueToString(value)
	})
}

// InterpolateParams interpolates every string in params. A string that is
// exactly one reference keeps the referenced value's type.
func InterpolateParams(params map[string]any, state *ExecutionState) map[string]any {
	return InterpolateParamsWithPICS(params, state, nil)
}

// InterpolateParamsWithPICS is InterpolateParams that also resolves
// ${PIXIT.Name} and ${ITEM} references against pics.
func InterpolateParamsWithPICS(params map[string]any, state *ExecutionState, pics *loader.PICSFile) map[string]any {
	if params == nil {
		return nil
	}
	result := make(map[string]any, len(params))
	for key, value := range params {
		result[key] = interpolateValue(value, state, pics)
	}
	return result
}

func interpolateValue(value any, state *ExecutionState, pics *loader.PICSFile) any {
	switch v := value.(type) {
	case string:
		return interpolateString(v, state, pics)
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, val := range v {
			result[k] = interpolateValue(val, state, pics)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = interpolateValue(val, state, pics)
		}
		return result
	default:
		return value
	}
}

func interpolateString(s string, state *ExecutionState, pics *loader.PICSFile) any {
	trimmed := strings.TrimSpace(s)

	if state != nil && isPureRef(variablePattern, trimmed) {
		name := variablePattern.FindStringSubmatch(trimmed)[1]
		if value, ok := state.Outputs[name]; ok {
			return value
		}
		return s
	}
	if pics != nil && isPureRef(picsPattern, trimmed) {
		if value, ok := lookupPICS(pics, picsPattern.FindStringSubmatch(trimmed)[1]); ok {
			return value
		}
		return s
	}

	out := Interpolate(s, state)
	if pics != nil {
		out = picsPattern.ReplaceAllStringFunc(out, func(match string) string {
			if value, ok := lookupPICS(pics, picsPattern.FindStringSubmatch(match)[1]); ok {
				return valueToString(value)
			}
			return match
		})
	}
	return out
}

func lookupPICS(pics *loader.PICSFile, name string) (any, bool) {
	if strings.HasPrefix(name, "PIXIT.") {
		return pics.PIXITValue(name)
	}
	v, ok := pics.Items[name]
	return v, ok
}

func isPureRef(re *regexp.Regexp, s string) bool {
	loc := re.FindAllStringIndex(s, -1)
	return len(loc) == 1 && loc[0][0] == 0 && loc[0][1] == len(s)
}

func valueToString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
