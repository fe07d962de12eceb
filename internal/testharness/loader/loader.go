package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// yamlErrorLine extracts the first line number yaml.v3 mentions in err.
func yamlErrorLine(err error) int {
	m := yamlLinePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// ParseTestCase parses a test case from YAML bytes.
func ParseTestCase(data []byte) (*TestCase, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &LoadError{Line: yamlErrorLine(err), Message: "failed to parse YAML", Cause: err}
	}
	if len(root.Content) == 0 {
		return nil, &LoadError{Message: "empty test case"}
	}

	var tc TestCase
	if err := root.Decode(&tc); err != nil {
		return nil, &LoadError{Line: yamlErrorLine(err), Message: "invalid test case", Cause: err}
	}

	if tc.ID == "" {
		return nil, &LoadError{Line: root.Content[0].Line, Message: "test case ID is required"}
	}
	if len(tc.Steps) == 0 {
		return nil, &LoadError{Line: root.Content[0].Line, Message: "test case must have at least one step"}
	}

	stepNodes := mappingValue(root.Content[0], "steps")
	for i := range tc.Steps {
		if stepNodes != nil && i < len(stepNodes.Content) {
			tc.Steps[i].Line = stepNodes.Content[i].Line
		}
		if tc.Steps[i].Action == "" {
			return nil, &LoadError{
				Line:    tc.Steps[i].Line,
				Message: fmt.Sprintf("step %s has no action", tc.Steps[i].Label(i)),
			}
		}
		if tc.Steps[i].Timeout != "" {
			if _, err := time.ParseDuration(tc.Steps[i].Timeout); err != nil {
				return nil, &LoadError{Line: tc.Steps[i].Line, Message: "invalid step timeout", Cause: err}
			}
		}
	}
	if tc.Timeout != "" {
		if _, err := time.ParseDuration(tc.Timeout); err != nil {
			return nil, &LoadError{Message: "invalid test timeout", Cause: err}
		}
	}
	return &tc, nil
}

// mappingValue returns the value node of key in a mapping node.
func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// LoadTestCase loads a test case from a file.
func LoadTestCase(path string) (*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	tc, err := ParseTestCase(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	tc.File = path
	return tc, nil
}

// LoadDirectory loads every .yaml or .yml file under dir, recursively, in
// lexical order.
func LoadDirectory(dir string) ([]*TestCase, error) {
	var cases []*TestCase
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		tc, err := LoadTestCase(path)
		if err != nil {
			return err
		}
		cases = append(cases, tc)
		return nil
	})
	if err != nil {
		if _, ok := err.(*LoadError); ok {
			return nil, err
		}
		return nil, &LoadError{File: dir, Message: "failed to read directory", Cause: err}
	}
	return cases, nil
}

// Load loads a single file or a directory of test cases.
func Load(path string) ([]*TestCase, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to stat", Cause: err}
	}
	if info.IsDir() {
		return LoadDirectory(path)
	}
	tc, err := LoadTestCase(path)
	if err != nil {
		return nil, err
	}
	return []*TestCase{tc}, nil
}

// ParsePICS parses a PICS file. YAML files carry items:, pixit: or device:
// sections; anything else is read as key=value lines, where PIXIT.* keys
// land in the PIXIT map.
func ParsePICS(data []byte) (*PICSFile, error) {
	var (
		pf  *PICSFile
		err error
	)
	if isYAMLFormat(data) {
		pf, err = parsePICSYAML(data)
	} else {
		pf, err = parsePICSKeyValue(data)
	}
	if err != nil {
		return nil, err
	}
	if pf.Items == nil {
		pf.Items = make(map[string]any)
	}
	pixit := make(map[string]any, len(pf.PIXIT))
	for k, v := range pf.PIXIT {
		pixit[strings.TrimPrefix(k, "PIXIT.")] = v
	}
	pf.PIXIT = pixit
	return pf, nil
}

func isYAMLFormat(data []byte) bool {
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, section := range []string{"items:", "pixit:", "device:"} {
			if strings.HasPrefix(trimmed, section) {
				return true
			}
		}
		if strings.Contains(trimmed, "=") && !strings.Contains(trimmed, ":") {
			return false
		}
	}
	return false
}

func parsePICSYAML(data []byte) (*PICSFile, error) {
	var pf PICSFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, &LoadError{Line: yamlErrorLine(err), Message: "failed to parse YAML PICS", Cause: err}
	}
	return &pf, nil
}

func parsePICSKeyValue(data []byte) (*PICSFile, error) {
	pf := &PICSFile{
		Items: make(map[string]any),
		PIXIT: make(map[string]any),
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, &LoadError{Line: lineNum, Message: fmt.Sprintf("invalid PICS line: %s", line)}
		}
		key = strings.TrimSpace(key)
		if strings.HasPrefix(key, "PIXIT.") {
			pf.PIXIT[key] = parseScalar(strings.TrimSpace(value))
			continue
		}
		pf.Items[key] = parseScalar(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, &LoadError{Message: "failed to read PICS data", Cause: err}
	}
	return pf, nil
}

func parseScalar(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// LoadPICS loads a PICS file from disk.
func LoadPICS(path string) (*PICSFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read PICS file", Cause: err}
	}

	pf, err := ParsePICS(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	if pf.Name == "" {
		pf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return pf, nil
}

// Supported reports whether item is present and not false.
func (pf *PICSFile) Supported(item string) bool {
	if pf == nil {
		return false
	}
	v, ok := pf.Items[item]
	if !ok {
		return false
	}
	if b, isBool := v.(bool); isBool {
		return b
	}
	return true
}

// StepEnabled evaluates a step gate. An empty gate or a nil PICS file
// enables the step.
func (pf *PICSFile) StepEnabled(gate string) bool {
	gate = strings.TrimSpace(gate)
	if gate == "" || pf == nil {
		return true
	}
	if item, negated := strings.CutPrefix(gate, "!"); negated {
		return !pf.Supported(strings.TrimSpace(item))
	}
	return pf.Supported(gate)
}

// PIXITValue returns a PIXIT value. The "PIXIT." prefix is optional.
func (pf *PICSFile) PIXITValue(name string) (any, bool) {
	if pf == nil {
		return nil, false
	}
	v, ok := pf.PIXIT[strings.TrimPrefix(name, "PIXIT.")]
	return v, ok
}

// PIXITDuration returns a timing PIXIT given in seconds.
func (pf *PICSFile) PIXITDuration(name string) (time.Duration, error) {
	v, ok := pf.PIXITValue(name)
	if !ok {
		return 0, fmt.Errorf("PIXIT %s not set", name)
	}
	secs, ok := toSeconds(v)
	if !ok || secs < 0 {
		return 0, fmt.Errorf("PIXIT %s: invalid duration %v", name, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func toSeconds(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// CheckPICSRequirements reports whether every requirement is supported.
func CheckPICSRequirements(pf *PICSFile, requirements []string) bool {
	for _, req := range requirements {
		if !pf.Supported(req) {
			return false
		}
	}
	return true
}

// FilterTestCases returns the cases whose PICS requirements pf meets.
func FilterTestCases(cases []*TestCase, pf *PICSFile) []*TestCase {
	var result []*TestCase
	for _, tc := range cases {
		if CheckPICSRequirements(pf, tc.PICSRequirements) {
			result = append(result, tc)
		}
	}
	return result
}

// Timing PIXITs the shipped closure cases use.
var timingPIXITs = []string{
	"CLOPSTATE.FullMotionDelay",
	"CLOPSTATE.HalfMotionDelay",
	"CLOPSTATE.InitiateCalibrationDelay",
	"CLOPSTATE.ConcludeCalibrationDelay",
	"CLOPSTATE.AbortingCalibrationDelay",
}

// ValidatePICS checks a PICS file for conformance rules.
func ValidatePICS(pf *PICSFile) []*ValidationError {
	if pf == nil {
		return nil
	}

	var errs []*ValidationError

	// Any CLOPSTATE.S.* item needs the server itself.
	if !pf.Supported("CLOPSTATE.S") {
		for _, key := range slices.Sorted(maps.Keys(pf.Items)) {
			if strings.HasPrefix(key, "CLOPSTATE.S.") && pf.Supported(key) {
				errs = append(errs, &ValidationError{
					Field:   key,
					Message: "requires CLOPSTATE.S to be true",
					Level:   ValidationLevelError,
				})
			}
		}
	}

	for _, name := range timingPIXITs {
		if _, ok := pf.PIXITValue(name); !ok {
			continue
		}
		if _, err := pf.PIXITDuration(name); err != nil {
			errs = append(errs, &ValidationError{Field: "PIXIT." + name, Message: err.Error(), Level: ValidationLevelError})
		}
	}

	full, errFull := pf.PIXITDuration("CLOPSTATE.FullMotionDelay")
	half, errHalf := pf.PIXITDuration("CLOPSTATE.HalfMotionDelay")
	if errFull == nil && errHalf == nil && half >= full {
		errs = append(errs, &ValidationError{
			Field:   "PIXIT.CLOPSTATE.HalfMotionDelay",
			Message: fmt.Sprintf("should be shorter than FullMotionDelay (%v >= %v)", half, full),
			Level:   ValidationLevelWarning,
		})
	}

	return errs
}
