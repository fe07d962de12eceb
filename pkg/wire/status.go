package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Status represents an interaction-model status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0x00

	// StatusFailure indicates an unspecified failure.
	StatusFailure Status = 0x01

	// StatusUnsupportedEndpoint indicates the endpoint doesn't exist.
	StatusUnsupportedEndpoint Status = 0x7f

	// StatusUnsupportedCommand indicates the command isn't supported by the cluster.
	StatusUnsupportedCommand Status = 0x81

	// StatusInvalidCommand indicates the command is malformed or missing required fields.
	StatusInvalidCommand Status = 0x85

	// StatusUnsupportedAttribute indicates the attribute doesn't exist.
	StatusUnsupportedAttribute Status = 0x86

	// StatusConstraintError indicates a field value is out of range.
	StatusConstraintError Status = 0x87

	// StatusNotFound indicates a value or combination the device doesn't support.
	StatusNotFound Status = 0x8b

	// StatusTimeout indicates the operation timed out.
	StatusTimeout Status = 0x94

	// StatusBusy indicates the device is busy; try again later.
	StatusBusy Status = 0x9c

	// StatusUnsupportedCluster indicates the cluster doesn't exist on the endpoint.
	StatusUnsupportedCluster Status = 0xc3

	// StatusNeedsTimedInteraction indicates the command must be sent as a timed request.
	StatusNeedsTimedInteraction Status = 0xc6

	// StatusTimedRequestMismatch indicates the timed window didn't match the request.
	StatusTimedRequestMismatch Status = 0xc9

	// StatusInvalidInState indicates the command cannot run in the current state.
	StatusInvalidInState Status = 0xcb
)

var statusNames = map[Status]string{
	StatusSuccess:               "Success",
	StatusFailure:               "Failure",
	StatusUnsupportedEndpoint:   "UnsupportedEndpoint",
	StatusUnsupportedCommand:    "UnsupportedCommand",
	StatusInvalidCommand:        "InvalidCommand",
	StatusUnsupportedAttribute:  "UnsupportedAttribute",
	StatusConstraintError:       "ConstraintError",
	StatusNotFound:              "NotFound",
	StatusTimeout:               "Timeout",
	StatusBusy:                  "Busy",
	StatusUnsupportedCluster:    "UnsupportedCluster",
	StatusNeedsTimedInteraction: "NeedsTimedInteraction",
	StatusTimedRequestMismatch:  "TimedRequestMismatch",
	StatusInvalidInState:        "InvalidInState",
}

// String returns the status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}

// ParseStatus parses a status name ("InvalidInState", case-insensitive) or a
// numeric literal ("0xcb", "203").
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for status, name := range statusNames {
		if strings.EqualFold(name, s) {
			return status, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown status %q", s)
	}
	return Status(n), nil
}
