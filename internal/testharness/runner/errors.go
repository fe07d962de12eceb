package runner

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/clopstate/clop-go/pkg/interaction"
	"github.com/clopstate/clop-go/pkg/transport"
)

// ErrorCategory classifies errors for retry decisions.
type ErrorCategory int

const (
	// ErrCatInfrastructure means network or timing issues that may resolve on retry.
	ErrCatInfrastructure ErrorCategory = iota
	// ErrCatDevice means the device rejected the request.
	ErrCatDevice
	// ErrCatProtocol means a protocol violation.
	ErrCatProtocol
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCatInfrastructure:
		return "infrastructure"
	case ErrCatDevice:
		return "device"
	case ErrCatProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with a category for retry decisions.
type ClassifiedError struct {
	Category ErrorCategory
	Err      error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Infrastructure wraps an error as retryable.
func Infrastructure(err error) error {
	return &ClassifiedError{Category: ErrCatInfrastructure, Err: err}
}

// Device wraps an error as a device rejection.
func Device(err error) error {
	return &ClassifiedError{Category: ErrCatDevice, Err: err}
}

// Protocol wraps an error as a protocol violation.
func Protocol(err error) error {
	return &ClassifiedError{Category: ErrCatProtocol, Err: err}
}

// Category extracts the error category. Unclassified errors count as
// protocol errors so they are not retried.
func Category(err error) ErrorCategory {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ErrCatProtocol
}

// classify assigns a category to an error from the connection or the
// interaction layer.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	if _, ok := interaction.StatusOf(err); ok {
		return Device(err)
	}
	if isIOError(err) {
		return Infrastructure(err)
	}
	return Protocol(err)
}

func isIOError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, transport.ErrConnectionClosed) ||
		errors.Is(err, interaction.ErrRequestTimeout) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "deadline exceeded")
}
