// Package commonops holds the command and attribute helpers shared by every
// closure operational-state test case.
//
// One Operations value is built per run and handed to each case. It keeps no
// state between calls: every check issues a fresh request to the device.
package commonops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clopstate/clop-go/internal/testharness/assertions"
	"github.com/clopstate/clop-go/pkg/interaction"
	"github.com/clopstate/clop-go/pkg/wire"
)

// ErrAssertion is wrapped by every check failure.
var ErrAssertion = errors.New("assertion failed")

// AssertionError reports a mismatch between what the device returned and
// what the test case expected.
type AssertionError struct {
	// Subject names the attribute or command that was checked.
	Subject string
	Result  *assertions.Result
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Subject, e.Result)
}

func (e *AssertionError) Unwrap() error { return ErrAssertion }

// DUT is the device under test as seen by the helpers. Both
// *interaction.Client and the in-process mocks satisfy it.
type DUT interface {
	Read(ctx context.Context, endpoint uint16, cluster wire.ClusterID, attr wire.AttributeID) (any, error)
	Invoke(ctx context.Context, endpoint uint16, cluster wire.ClusterID, cmd wire.CommandID, params any, opts ...interaction.InvokeOption) (any, error)
}

// Observer is told about every exchange. The runner uses it for metrics.
type Observer interface {
	CommandSent(command string, status wire.Status)
	AttributeRead(attribute string)
	AssertionFailed()
}

type noopObserver struct{}

func (noopObserver) CommandSent(string, wire.Status) {}
func (noopObserver) AttributeRead(string)            {}
func (noopObserver) AssertionFailed()                {}

// Option configures Operations.
type Option func(*Operations)

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Operations) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver sets the exchange observer.
func WithObserver(obs Observer) Option {
	return func(o *Operations) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithCluster overrides the cluster the helpers address.
func WithCluster(id wire.ClusterID) Option {
	return func(o *Operations) { o.cluster = id }
}

// Operations issues commands and reads against one device.
type Operations struct {
	dut      DUT
	cluster  wire.ClusterID
	logger   *slog.Logger
	observer Observer
}

// New creates the helpers for dut.
func New(dut DUT, opts ...Option) *Operations {
	o := &Operations{
		dut:      dut,
		cluster:  wire.ClusterClosureOperationalState,
		logger:   slog.New(slog.DiscardHandler),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SendCommand issues cmd and returns the status the device answered with.
// A non-nil error means no status was received.
func (o *Operations) SendCommand(ctx context.Context, endpoint uint16, cmd wire.Command, timedTimeout time.Duration) (wire.Status, error) {
	var opts []interaction.InvokeOption
	if timedTimeout > 0 {
		opts = append(opts, interaction.Timed(timedTimeout))
	}
	name := wire.CommandName(cmd.CommandID())

	_, err := o.dut.Invoke(ctx, endpoint, o.cluster, cmd.CommandID(), cmd, opts...)
	status, ok := interaction.StatusOf(err)
	if !ok {
		return 0, fmt.Errorf("send %s: %w", name, err)
	}
	o.observer.CommandSent(name, status)
	o.logger.Debug("command sent", "command", name, "endpoint", endpoint, "status", status, "timed", timedTimeout > 0)
	return status, nil
}

// SendCommandExpectStatus issues cmd and checks the reply status. A Success
// reply fails the check when an error status was expected.
func (o *Operations) SendCommandExpectStatus(ctx context.Context, endpoint uint16, cmd wire.Command, expected wire.Status, timedTimeout time.Duration) error {
	status, err := o.SendCommand(ctx, endpoint, cmd, timedTimeout)
	if err != nil {
		return err
	}
	if r := assertions.HasStatus(status, expected); !r.Passed {
		return o.fail(wire.CommandName(cmd.CommandID()), r)
	}
	return nil
}

// ReadAttribute returns the raw value of attr.
func (o *Operations) ReadAttribute(ctx context.Context, endpoint uint16, attr wire.AttributeID) (any, error) {
	name := wire.AttributeName(attr)
	v, err := o.dut.Read(ctx, endpoint, o.cluster, attr)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	o.observer.AttributeRead(name)
	o.logger.Debug("attribute read", "attribute", name, "endpoint", endpoint, "value", v)
	return v, nil
}

// ReadOperationalState returns the current OperationalState.
func (o *Operations) ReadOperationalState(ctx context.Context, endpoint uint16) (wire.OperationalState, error) {
	v, err := o.ReadAttribute(ctx, endpoint, wire.AttrOperationalState)
	if err != nil {
		return 0, err
	}
	state, ok := decode[wire.OperationalState](v)
	if !ok {
		return 0, o.fail("OperationalState", assertions.IsInstance(v, state))
	}
	return state, nil
}

// ReadOperationalStateWithCheck reads OperationalState and compares it with
// expected.
func (o *Operations) ReadOperationalStateWithCheck(ctx context.Context, endpoint uint16, expected wire.OperationalState) error {
	state, err := o.ReadOperationalState(ctx, endpoint)
	if err != nil {
		return err
	}
	if r := assertions.HasState(StateEnumToText(state), StateEnumToText(expected)); !r.Passed {
		return o.fail("OperationalState", r)
	}
	return nil
}

// ReadOperationalError reads OperationalError and checks that it is an
// ErrorStateStruct.
func (o *Operations) ReadOperationalError(ctx context.Context, endpoint uint16) (*wire.ErrorStateStruct, error) {
	v, err := o.ReadAttribute(ctx, endpoint, wire.AttrOperationalError)
	if err != nil {
		return nil, err
	}
	es, ok := decode[wire.ErrorStateStruct](v)
	if !ok {
		return nil, o.fail("OperationalError", assertions.IsInstance(v, es))
	}
	return &es, nil
}

// ReadOperationalErrorWithCheck reads OperationalError and compares its
// ErrorStateID with expected.
func (o *Operations) ReadOperationalErrorWithCheck(ctx context.Context, endpoint uint16, expected wire.ErrorState) error {
	es, err := o.ReadOperationalError(ctx, endpoint)
	if err != nil {
		return err
	}
	if r := assertions.HasState(errorEnumToText(es.ErrorStateID), errorEnumToText(expected)); !r.Passed {
		return o.fail("OperationalError", r)
	}
	return nil
}

// ReadOverallStateWithInstanceCheck reads OverallState and checks that it is
// an OverallState structure.
func (o *Operations) ReadOverallStateWithInstanceCheck(ctx context.Context, endpoint uint16) (*wire.OverallState, error) {
	v, err := o.ReadAttribute(ctx, endpoint, wire.AttrOverallState)
	if err != nil {
		return nil, err
	}
	overall, ok := decode[wire.OverallState](v)
	if !ok {
		return nil, o.fail("OverallState", assertions.IsInstance(v, overall))
	}
	return &overall, nil
}

// CheckOverallState reads OverallState and compares the given sub-fields.
// A nil expectation is not checked.
func (o *Operations) CheckOverallState(ctx context.Context, endpoint uint16, positioning *wire.Positioning, latching *wire.Latching) error {
	overall, err := o.ReadOverallStateWithInstanceCheck(ctx, endpoint)
	if err != nil {
		return err
	}
	if positioning != nil {
		if r := assertions.HasState(overall.Positioning.String(), positioning.String()); !r.Passed {
			return o.fail("OverallState.Positioning", r)
		}
	}
	if latching != nil {
		if r := assertions.HasState(overall.Latching.String(), latching.String()); !r.Passed {
			return o.fail("OverallState.Latching", r)
		}
	}
	return nil
}

func (o *Operations) fail(subject string, r *assertions.Result) error {
	o.observer.AssertionFailed()
	o.logger.Debug("check failed", "subject", subject, "expected", r.Expected, "actual", r.Actual)
	return &AssertionError{Subject: subject, Result: r}
}

// StateEnumToText renders a state as "Stopped(0x00)", or "UnknownEnumValue"
// for a value outside the enum.
func StateEnumToText(s wire.OperationalState) string {
	if !s.IsKnown() {
		return "UnknownEnumValue"
	}
	return fmt.Sprintf("%s(0x%02x)", s, uint8(s))
}

func errorEnumToText(e wire.ErrorState) string {
	if !e.IsKnown() {
		return "UnknownEnumValue"
	}
	return fmt.Sprintf("%s(0x%02x)", e, uint8(e))
}

// decode converts a read value to T. Typed values pass through; decoded
// CBOR must carry exactly T's keys, optional ones aside.
func decode[T any](v any) (T, bool) {
	switch t := v.(type) {
	case T:
		return t, true
	case *T:
		if t != nil {
			return *t, true
		}
	}
	var out T
	if v == nil {
		return out, false
	}
	if err := wire.DecodeStrict(v, &out); err != nil {
		return out, false
	}
	return out, true
}
