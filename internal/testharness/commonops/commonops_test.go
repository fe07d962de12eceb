package commonops_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clopstate/clop-go/internal/testharness/commonops"
	"github.com/clopstate/clop-go/internal/testharness/mock"
	"github.com/clopstate/clop-go/pkg/apppipe"
	"github.com/clopstate/clop-go/pkg/closure"
	"github.com/clopstate/clop-go/pkg/wire"
)

const (
	ep      uint16 = 1
	cluster        = wire.ClusterClosureOperationalState
)

func simulated(t *testing.T, mutate ...func(*closure.Config)) (*commonops.Operations, *closure.Device) {
	t.Helper()
	cfg := closure.Config{
		FullMotionDuration: 40 * time.Millisecond,
		ProgressInterval:   5 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	dev := closure.New(cfg)
	t.Cleanup(func() { dev.Close() })
	return commonops.New(mock.NewLoopback(dev)), dev
}

func requireAssertion(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, commonops.ErrAssertion)
	var ae *commonops.AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, err.Error(), contains)
}

func TestSendCommandExpectStatus(t *testing.T) {
	ops, _ := simulated(t)
	ctx := context.Background()

	// No fields at all.
	require.NoError(t, ops.SendCommandExpectStatus(ctx, ep, wire.MoveTo{}, wire.StatusInvalidCommand, 0))

	// Stop while stopped is idempotent.
	require.NoError(t, ops.SendCommandExpectStatus(ctx, ep, wire.Stop{}, wire.StatusSuccess, 0))

	// Unknown enum value in any field.
	require.NoError(t, ops.SendCommandExpectStatus(ctx, ep,
		wire.MoveTo{Tag: wire.Ptr(wire.Tag(0x20)), Speed: wire.Ptr(wire.SpeedHigh)},
		wire.StatusConstraintError, 0))

	err := ops.SendCommandExpectStatus(ctx, ep, wire.MoveTo{}, wire.StatusConstraintError, 0)
	requireAssertion(t, err, "MoveTo: status mismatch: expected ConstraintError, got InvalidCommand")
}

func TestUnexpectedSuccessFails(t *testing.T) {
	ops, _ := simulated(t)

	err := ops.SendCommandExpectStatus(context.Background(), ep, wire.Stop{}, wire.StatusInvalidInState, 0)
	requireAssertion(t, err, "expected InvalidInState, got Success")
}

func TestSetupRequiredBlocksMotionAndCalibrate(t *testing.T) {
	ops, dev := simulated(t)
	ctx := context.Background()
	require.NoError(t, dev.Inject(apppipe.SetupRequired(true)))

	require.NoError(t, ops.ReadOperationalStateWithCheck(ctx, ep, wire.StateSetupRequired))
	require.NoError(t, ops.SendCommandExpectStatus(ctx, ep,
		wire.MoveTo{Tag: wire.Ptr(wire.TagOpenInFull)}, wire.StatusInvalidInState, 0))
	require.NoError(t, ops.SendCommandExpectStatus(ctx, ep, wire.Calibrate{}, wire.StatusInvalidInState, 0))
}

func TestMoveToReturnsToRest(t *testing.T) {
	ops, _ := simulated(t)
	ctx := context.Background()

	require.NoError(t, ops.SendCommandExpectStatus(ctx, ep, wire.MoveTo{
		Tag:   wire.Ptr(wire.TagOpenInFull),
		Latch: wire.Ptr(wire.LatchedAndSecured),
		Speed: wire.Ptr(wire.SpeedHigh),
	}, wire.StatusSuccess, 0))
	require.NoError(t, ops.ReadOperationalStateWithCheck(ctx, ep, wire.StateRunning))

	require.Eventually(t, func() bool {
		return ops.ReadOperationalStateWithCheck(ctx, ep, wire.StateStopped) == nil
	}, 2*time.Second, 10*time.Millisecond)

	opened, secured := wire.FullyOpened, wire.LatchedAndSecured
	require.NoError(t, ops.CheckOverallState(ctx, ep, &opened, &secured))

	closed := wire.FullyClosed
	err := ops.CheckOverallState(ctx, ep, &closed, nil)
	requireAssertion(t, err, "OverallState.Positioning")
}

func TestCalibrateThenStop(t *testing.T) {
	ops, _ := simulated(t)
	ctx := context.Background()

	require.NoError(t, ops.SendCommandExpectStatus(ctx, ep, wire.Calibrate{}, wire.StatusSuccess, 0))
	require.NoError(t, ops.ReadOperationalStateWithCheck(ctx, ep, wire.StateCalibrating))

	require.NoError(t, ops.SendCommandExpectStatus(ctx, ep, wire.Stop{}, wire.StatusSuccess, 0))
	require.NoError(t, ops.ReadOperationalStateWithCheck(ctx, ep, wire.StateStopped))
	require.NoError(t, ops.ReadOperationalErrorWithCheck(ctx, ep, wire.ErrorNoError))
}

func TestReadOperationalErrorMismatch(t *testing.T) {
	ops, dev := simulated(t)
	require.NoError(t, dev.Inject(apppipe.ErrorEvent("Blocked")))

	err := ops.ReadOperationalErrorWithCheck(context.Background(), ep, wire.ErrorNoError)
	requireAssertion(t, err, "OperationalError: state mismatch: expected NoError(0x00), got Blocked(0x40)")
}

func TestTimedCommand(t *testing.T) {
	ops, _ := simulated(t, func(c *closure.Config) {
		c.TimedCommands = []wire.CommandID{wire.CmdStop}
	})
	ctx := context.Background()

	require.NoError(t, ops.SendCommandExpectStatus(ctx, ep, wire.Stop{}, wire.StatusNeedsTimedInteraction, 0))
	require.NoError(t, ops.SendCommandExpectStatus(ctx, ep, wire.Stop{}, wire.StatusSuccess, time.Second))
}

func TestStateMismatchMessage(t *testing.T) {
	dut := new(mock.DUT)
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOperationalState).
		Return(uint64(wire.StateRunning), nil)
	ops := commonops.New(dut)

	err := ops.ReadOperationalStateWithCheck(context.Background(), ep, wire.StateStopped)
	requireAssertion(t, err, "OperationalState: state mismatch: expected Stopped(0x00), got Running(0x01)")
}

func TestInstanceChecks(t *testing.T) {
	dut := new(mock.DUT)
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOverallState).
		Return(uint64(3), nil)
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOperationalError).
		Return(map[any]any{uint64(1): uint64(0), uint64(9): "extra"}, nil)
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOperationalState).
		Return(uint64(300), nil)
	ops := commonops.New(dut)
	ctx := context.Background()

	_, err := ops.ReadOverallStateWithInstanceCheck(ctx, ep)
	requireAssertion(t, err, "expected wire.OverallState, got uint64")

	err = ops.ReadOperationalErrorWithCheck(ctx, ep, wire.ErrorNoError)
	requireAssertion(t, err, "OperationalError")

	err = ops.ReadOperationalStateWithCheck(ctx, ep, wire.StateStopped)
	requireAssertion(t, err, "OperationalState")
}

func TestInstanceCheckRequiresAllFields(t *testing.T) {
	dut := new(mock.DUT)
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOverallState).
		Return(map[any]any{}, nil).Once()
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOverallState).
		Return(map[any]any{uint64(1): uint64(0)}, nil).Once()
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOverallState).
		Return(map[any]any{uint64(1): uint64(0), uint64(2): uint64(0), uint64(3): uint64(0)}, nil).Once()
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOperationalError).
		Return(map[any]any{}, nil).Once()
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOperationalError).
		Return(map[any]any{uint64(1): uint64(0)}, nil).Once()
	ops := commonops.New(dut)
	ctx := context.Background()

	_, err := ops.ReadOverallStateWithInstanceCheck(ctx, ep)
	requireAssertion(t, err, "expected wire.OverallState")

	_, err = ops.ReadOverallStateWithInstanceCheck(ctx, ep)
	requireAssertion(t, err, "expected wire.OverallState")

	overall, err := ops.ReadOverallStateWithInstanceCheck(ctx, ep)
	require.NoError(t, err)
	assert.Equal(t, wire.FullyClosed, overall.Positioning)

	err = ops.ReadOperationalErrorWithCheck(ctx, ep, wire.ErrorNoError)
	requireAssertion(t, err, "OperationalError")

	require.NoError(t, ops.ReadOperationalErrorWithCheck(ctx, ep, wire.ErrorNoError))
	dut.AssertExpectations(t)
}

func TestTypedValuesPassInstanceCheck(t *testing.T) {
	dut := new(mock.DUT)
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOverallState).
		Return(&wire.OverallState{Positioning: wire.PartiallyOpened}, nil)
	ops := commonops.New(dut)

	overall, err := ops.ReadOverallStateWithInstanceCheck(context.Background(), ep)
	require.NoError(t, err)
	assert.Equal(t, wire.PartiallyOpened, overall.Positioning)
}

func TestTransportErrorsAreNotAssertions(t *testing.T) {
	boom := errors.New("connection reset")
	dut := new(mock.DUT)
	dut.On("Invoke", testifymock.Anything, ep, cluster, wire.CmdStop, testifymock.Anything, uint16(0)).
		Return(nil, boom)
	dut.On("Read", testifymock.Anything, ep, cluster, wire.AttrOperationalState).
		Return(nil, boom)
	ops := commonops.New(dut)
	ctx := context.Background()

	err := ops.SendCommandExpectStatus(ctx, ep, wire.Stop{}, wire.StatusSuccess, 0)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, commonops.ErrAssertion)

	err = ops.ReadOperationalStateWithCheck(ctx, ep, wire.StateStopped)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, commonops.ErrAssertion)
}

func TestTimedWindowReachesDevice(t *testing.T) {
	dut := new(mock.DUT)
	dut.On("Invoke", testifymock.Anything, ep, cluster, wire.CmdPause, testifymock.Anything, uint16(2500)).
		Return(nil, mock.Status(wire.StatusInvalidInState))
	ops := commonops.New(dut)

	require.NoError(t, ops.SendCommandExpectStatus(context.Background(), ep, wire.Pause{}, wire.StatusInvalidInState, 2500*time.Millisecond))
	dut.AssertExpectations(t)
}

type countingObserver struct {
	commands, reads, failures int
	last                      wire.Status
}

func (c *countingObserver) CommandSent(_ string, s wire.Status) { c.commands++; c.last = s }
func (c *countingObserver) AttributeRead(string)                { c.reads++ }
func (c *countingObserver) AssertionFailed()                    { c.failures++ }

func TestObserver(t *testing.T) {
	dev := closure.New(closure.Config{})
	t.Cleanup(func() { dev.Close() })
	obs := &countingObserver{}
	ops := commonops.New(mock.NewLoopback(dev), commonops.WithObserver(obs))
	ctx := context.Background()

	_ = ops.SendCommandExpectStatus(ctx, ep, wire.Resume{}, wire.StatusSuccess, 0)
	_ = ops.ReadOperationalStateWithCheck(ctx, ep, wire.StateStopped)

	assert.Equal(t, 1, obs.commands)
	assert.Equal(t, wire.StatusInvalidInState, obs.last)
	assert.Equal(t, 1, obs.reads)
	assert.Equal(t, 1, obs.failures)
}

func TestStateEnumToText(t *testing.T) {
	assert.Equal(t, "Stopped(0x00)", commonops.StateEnumToText(wire.StateStopped))
	assert.Equal(t, "Calibrating(0x64)", commonops.StateEnumToText(wire.StateCalibrating))
	assert.Equal(t, "UnknownEnumValue", commonops.StateEnumToText(wire.OperationalState(0x50)))
}
