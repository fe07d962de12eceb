package clopstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clopstate/clop-go/pkg/wire"
)

func moveTo(tag wire.Tag, latch wire.Latching, speed wire.Speed) Input {
	return Input{Kind: KindMoveTo, MoveTo: wire.MoveTo{Tag: &tag, Latch: &latch, Speed: &speed}}
}

func TestMachine_MoveToCompletesInStopped(t *testing.T) {
	m := NewMachine(DefaultFeatures())

	out := m.Handle(moveTo(wire.TagCloseInFull, wire.LatchedAndSecured, wire.SpeedHigh))
	require.Equal(t, wire.StatusSuccess, out.Status)
	assert.Equal(t, wire.StateRunning, out.Next)
	assert.True(t, out.Effect.Has(EffectStartMotion))

	out = m.Handle(Event(KindMotionComplete))
	assert.True(t, out.Handled)
	assert.Equal(t, wire.StateStopped, m.State())
	assert.Equal(t, wire.OverallState{
		Positioning: wire.FullyClosed,
		Latching:    wire.LatchedAndSecured,
		Speed:       wire.SpeedHigh,
	}, m.OverallState())
}

func TestMachine_StopIsIdempotent(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	for i := 0; i < 3; i++ {
		out := m.Handle(Input{Kind: KindStop})
		assert.Equal(t, wire.StatusSuccess, out.Status)
		assert.Equal(t, wire.StateStopped, out.Next)
		assert.False(t, out.Changed())
	}
}

func TestMachine_StopWhileRunning(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	m.Handle(moveTo(wire.TagOpenInFull, wire.NotLatched, wire.SpeedLow))
	m.Progress(0.4)

	out := m.Handle(Input{Kind: KindStop})
	assert.Equal(t, wire.StatusSuccess, out.Status)
	assert.True(t, out.Effect.Has(EffectAbortMotion))
	assert.Equal(t, wire.StateStopped, m.State())

	snap := m.Snapshot()
	assert.False(t, snap.Moving)
	assert.Equal(t, wire.PartiallyOpened, snap.Overall.Positioning)
	assert.InDelta(t, 0.4, snap.Fraction, 1e-9)
}

func TestMachine_SetupRequiredBlocks(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	m.Handle(Event(KindSetupRequired))
	require.Equal(t, wire.StateSetupRequired, m.State())

	for _, in := range []Input{
		moveTo(wire.TagCloseInFull, wire.LatchedAndSecured, wire.SpeedHigh),
		{Kind: KindCalibrate},
		{Kind: KindStop},
	} {
		out := m.Handle(in)
		assert.Equal(t, wire.StatusInvalidInState, out.Status, in.Kind.String())
		assert.Equal(t, wire.StateSetupRequired, m.State())
	}

	m.Handle(Event(KindForceStopped))
	assert.Equal(t, wire.StateStopped, m.State())
}

func TestMachine_Calibration(t *testing.T) {
	m := NewMachine(DefaultFeatures())

	out := m.Handle(Input{Kind: KindCalibrate})
	require.Equal(t, wire.StatusSuccess, out.Status)
	assert.Equal(t, wire.StateCalibrating, m.State())

	// Calibrate again while calibrating is accepted.
	out = m.Handle(Input{Kind: KindCalibrate})
	assert.Equal(t, wire.StatusSuccess, out.Status)
	assert.Equal(t, EffectNone, out.Effect)

	out = m.Handle(Input{Kind: KindStop})
	assert.Equal(t, wire.StatusSuccess, out.Status)
	assert.True(t, out.Effect.Has(EffectAbortCalibration))
	assert.Equal(t, wire.StateStopped, m.State())
	assert.Equal(t, wire.ErrorNoError, m.ErrorState())
}

func TestMachine_CalibrationFaults(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	m.Handle(Input{Kind: KindCalibrate})

	out := m.Handle(Fault(wire.ErrorBlocked))
	assert.True(t, out.Effect.Has(EffectAbortCalibration))
	assert.Equal(t, wire.StateError, m.State())
	assert.Equal(t, wire.ErrorBlocked, m.ErrorState())

	m.Handle(Input{Kind: KindCalibrate})
	assert.Equal(t, wire.StateError, m.State())

	m.Handle(Event(KindClearError))
	assert.Equal(t, wire.StateStopped, m.State())
	assert.Equal(t, wire.ErrorNoError, m.ErrorState())
}

func TestMachine_CalibrationFailedDefaultsError(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	m.Handle(Input{Kind: KindCalibrate})
	m.Handle(Event(KindCalibrationFailed))
	assert.Equal(t, wire.StateError, m.State())
	assert.Equal(t, wire.ErrorUnableToCompleteOperation, m.ErrorState())
}

func TestMachine_ClearErrorSettlesInSetupRequired(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	m.Handle(Event(KindSetupRequired))
	m.Handle(Fault(wire.ErrorMaintenanceRequired))
	require.Equal(t, wire.StateError, m.State())

	m.Handle(Event(KindClearError))
	assert.Equal(t, wire.StateSetupRequired, m.State())

	// ClearError outside Error is ignored.
	out := m.Handle(Event(KindClearError))
	assert.False(t, out.Handled)
	assert.Equal(t, wire.StateSetupRequired, m.State())
}

func TestMachine_SequenceNextStep(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	steps := []struct {
		latch wire.Latching
		want  wire.Positioning
	}{
		{wire.LatchedAndSecured, wire.FullyOpened},
		{wire.NotLatched, wire.FullyClosed},
		{wire.LatchedAndSecured, wire.FullyOpened},
	}
	for _, s := range steps {
		m.Handle(moveTo(wire.TagSequenceNextStep, s.latch, wire.SpeedHigh))
		m.Handle(Event(KindMotionComplete))
		got := m.OverallState()
		assert.Equal(t, s.want, got.Positioning)
		assert.Equal(t, s.latch, got.Latching)
	}
}

func TestMachine_PedestrianNextStep(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	tag := wire.TagPedestrianNextStep
	m.Handle(Input{Kind: KindMoveTo, MoveTo: wire.MoveTo{Tag: &tag}})
	m.Handle(Event(KindMotionComplete))
	assert.Equal(t, wire.OpenedForPedestrian, m.OverallState().Positioning)

	m.Handle(Input{Kind: KindMoveTo, MoveTo: wire.MoveTo{Tag: &tag}})
	m.Handle(Event(KindMotionComplete))
	assert.Equal(t, wire.FullyClosed, m.OverallState().Positioning)
}

func TestMachine_PauseResume(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	assert.Equal(t, wire.StatusInvalidInState, m.Handle(Input{Kind: KindPause}).Status)

	m.Handle(moveTo(wire.TagOpenInFull, wire.NotLatched, wire.SpeedMedium))
	out := m.Handle(Input{Kind: KindPause})
	assert.Equal(t, wire.StatusSuccess, out.Status)
	assert.True(t, out.Effect.Has(EffectPauseMotion))
	assert.Equal(t, wire.StatePaused, m.State())

	out = m.Handle(Input{Kind: KindResume})
	assert.True(t, out.Effect.Has(EffectResumeMotion))
	assert.Equal(t, wire.StateRunning, m.State())
}

func TestMachine_UnsupportedCalibrate(t *testing.T) {
	m := NewMachine(FeatureSet{Map: FeaturePositioning})
	out := m.Handle(Input{Kind: KindCalibrate})
	assert.Equal(t, wire.StatusUnsupportedCommand, out.Status)
	assert.Equal(t, wire.StateStopped, m.State())
}

func TestMachine_Fallback(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	out := m.Handle(Input{Kind: KindConfigureFallback, Fallback: wire.ConfigureFallback{
		RestingProcedure: wire.Ptr(wire.RestingGoToFullyClosed),
		WaitingDelay:     wire.Ptr(uint16(120)),
	}})
	require.Equal(t, wire.StatusSuccess, out.Status)

	fb := m.Fallback()
	assert.True(t, fb.Configured)
	assert.Equal(t, wire.RestingGoToFullyClosed, fb.RestingProcedure)
	assert.Equal(t, uint16(120), fb.WaitingDelay)

	m.Handle(Input{Kind: KindCancelFallback})
	assert.Equal(t, Fallback{}, m.Fallback())
}

func TestMachine_ProtectionAndEngage(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	m.Handle(moveTo(wire.TagOpenInFull, wire.NotLatched, wire.SpeedLow))
	out := m.Handle(Event(KindProtectionRaised))
	assert.True(t, out.Effect.Has(EffectAbortMotion))
	assert.Equal(t, wire.StateProtected, m.State())
	m.Handle(Event(KindProtectionDropped))
	assert.Equal(t, wire.StateStopped, m.State())

	m.Handle(Event(KindDisengage))
	assert.Equal(t, wire.StateDisengaged, m.State())
	assert.Equal(t, wire.StatusInvalidInState, m.Handle(Input{Kind: KindCalibrate}).Status)
	m.Handle(Event(KindEngage))
	assert.Equal(t, wire.StateStopped, m.State())
}

func TestMachine_ResetClearsEverything(t *testing.T) {
	m := NewMachine(DefaultFeatures())
	m.Handle(Event(KindSetupRequired))
	m.Handle(Fault(wire.ErrorThermalProtected))
	m.Handle(Event(KindReset))

	snap := m.Snapshot()
	assert.Equal(t, wire.StateStopped, snap.State)
	assert.Equal(t, wire.ErrorNoError, snap.Error)
	assert.False(t, snap.NotOperational)
}
