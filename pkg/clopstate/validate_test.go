package clopstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clopstate/clop-go/pkg/wire"
)

func TestValidateMoveTo(t *testing.T) {
	fs := DefaultFeatures()
	tag := wire.Ptr[wire.Tag]
	latch := wire.Ptr[wire.Latching]
	speed := wire.Ptr[wire.Speed]

	tests := []struct {
		name  string
		state wire.OperationalState
		cmd   wire.MoveTo
		want  wire.Status
	}{
		{"no fields", wire.StateStopped, wire.MoveTo{}, wire.StatusInvalidCommand},
		{"setup required", wire.StateSetupRequired, wire.MoveTo{Tag: tag(wire.TagCloseInFull)}, wire.StatusInvalidInState},
		{"setup required beats no fields", wire.StateSetupRequired, wire.MoveTo{}, wire.StatusInvalidInState},
		{"calibrating", wire.StateCalibrating, wire.MoveTo{Tag: tag(wire.TagOpenInFull)}, wire.StatusInvalidInState},
		{"tag only", wire.StateStopped, wire.MoveTo{Tag: tag(wire.TagSignature)}, wire.StatusSuccess},
		{"unknown tag", wire.StateStopped, wire.MoveTo{Tag: tag(10)}, wire.StatusConstraintError},
		{"latched and secured", wire.StateStopped, wire.MoveTo{Latch: latch(wire.LatchedAndSecured)}, wire.StatusSuccess},
		{"latched but not secured", wire.StateStopped, wire.MoveTo{Latch: latch(wire.LatchedButNotSecured)}, wire.StatusConstraintError},
		{"not latched", wire.StateStopped, wire.MoveTo{Latch: latch(wire.NotLatched)}, wire.StatusSuccess},
		{"unknown latch", wire.StateStopped, wire.MoveTo{Latch: latch(3)}, wire.StatusConstraintError},
		{"speed high", wire.StateRunning, wire.MoveTo{Speed: speed(wire.SpeedHigh)}, wire.StatusSuccess},
		{"unknown speed", wire.StateStopped, wire.MoveTo{Speed: speed(4)}, wire.StatusConstraintError},
		{"unknown speed with valid tag", wire.StateStopped,
			wire.MoveTo{Tag: tag(wire.TagOpenInHalf), Speed: speed(4)}, wire.StatusConstraintError},
		{"unknown tag with valid latch and speed", wire.StatePaused,
			wire.MoveTo{Tag: tag(10), Latch: latch(wire.NotLatched), Speed: speed(wire.SpeedLow)}, wire.StatusConstraintError},
		{"all fields", wire.StateStopped,
			wire.MoveTo{Tag: tag(wire.TagCloseInFull), Latch: latch(wire.LatchedAndSecured), Speed: speed(wire.SpeedHigh)}, wire.StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateMoveTo(tt.state, tt.cmd, fs))
		})
	}
}

func TestValidateMoveTo_FeatureSet(t *testing.T) {
	fs := FeatureSet{Map: FeaturePositioning}

	assert.Equal(t, wire.StatusSuccess,
		ValidateMoveTo(wire.StateStopped, wire.MoveTo{Tag: wire.Ptr(wire.TagOpenInFull)}, fs))
	assert.Equal(t, wire.StatusNotFound,
		ValidateMoveTo(wire.StateStopped, wire.MoveTo{Tag: wire.Ptr(wire.TagPedestrian)}, fs))
	assert.Equal(t, wire.StatusNotFound,
		ValidateMoveTo(wire.StateStopped, wire.MoveTo{Tag: wire.Ptr(wire.TagVentilation)}, fs))
	assert.Equal(t, wire.StatusNotFound,
		ValidateMoveTo(wire.StateStopped, wire.MoveTo{Latch: wire.Ptr(wire.NotLatched)}, fs))
	assert.Equal(t, wire.StatusNotFound,
		ValidateMoveTo(wire.StateStopped, wire.MoveTo{Speed: wire.Ptr(wire.SpeedLow)}, fs))

	// Range errors win over feature errors.
	assert.Equal(t, wire.StatusConstraintError,
		ValidateMoveTo(wire.StateStopped, wire.MoveTo{Speed: wire.Ptr(wire.Speed(9))}, fs))
}

func TestValidateMoveTo_UnsupportedCombination(t *testing.T) {
	fs := DefaultFeatures()
	fs.Unsupported = []Combination{
		{Tag: wire.Ptr(wire.TagOpenInHalf), Latch: wire.Ptr(wire.LatchedAndSecured)},
		{Tag: wire.Ptr(wire.TagOpenInHalf), Speed: wire.Ptr(wire.SpeedAutomatic)},
	}

	half := wire.Ptr(wire.TagOpenInHalf)
	assert.Equal(t, wire.StatusNotFound,
		ValidateMoveTo(wire.StateStopped, wire.MoveTo{Tag: half, Latch: wire.Ptr(wire.LatchedAndSecured)}, fs))
	assert.Equal(t, wire.StatusNotFound,
		ValidateMoveTo(wire.StateStopped, wire.MoveTo{Tag: half, Speed: wire.Ptr(wire.SpeedAutomatic)}, fs))
	assert.Equal(t, wire.StatusSuccess,
		ValidateMoveTo(wire.StateStopped, wire.MoveTo{Tag: half, Latch: wire.Ptr(wire.NotLatched)}, fs))
	assert.Equal(t, wire.StatusSuccess,
		ValidateMoveTo(wire.StateStopped, wire.MoveTo{Tag: half}, fs))
}

func TestValidateConfigureFallback(t *testing.T) {
	fs := DefaultFeatures()

	assert.Equal(t, wire.StatusInvalidCommand,
		ValidateConfigureFallback(wire.StateStopped, wire.ConfigureFallback{}, fs))
	assert.Equal(t, wire.StatusSuccess,
		ValidateConfigureFallback(wire.StateStopped, wire.ConfigureFallback{WaitingDelay: wire.Ptr(uint16(10))}, fs))
	assert.Equal(t, wire.StatusConstraintError,
		ValidateConfigureFallback(wire.StateStopped, wire.ConfigureFallback{TriggerPosition: wire.Ptr(wire.TriggerPosition(7))}, fs))
	assert.Equal(t, wire.StatusInvalidInState,
		ValidateConfigureFallback(wire.StateSetupRequired, wire.ConfigureFallback{WaitingDelay: wire.Ptr(uint16(10))}, fs))

	fs.Map &^= FeatureFallback
	assert.Equal(t, wire.StatusUnsupportedCommand,
		ValidateConfigureFallback(wire.StateStopped, wire.ConfigureFallback{WaitingDelay: wire.Ptr(uint16(10))}, fs))
}

func TestParseFeatures(t *testing.T) {
	f, err := ParseFeatures("Positioning|Speed, Calibration")
	assert.NoError(t, err)
	assert.Equal(t, FeaturePositioning|FeatureSpeed|FeatureCalibration, f)

	_, err = ParseFeatures("Teleport")
	assert.Error(t, err)

	assert.Equal(t, "Positioning|Speed|Calibration", FeatureSet{Map: f}.String())
	assert.Equal(t, "None", FeatureSet{}.String())
}
