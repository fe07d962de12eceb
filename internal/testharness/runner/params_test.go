package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clopstate/clop-go/pkg/apppipe"
	"github.com/clopstate/clop-go/pkg/wire"
)

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   wire.Command
	}{
		{
			name:   "stop",
			params: map[string]any{"command": "Stop"},
			want:   wire.Stop{},
		},
		{
			name:   "move to by name",
			params: map[string]any{"command": "MoveTo", "tag": "OpenInFull", "speed": "High"},
			want:   wire.MoveTo{Tag: wire.Ptr(wire.TagOpenInFull), Speed: wire.Ptr(wire.SpeedHigh)},
		},
		{
			name:   "move to with unknown enum value",
			params: map[string]any{"command": "MoveTo", "tag": 0x20},
			want:   wire.MoveTo{Tag: wire.Ptr(wire.Tag(0x20))},
		},
		{
			name:   "move to without fields",
			params: map[string]any{"command": "moveto"},
			want:   wire.MoveTo{},
		},
		{
			name:   "latch as hex string",
			params: map[string]any{"command": "MoveTo", "latch": "0x02"},
			want:   wire.MoveTo{Latch: wire.Ptr(wire.NotLatched)},
		},
		{
			name: "configure fallback",
			params: map[string]any{
				"command":           "ConfigureFallback",
				"resting_procedure": "GoToFullyClosed",
				"waiting_delay":     30,
			},
			want: wire.ConfigureFallback{
				RestingProcedure: wire.Ptr(wire.RestingGoToFullyClosed),
				WaitingDelay:     wire.Ptr(uint16(30)),
			},
		},
		{
			name:   "unassigned command id",
			params: map[string]any{"command": "0x7f"},
			want:   rawCommand{id: 0x7f},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildCommand(tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildCommandErrors(t *testing.T) {
	_, err := buildCommand(map[string]any{})
	assert.ErrorIs(t, err, errMissingParam)

	_, err = buildCommand(map[string]any{"command": "Launch"})
	assert.Error(t, err)

	_, err = buildCommand(map[string]any{"command": "MoveTo", "tag": 300})
	assert.ErrorContains(t, err, "out of range")

	_, err = buildCommand(map[string]any{"command": "MoveTo", "speed": -1})
	assert.ErrorContains(t, err, "negative")

	_, err = buildCommand(map[string]any{"command": "MoveTo", "tag": 1.5})
	assert.ErrorContains(t, err, "whole number")
}

func TestBuildMessage(t *testing.T) {
	msg, err := buildMessage(map[string]any{"name": apppipe.NameSetSetupRequired})
	require.NoError(t, err)
	require.NotNil(t, msg.SetupRequired)
	assert.True(t, *msg.SetupRequired)

	msg, err = buildMessage(map[string]any{"name": apppipe.NameSetSetupRequired, "setup_required": false})
	require.NoError(t, err)
	assert.False(t, *msg.SetupRequired)

	msg, err = buildMessage(map[string]any{"name": apppipe.NameReset})
	require.NoError(t, err)
	assert.Nil(t, msg.SetupRequired)

	msg, err = buildMessage(map[string]any{"name": apppipe.NameSetSetupRequired, "setup_required": "yes"})
	assert.ErrorContains(t, err, "want bool")

	_, err = buildMessage(map[string]any{"name": "Explode"})
	assert.ErrorIs(t, err, apppipe.ErrUnknownName)

	_, err = buildMessage(map[string]any{})
	assert.ErrorIs(t, err, errMissingParam)
}

func TestParamHelpers(t *testing.T) {
	ep, err := paramEndpoint(map[string]any{}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), ep)

	ep, err = paramEndpoint(map[string]any{"endpoint": uint64(2)}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), ep)

	_, err = paramEndpoint(map[string]any{"endpoint": 70000}, 1)
	assert.Error(t, err)

	timed, err := paramTimed(map[string]any{"timed_ms": 500})
	require.NoError(t, err)
	assert.Equal(t, int64(500), timed.Milliseconds())

	status, checked, err := paramStatus(map[string]any{"expect_status": "InvalidInState"}, ParamExpectStatus)
	require.NoError(t, err)
	assert.True(t, checked)
	assert.Equal(t, wire.StatusInvalidInState, status)

	_, checked, err = paramStatus(map[string]any{}, ParamExpectStatus)
	require.NoError(t, err)
	assert.False(t, checked)

	_, _, err = paramStatus(map[string]any{"expect_status": "Nope"}, ParamExpectStatus)
	assert.Error(t, err)
}
