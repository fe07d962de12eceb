package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clopstate/clop-go/pkg/clopstate"
	"github.com/clopstate/clop-go/pkg/wire"
)

func TestParseFeatures(t *testing.T) {
	fs, err := parseFeatures("")
	require.NoError(t, err)
	assert.Equal(t, clopstate.DefaultFeatures(), fs)

	fs, err = parseFeatures("Positioning|Speed")
	require.NoError(t, err)
	assert.True(t, fs.Has(clopstate.FeaturePositioning|clopstate.FeatureSpeed))
	assert.False(t, fs.Has(clopstate.FeatureCalibration))

	_, err = parseFeatures("Teleport")
	assert.Error(t, err)
}

func TestParseTimed(t *testing.T) {
	ids, err := parseTimed("MoveTo, calibrate,")
	require.NoError(t, err)
	assert.Equal(t, []wire.CommandID{wire.CmdMoveTo, wire.CmdCalibrate}, ids)

	ids, err = parseTimed("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = parseTimed("Fly")
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	saved := config
	t.Cleanup(func() { config = saved })

	config = Config{Port: 5540, Endpoint: 1, Motion: 1}
	assert.NoError(t, validateConfig())

	config.Endpoint = 0
	assert.Error(t, validateConfig())

	config = Config{Port: 70000, Endpoint: 1, Motion: 1}
	assert.Error(t, validateConfig())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
