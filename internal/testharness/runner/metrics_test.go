package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clopstate/clop-go/internal/testharness/commonops"
	"github.com/clopstate/clop-go/pkg/wire"
)

var _ commonops.Observer = (*Metrics)(nil)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.CommandSent("MoveTo", wire.StatusSuccess)
	m.CommandSent("MoveTo", wire.StatusSuccess)
	m.CommandSent("Pause", wire.StatusInvalidInState)
	m.AttributeRead("OperationalState")
	m.AssertionFailed()
	m.ObserveStep("wait", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("MoveTo", "Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("Pause", "InvalidInState")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reads.WithLabelValues("OperationalState")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assertionFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stepDuration))
}

func TestMetricsWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.CommandSent("Stop", wire.StatusSuccess)

	path := filepath.Join(t.TempDir(), "clop.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `clop_commands_total{command="Stop",status="Success"} 1`)
	assert.Contains(t, string(data), "clop_assertion_failures_total 0")
}
