package closure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clopstate/clop-go/pkg/apppipe"
	"github.com/clopstate/clop-go/pkg/clopstate"
	"github.com/clopstate/clop-go/pkg/interaction"
	"github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/transport"
	"github.com/clopstate/clop-go/pkg/wire"
)

const cluster = wire.ClusterClosureOperationalState

func fastDevice(t *testing.T, mutate ...func(*Config)) *Device {
	t.Helper()
	cfg := Config{
		FullMotionDuration: 60 * time.Millisecond,
		ProgressInterval:   5 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	d := New(cfg)
	t.Cleanup(func() { d.Close() })
	return d
}

func invoke(d *Device, cmd wire.Command, timed bool) wire.Status {
	inv := &wire.InvokePayload{CommandID: cmd.CommandID(), Parameters: cmd}
	if timed {
		inv.TimedTimeoutMs = 1000
	}
	_, st := d.HandleInvoke(context.Background(), d.Endpoint(), cluster, inv)
	return st
}

func read(t *testing.T, d *Device, attr wire.AttributeID) any {
	t.Helper()
	v, st := d.HandleRead(context.Background(), d.Endpoint(), cluster, attr)
	require.Equal(t, wire.StatusSuccess, st, "read %s", wire.AttributeName(attr))
	return v
}

func TestReadRouting(t *testing.T) {
	d := fastDevice(t)
	ctx := context.Background()

	_, st := d.HandleRead(ctx, 7, cluster, wire.AttrOperationalState)
	assert.Equal(t, wire.StatusUnsupportedEndpoint, st)

	_, st = d.HandleRead(ctx, d.Endpoint(), 0x0006, wire.AttrOperationalState)
	assert.Equal(t, wire.StatusUnsupportedCluster, st)

	_, st = d.HandleRead(ctx, d.Endpoint(), cluster, 0x7777)
	assert.Equal(t, wire.StatusUnsupportedAttribute, st)

	_, st = d.HandleInvoke(ctx, d.Endpoint(), cluster, &wire.InvokePayload{CommandID: 0x55})
	assert.Equal(t, wire.StatusUnsupportedCommand, st)
}

func TestInitialAttributes(t *testing.T) {
	d := fastDevice(t)

	assert.Equal(t, wire.StateStopped, read(t, d, wire.AttrOperationalState))
	assert.Equal(t, wire.ErrorStateStruct{ErrorStateID: wire.ErrorNoError}, read(t, d, wire.AttrOperationalError))
	assert.Equal(t, wire.OverallState{Positioning: wire.FullyClosed, Latching: wire.NotLatched, Speed: wire.SpeedAutomatic},
		read(t, d, wire.AttrOverallState))
	assert.Equal(t, uint32(clopstate.DefaultFeatures().Map), read(t, d, wire.AttrFeatureMap))

	list := read(t, d, wire.AttrOperationalStateList).([]wire.OperationalStateStruct)
	assert.Len(t, list, len(wire.OperationalStates))
}

func TestStateListFollowsFeatures(t *testing.T) {
	d := fastDevice(t, func(c *Config) {
		c.Features = clopstate.FeatureSet{Map: clopstate.FeaturePositioning}
	})
	list := read(t, d, wire.AttrOperationalStateList).([]wire.OperationalStateStruct)
	for _, s := range list {
		assert.NotEqual(t, wire.StateCalibrating, s.OperationalStateID)
		assert.NotEqual(t, wire.StateProtected, s.OperationalStateID)
	}

	_, st := d.HandleRead(context.Background(), d.Endpoint(), cluster, wire.AttrRestingProcedure)
	assert.Equal(t, wire.StatusUnsupportedAttribute, st)
}

func TestMoveToCompletes(t *testing.T) {
	d := fastDevice(t)

	st := invoke(d, wire.MoveTo{Tag: wire.Ptr(wire.TagOpenInFull), Latch: wire.Ptr(wire.LatchedAndSecured)}, false)
	require.Equal(t, wire.StatusSuccess, st)
	assert.Equal(t, wire.StateRunning, d.Snapshot().State)

	require.Eventually(t, func() bool {
		return d.Snapshot().State == wire.StateStopped
	}, 2*time.Second, 5*time.Millisecond)

	snap := d.Snapshot()
	assert.Equal(t, wire.FullyOpened, snap.Overall.Positioning)
	assert.Equal(t, wire.LatchedAndSecured, snap.Overall.Latching)
	assert.InDelta(t, 1.0, snap.Fraction, 1e-9)
}

func TestRetargetDuringMotion(t *testing.T) {
	d := fastDevice(t, func(c *Config) {
		c.FullMotionDuration = 200 * time.Millisecond
		c.ProgressInterval = time.Millisecond
	})

	// Start mid-stroke so no retarget has zero distance.
	require.Equal(t, wire.StatusSuccess, invoke(d, wire.MoveTo{Tag: wire.Ptr(wire.TagOpenInHalf)}, false))
	require.Eventually(t, func() bool {
		return d.Snapshot().State == wire.StateStopped
	}, 2*time.Second, 5*time.Millisecond)

	targets := []struct {
		tag      wire.Tag
		fraction float64
	}{
		{wire.TagOpenInFull, 1},
		{wire.TagCloseInFull, 0},
	}
	for i := range 100 {
		want := targets[i%2]
		require.Equal(t, wire.StatusSuccess, invoke(d, wire.MoveTo{Tag: wire.Ptr(want.tag)}, false))
		snap := d.Snapshot()
		require.True(t, snap.Moving, "iteration %d", i)
		require.Equal(t, want.fraction, snap.TargetFraction, "iteration %d", i)
		time.Sleep(time.Duration(1+i%3) * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return d.Snapshot().State == wire.StateStopped
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, wire.FullyClosed, d.Snapshot().Overall.Positioning)
}

func TestPauseHoldsPosition(t *testing.T) {
	d := fastDevice(t, func(c *Config) { c.FullMotionDuration = 400 * time.Millisecond })

	require.Equal(t, wire.StatusSuccess, invoke(d, wire.MoveTo{Tag: wire.Ptr(wire.TagOpenInFull)}, false))
	require.Eventually(t, func() bool { return d.Snapshot().Fraction > 0 }, time.Second, 5*time.Millisecond)

	require.Equal(t, wire.StatusSuccess, invoke(d, wire.Pause{}, false))
	held := d.Snapshot().Fraction
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, held, d.Snapshot().Fraction)
	assert.Equal(t, wire.StatePaused, d.Snapshot().State)

	require.Equal(t, wire.StatusSuccess, invoke(d, wire.Resume{}, false))
	require.Eventually(t, func() bool {
		return d.Snapshot().State == wire.StateStopped
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, wire.FullyOpened, d.Snapshot().Overall.Positioning)
}

func TestStopAbortsMotion(t *testing.T) {
	d := fastDevice(t, func(c *Config) { c.FullMotionDuration = time.Second })

	require.Equal(t, wire.StatusSuccess, invoke(d, wire.MoveTo{Tag: wire.Ptr(wire.TagOpenInFull)}, false))
	require.Eventually(t, func() bool { return d.Snapshot().Fraction > 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, wire.StatusSuccess, invoke(d, wire.Stop{}, false))

	snap := d.Snapshot()
	assert.Equal(t, wire.StateStopped, snap.State)
	assert.False(t, snap.Moving)
	assert.Equal(t, wire.PartiallyOpened, snap.Overall.Positioning)
}

func TestTimedCommands(t *testing.T) {
	d := fastDevice(t, func(c *Config) { c.TimedCommands = []wire.CommandID{wire.CmdMoveTo} })

	st := invoke(d, wire.MoveTo{Tag: wire.Ptr(wire.TagCloseInFull)}, false)
	assert.Equal(t, wire.StatusNeedsTimedInteraction, st)
	assert.Equal(t, wire.StateStopped, d.Snapshot().State)

	st = invoke(d, wire.MoveTo{Tag: wire.Ptr(wire.TagCloseInFull)}, true)
	assert.Equal(t, wire.StatusSuccess, st)
}

func TestMalformedFields(t *testing.T) {
	d := fastDevice(t)
	inv := &wire.InvokePayload{CommandID: wire.CmdMoveTo, Parameters: "not a struct"}
	_, st := d.HandleInvoke(context.Background(), d.Endpoint(), cluster, inv)
	assert.Equal(t, wire.StatusInvalidCommand, st)
}

func TestCalibrationWaitsForStimulus(t *testing.T) {
	d := fastDevice(t)

	require.Equal(t, wire.StatusSuccess, invoke(d, wire.Calibrate{}, false))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, wire.StateCalibrating, d.Snapshot().State)

	require.NoError(t, d.Inject(apppipe.Message{Name: apppipe.NameCalibrationEnded}))
	assert.Equal(t, wire.StateStopped, d.Snapshot().State)
}

func TestCalibrationTimer(t *testing.T) {
	d := fastDevice(t, func(c *Config) { c.CalibrationDuration = 20 * time.Millisecond })

	require.Equal(t, wire.StatusSuccess, invoke(d, wire.Calibrate{}, false))
	require.Eventually(t, func() bool {
		return d.Snapshot().State == wire.StateStopped
	}, time.Second, 5*time.Millisecond)
}

func TestStopDuringCalibrationCancelsTimer(t *testing.T) {
	d := fastDevice(t, func(c *Config) { c.CalibrationDuration = 30 * time.Millisecond })

	require.Equal(t, wire.StatusSuccess, invoke(d, wire.Calibrate{}, false))
	require.Equal(t, wire.StatusSuccess, invoke(d, wire.Stop{}, false))
	require.Equal(t, wire.StatusSuccess, invoke(d, wire.Calibrate{}, false))

	// The first timer must not end the second calibration early.
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, wire.StateCalibrating, d.Snapshot().State)
}

func TestInjectStimuli(t *testing.T) {
	tests := []struct {
		name      string
		msgs      []apppipe.Message
		wantState wire.OperationalState
		wantError wire.ErrorState
	}{
		{"setup required", []apppipe.Message{apppipe.SetupRequired(true)}, wire.StateSetupRequired, wire.ErrorNoError},
		{"setup cleared", []apppipe.Message{apppipe.SetupRequired(true), apppipe.SetupRequired(false)}, wire.StateStopped, wire.ErrorNoError},
		{"blocked", []apppipe.Message{apppipe.ErrorEvent("Blocked")}, wire.StateError, wire.ErrorBlocked},
		{"clear error", []apppipe.Message{apppipe.ErrorEvent("Blocked"), {Name: apppipe.NameClearError}}, wire.StateStopped, wire.ErrorNoError},
		{"protection", []apppipe.Message{{Name: apppipe.NameProtectionRised}}, wire.StateProtected, wire.ErrorNoError},
		{"protection dropped", []apppipe.Message{{Name: apppipe.NameProtectionRised}, {Name: apppipe.NameProtectionDropped}}, wire.StateStopped, wire.ErrorNoError},
		{"disengaged", []apppipe.Message{{Name: apppipe.NameDisengaged}}, wire.StateDisengaged, wire.ErrorNoError},
		{"go running", []apppipe.Message{{Name: apppipe.NameGoRunning}}, wire.StateRunning, wire.ErrorNoError},
		{"stopped", []apppipe.Message{{Name: apppipe.NameGoRunning}, {Name: apppipe.NameStopped}}, wire.StateStopped, wire.ErrorNoError},
		{"reset", []apppipe.Message{apppipe.SetupRequired(true), apppipe.ErrorEvent("Blocked"), {Name: apppipe.NameReset}}, wire.StateStopped, wire.ErrorNoError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := fastDevice(t)
			for _, m := range tt.msgs {
				require.NoError(t, d.Inject(m))
			}
			snap := d.Snapshot()
			assert.Equal(t, tt.wantState, snap.State)
			assert.Equal(t, tt.wantError, snap.Error)
		})
	}
}

func TestInjectErrors(t *testing.T) {
	d := fastDevice(t)

	assert.ErrorIs(t, d.Inject(apppipe.ErrorEvent("Melted")), ErrUnknownError)
	assert.ErrorIs(t, d.Inject(apppipe.Message{Name: "DownClose"}), apppipe.ErrUnknownName)
	assert.ErrorIs(t, d.Inject(apppipe.Message{Name: apppipe.NameMoveTo}), ErrRejected)

	tag := uint8(wire.TagOpenInHalf)
	require.NoError(t, d.Inject(apppipe.Message{Name: apppipe.NameMoveTo, Tag: &tag}))
	assert.Equal(t, wire.StateRunning, d.Snapshot().State)
}

type recorder struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recorder) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestStateChangesAreLogged(t *testing.T) {
	rec := &recorder{}
	d := fastDevice(t, func(c *Config) { c.ProtocolLogger = rec })

	require.NoError(t, d.Inject(apppipe.ErrorEvent("Blocked")))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var states, injections int
	for _, e := range rec.events {
		switch {
		case e.StateChange != nil:
			states++
		case e.Injection != nil:
			injections++
			assert.Equal(t, apppipe.NameErrorEvent, e.Injection.Name)
			assert.False(t, e.Injection.Rejected)
		}
	}
	assert.Equal(t, 2, states, "operational state and error state")
	assert.Equal(t, 1, injections)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d := fastDevice(t, func(c *Config) { c.Metrics = m })

	invoke(d, wire.Pause{}, false)
	read(t, d, wire.AttrOperationalState)
	_ = d.Inject(apppipe.ErrorEvent("Blocked"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("Pause", "InvalidInState")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reads.WithLabelValues("OperationalState")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Injections.WithLabelValues("ErrorEvent", "accepted")))
	assert.Equal(t, float64(wire.StateError), testutil.ToFloat64(m.State))
}

// commandFor rebuilds the wire command of a command input.
func commandFor(in clopstate.Input) wire.Command {
	switch in.Kind {
	case clopstate.KindStop:
		return wire.Stop{}
	case clopstate.KindPause:
		return wire.Pause{}
	case clopstate.KindResume:
		return wire.Resume{}
	case clopstate.KindCalibrate:
		return wire.Calibrate{}
	case clopstate.KindMoveTo:
		return in.MoveTo
	case clopstate.KindConfigureFallback:
		return in.Fallback
	case clopstate.KindCancelFallback:
		return wire.CancelFallback{}
	}
	return nil
}

func TestDeviceAgreesWithModel(t *testing.T) {
	fs := clopstate.DefaultFeatures()
	fs.Unsupported = []clopstate.Combination{{Tag: wire.Ptr(wire.TagSignature), Speed: wire.Ptr(wire.SpeedHigh)}}

	for _, c := range clopstate.Enumerate(fs) {
		d := New(Config{Features: fs, FullMotionDuration: time.Hour})
		for _, in := range clopstate.Drive(c.State) {
			d.apply(in, "test")
		}
		require.Equal(t, c.State, d.Snapshot().State, "drive to %s", c.State)

		got := invoke(d, commandFor(c.Input), false)
		d.Close()
		if got != c.Want {
			t.Errorf("%s: device answered %s, model expects %s", c, got, c.Want)
		}
	}
}

func TestListenEndToEnd(t *testing.T) {
	d := fastDevice(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := Listen(ctx, "127.0.0.1:0", d)
	require.NoError(t, err)
	defer server.Stop()

	conn, err := transport.Dial(ctx, server.Addr().String(), transport.ClientConfig{})
	require.NoError(t, err)
	defer conn.Close()

	client := interaction.NewClient(conn, interaction.WithTimeout(2*time.Second))
	go client.Run(conn)

	v, err := client.Read(ctx, d.Endpoint(), cluster, wire.AttrOperationalState)
	require.NoError(t, err)
	assert.EqualValues(t, wire.StateStopped, v)

	_, err = client.Invoke(ctx, d.Endpoint(), cluster, wire.CmdPause, wire.Pause{})
	st, ok := interaction.StatusOf(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, wire.StatusInvalidInState, st)

	_, err = client.Invoke(ctx, d.Endpoint(), cluster, wire.CmdMoveTo, wire.MoveTo{Tag: wire.Ptr(wire.TagOpenInHalf)})
	require.NoError(t, err)

	raw, err := client.Read(ctx, d.Endpoint(), cluster, wire.AttrOverallState)
	require.NoError(t, err)
	var overall wire.OverallState
	require.NoError(t, wire.DecodeInto(raw, &overall))
	assert.Equal(t, wire.NotLatched, overall.Latching)
}
