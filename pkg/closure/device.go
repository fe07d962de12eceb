package closure

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clopstate/clop-go/pkg/apppipe"
	"github.com/clopstate/clop-go/pkg/clopstate"
	"github.com/clopstate/clop-go/pkg/interaction"
	"github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/wire"
)

var (
	ErrRejected     = errors.New("stimulus rejected")
	ErrUnknownError = errors.New("unknown error state")
)

// Device is a simulated closure.
type Device struct {
	cfg     Config
	machine *clopstate.Machine

	mu         sync.Mutex
	motionStop chan struct{}
	calTimer   *time.Timer
	calGen     uint64
	closed     bool

	wg sync.WaitGroup
}

var _ interaction.Handler = (*Device)(nil)

// New creates a device resting in Stopped.
func New(cfg Config) *Device {
	cfg.applyDefaults()
	d := &Device{
		cfg:     cfg,
		machine: clopstate.NewMachine(cfg.Features),
	}
	d.cfg.Metrics.observe(wire.StateStopped, 0)
	return d
}

// Endpoint returns the endpoint hosting the cluster.
func (d *Device) Endpoint() uint16 { return d.cfg.Endpoint }

// Features returns the device feature set.
func (d *Device) Features() clopstate.FeatureSet { return d.cfg.Features }

// Snapshot returns the current machine state.
func (d *Device) Snapshot() clopstate.Snapshot { return d.machine.Snapshot() }

// Close stops any running motion or calibration timer.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.stopMotionLocked()
	d.stopCalibrationLocked()
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

// HandleRead serves attribute reads.
func (d *Device) HandleRead(_ context.Context, endpoint uint16, cluster wire.ClusterID, attr wire.AttributeID) (any, wire.Status) {
	if st := d.route(endpoint, cluster); st != wire.StatusSuccess {
		return nil, st
	}
	snap := d.machine.Snapshot()
	fs := d.cfg.Features

	var v any
	switch attr {
	case wire.AttrOperationalStateList:
		v = d.stateList()
	case wire.AttrOperationalState:
		v = snap.State
	case wire.AttrOperationalError:
		v = wire.ErrorStateStruct{ErrorStateID: snap.Error}
	case wire.AttrOverallState:
		v = snap.Overall
	case wire.AttrFeatureMap:
		v = uint32(fs.Map)
	case wire.AttrRestingProcedure, wire.AttrTriggerCondition, wire.AttrTriggerPosition, wire.AttrWaitingDelay:
		if !fs.Has(clopstate.FeatureFallback) {
			return nil, wire.StatusUnsupportedAttribute
		}
		v = fallbackValue(snap.Fallback, attr)
	default:
		return nil, wire.StatusUnsupportedAttribute
	}
	d.cfg.Metrics.read(attr)
	return v, wire.StatusSuccess
}

// HandleInvoke executes a cluster command.
func (d *Device) HandleInvoke(_ context.Context, endpoint uint16, cluster wire.ClusterID, inv *wire.InvokePayload) (any, wire.Status) {
	if st := d.route(endpoint, cluster); st != wire.StatusSuccess {
		return nil, st
	}

	status := d.invoke(inv)
	d.cfg.Metrics.command(inv.CommandID, status)
	if !status.IsSuccess() {
		return fmt.Sprintf("%s rejected in %s", wire.CommandName(inv.CommandID), d.machine.State()), status
	}
	return nil, status
}

func (d *Device) invoke(inv *wire.InvokePayload) wire.Status {
	cmd, known, err := wire.DecodeCommand(inv.CommandID, inv.Parameters)
	if !known {
		return wire.StatusUnsupportedCommand
	}
	if err != nil {
		d.cfg.Logger.Debug("malformed command fields", "command", wire.CommandName(inv.CommandID), "error", err)
		return wire.StatusInvalidCommand
	}
	if d.cfg.isTimed(inv.CommandID) && !inv.IsTimed() {
		return wire.StatusNeedsTimedInteraction
	}
	in, ok := clopstate.CommandInput(cmd)
	if !ok {
		return wire.StatusUnsupportedCommand
	}
	return d.apply(in, "command").Status
}

func (d *Device) route(endpoint uint16, cluster wire.ClusterID) wire.Status {
	if endpoint != d.cfg.Endpoint {
		return wire.StatusUnsupportedEndpoint
	}
	if cluster != wire.ClusterClosureOperationalState {
		return wire.StatusUnsupportedCluster
	}
	return wire.StatusSuccess
}

func (d *Device) stateList() []wire.OperationalStateStruct {
	fs := d.cfg.Features
	list := make([]wire.OperationalStateStruct, 0, len(wire.OperationalStates))
	for _, s := range wire.OperationalStates {
		switch {
		case s == wire.StateCalibrating && !fs.Has(clopstate.FeatureCalibration):
			continue
		case s == wire.StateProtected && !fs.Has(clopstate.FeatureProtection):
			continue
		}
		list = append(list, wire.OperationalStateStruct{OperationalStateID: s})
	}
	return list
}

func fallbackValue(f clopstate.Fallback, attr wire.AttributeID) any {
	switch attr {
	case wire.AttrRestingProcedure:
		return f.RestingProcedure
	case wire.AttrTriggerCondition:
		return f.TriggerCondition
	case wire.AttrTriggerPosition:
		return f.TriggerPosition
	default:
		return f.WaitingDelay
	}
}

// Inject applies one simulation stimulus.
func (d *Device) Inject(msg apppipe.Message) error {
	in, err := pipeInput(msg)
	if err != nil {
		d.logInjection(msg, true)
		d.cfg.Metrics.injection(msg.Name, false)
		return err
	}

	out := d.apply(in, "injection")
	rejected := in.Kind.IsCommand() && !out.Status.IsSuccess()
	d.logInjection(msg, rejected)
	d.cfg.Metrics.injection(msg.Name, !rejected)
	if rejected {
		return fmt.Errorf("%w: %s answered %s", ErrRejected, msg.Name, out.Status)
	}
	return nil
}

func pipeInput(msg apppipe.Message) (clopstate.Input, error) {
	switch msg.Name {
	case apppipe.NameSetSetupRequired:
		if msg.SetupRequired != nil && !*msg.SetupRequired {
			return clopstate.Event(clopstate.KindSetupComplete), nil
		}
		return clopstate.Event(clopstate.KindSetupRequired), nil
	case apppipe.NameStopped, apppipe.NameGoStopped:
		return clopstate.Event(clopstate.KindForceStopped), nil
	case apppipe.NameGoRunning:
		return clopstate.Event(clopstate.KindForceRunning), nil
	case apppipe.NameReset:
		return clopstate.Event(clopstate.KindReset), nil
	case apppipe.NameMoveTo:
		var m wire.MoveTo
		if msg.Tag != nil {
			m.Tag = wire.Ptr(wire.Tag(*msg.Tag))
		}
		if msg.Speed != nil {
			m.Speed = wire.Ptr(wire.Speed(*msg.Speed))
		}
		if msg.Latch != nil {
			m.Latch = wire.Ptr(wire.Latching(*msg.Latch))
		}
		return clopstate.Input{Kind: clopstate.KindMoveTo, MoveTo: m}, nil
	case apppipe.NameErrorEvent:
		e, err := wire.ParseErrorState(msg.Error)
		if err != nil {
			return clopstate.Input{}, fmt.Errorf("%w: %q", ErrUnknownError, msg.Error)
		}
		return clopstate.Fault(e), nil
	case apppipe.NameClearError:
		return clopstate.Event(clopstate.KindClearError), nil
	case apppipe.NameCalibrationEnded:
		return clopstate.Event(clopstate.KindCalibrationComplete), nil
	case apppipe.NameCalibrationFailed:
		return clopstate.Input{Kind: clopstate.KindCalibrationFailed, Error: wire.ErrorUnableToCompleteOperation}, nil
	case apppipe.NameEngaged:
		return clopstate.Event(clopstate.KindEngage), nil
	case apppipe.NameDisengaged:
		return clopstate.Event(clopstate.KindDisengage), nil
	case apppipe.NameProtectionRised:
		return clopstate.Event(clopstate.KindProtectionRaised), nil
	case apppipe.NameProtectionDropped:
		return clopstate.Event(clopstate.KindProtectionDropped), nil
	case apppipe.NameMovementComplete:
		return clopstate.Event(clopstate.KindMotionComplete), nil
	}
	return clopstate.Input{}, fmt.Errorf("%w: %q", apppipe.ErrUnknownName, msg.Name)
}

// apply feeds one input to the machine and drives the timers its effect
// asks for.
func (d *Device) apply(in clopstate.Input, source string) clopstate.Outcome {
	d.mu.Lock()
	out, prevErr := d.applyLocked(in)
	d.mu.Unlock()
	d.report(in, source, out, prevErr)
	return out
}

// applyLocked runs the input and its effect under d.mu so a motion tick or
// calibration timer cannot act on a target set by a later command.
func (d *Device) applyLocked(in clopstate.Input) (clopstate.Outcome, wire.ErrorState) {
	prevErr := d.machine.ErrorState()
	out := d.machine.Handle(in)
	if !d.closed {
		d.applyEffectLocked(out.Effect)
	}
	return out, prevErr
}

func (d *Device) report(in clopstate.Input, source string, out clopstate.Outcome, prevErr wire.ErrorState) {
	snap := d.machine.Snapshot()
	d.cfg.Metrics.observe(snap.State, snap.Fraction)

	if !out.Handled {
		d.cfg.Logger.Debug("input ignored", "input", in.Kind, "state", out.Prev, "source", source)
		return
	}
	if !out.Status.IsSuccess() {
		d.cfg.Logger.Info("input rejected", "input", in.Kind, "state", out.Prev, "status", out.Status, "source", source)
		return
	}
	if out.Changed() {
		d.cfg.Logger.Info("operational state changed", "from", out.Prev, "to", out.Next, "input", in.Kind, "source", source)
		d.logState(log.StateEntityOperational, out.Prev.String(), out.Next.String(), in.Kind.String())
	}
	if snap.Error != prevErr {
		d.cfg.Logger.Info("operational error changed", "from", prevErr, "to", snap.Error)
		d.logState(log.StateEntityError, prevErr.String(), snap.Error.String(), in.Kind.String())
	}
}

func (d *Device) applyEffectLocked(eff clopstate.Effect) {
	if eff.Has(clopstate.EffectAbortMotion) || eff.Has(clopstate.EffectPauseMotion) || eff.Has(clopstate.EffectCompleteMotion) {
		d.stopMotionLocked()
	}
	if eff.Has(clopstate.EffectAbortCalibration) {
		d.stopCalibrationLocked()
	}
	if eff.Has(clopstate.EffectStartMotion) || eff.Has(clopstate.EffectResumeMotion) {
		d.startMotionLocked()
	}
	if eff.Has(clopstate.EffectStartCalibration) {
		d.startCalibrationLocked()
	}
}

func (d *Device) startMotionLocked() {
	d.stopMotionLocked()
	snap := d.machine.Snapshot()
	if !snap.Moving {
		return
	}
	span := snap.TargetFraction - snap.StartFraction
	if span < 0 {
		span = -span
	}
	stroke := time.Duration(float64(d.cfg.FullMotionDuration) * span)
	done := 1 - snap.Remaining()
	if span == 0 {
		done = 1
	}

	stop := make(chan struct{})
	d.motionStop = stop
	d.wg.Add(1)
	go d.runMotion(stop, stroke, done)
}

// runMotion advances the machine from progress done toward 1 over the
// remaining share of stroke.
func (d *Device) runMotion(stop chan struct{}, stroke time.Duration, done float64) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.ProgressInterval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			p := 1.0
			if stroke > 0 {
				p = done + float64(now.Sub(start))/float64(stroke)
			}

			d.mu.Lock()
			if d.motionStop != stop {
				d.mu.Unlock()
				return
			}
			d.machine.Progress(p)
			if p < 1 {
				d.mu.Unlock()
				d.cfg.Logger.Debug("motion progress", "progress", fmt.Sprintf("%.0f%%", p*100))
				d.cfg.Metrics.observe(d.machine.State(), d.machine.Snapshot().Fraction)
				continue
			}
			d.motionStop = nil
			in := clopstate.Event(clopstate.KindMotionComplete)
			out, prevErr := d.applyLocked(in)
			d.mu.Unlock()
			d.report(in, "motion", out, prevErr)
			return
		}
	}
}

func (d *Device) stopMotionLocked() {
	if d.motionStop != nil {
		close(d.motionStop)
		d.motionStop = nil
	}
}

func (d *Device) startCalibrationLocked() {
	d.stopCalibrationLocked()
	d.calGen++
	if d.cfg.CalibrationDuration <= 0 {
		return
	}
	gen := d.calGen
	d.calTimer = time.AfterFunc(d.cfg.CalibrationDuration, func() {
		d.mu.Lock()
		if gen != d.calGen || d.closed {
			d.mu.Unlock()
			return
		}
		in := clopstate.Event(clopstate.KindCalibrationComplete)
		out, prevErr := d.applyLocked(in)
		d.mu.Unlock()
		d.report(in, "calibration", out, prevErr)
	})
}

func (d *Device) stopCalibrationLocked() {
	d.calGen++
	if d.calTimer != nil {
		d.calTimer.Stop()
		d.calTimer = nil
	}
}

func (d *Device) logState(entity log.StateEntity, from, to, reason string) {
	d.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerService,
		Category:  log.CategoryState,
		LocalRole: log.RoleDevice,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}

func (d *Device) logInjection(msg apppipe.Message, rejected bool) {
	raw, _ := apppipe.Encode(msg)
	d.cfg.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerService,
		Category:  log.CategoryInjection,
		LocalRole: log.RoleDevice,
		Injection: &log.InjectionEvent{
			Name:     msg.Name,
			Raw:      string(raw),
			Rejected: rejected,
		},
	})
}
