package clopstate

import (
	"sync"

	"github.com/clopstate/clop-go/pkg/wire"
)

// Fallback is the configured fallback behaviour.
type Fallback struct {
	Configured       bool
	RestingProcedure wire.RestingProcedure
	TriggerCondition wire.TriggerCondition
	TriggerPosition  wire.TriggerPosition
	WaitingDelay     uint16
}

// Snapshot is a consistent view of the machine.
type Snapshot struct {
	State          wire.OperationalState
	Error          wire.ErrorState
	Overall        wire.OverallState
	Fallback       Fallback
	NotOperational bool

	// Fraction is the opening fraction, 0 fully closed and 1 fully open.
	Fraction float64

	// Moving is true while a motion target is set.
	Moving bool
	Target wire.Positioning
	// TargetFraction is the opening fraction of the motion target.
	TargetFraction float64
	// StartFraction is where the current motion began.
	StartFraction float64
}

// Remaining returns the share of the current motion still to travel, 0
// when idle.
func (s Snapshot) Remaining() float64 {
	if !s.Moving {
		return 0
	}
	span := s.TargetFraction - s.StartFraction
	if span == 0 {
		return 0
	}
	return min(max((s.TargetFraction-s.Fraction)/span, 0), 1)
}

// Outcome is the result of handling one input.
type Outcome struct {
	Input  Kind
	Prev   wire.OperationalState
	Next   wire.OperationalState
	Status wire.Status
	Effect Effect

	// Handled is false for events the current state ignores.
	Handled bool
}

// Changed reports whether the operational state changed.
func (o Outcome) Changed() bool {
	return o.Prev != o.Next
}

type motionTarget struct {
	position      wire.Positioning
	fraction      float64
	startFraction float64
	latch         *wire.Latching
	speed         *wire.Speed
}

// Machine holds the operational state of one closure and applies the
// transition table to it. It is safe for concurrent use.
type Machine struct {
	mu             sync.Mutex
	features       FeatureSet
	state          wire.OperationalState
	errState       wire.ErrorState
	notOperational bool
	overall        wire.OverallState
	fraction       float64
	target         *motionTarget
	fallback       Fallback
}

// NewMachine creates a machine resting in Stopped, fully closed and unlatched.
func NewMachine(fs FeatureSet) *Machine {
	return &Machine{
		features: fs,
		state:    wire.StateStopped,
		overall: wire.OverallState{
			Positioning: wire.FullyClosed,
			Latching:    wire.NotLatched,
			Speed:       wire.SpeedAutomatic,
		},
	}
}

// Features returns the declared feature set.
func (m *Machine) Features() FeatureSet {
	return m.features
}

// State returns the current operational state.
func (m *Machine) State() wire.OperationalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ErrorState returns the current error state.
func (m *Machine) ErrorState() wire.ErrorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errState
}

// OverallState returns the current overall state.
func (m *Machine) OverallState() wire.OverallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overall
}

// Fallback returns the configured fallback.
func (m *Machine) Fallback() Fallback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallback
}

// Snapshot returns a consistent copy of the machine state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		State:          m.state,
		Error:          m.errState,
		Overall:        m.overall,
		Fallback:       m.fallback,
		NotOperational: m.notOperational,
		Fraction:       m.fraction,
	}
	if m.target != nil {
		s.Moving = true
		s.Target = m.target.position
		s.TargetFraction = m.target.fraction
		s.StartFraction = m.target.startFraction
	}
	return s
}

// Progress records motion progress p in [0,1] toward the current target.
func (m *Machine) Progress(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.target == nil {
		return
	}
	p = min(max(p, 0), 1)
	m.fraction = m.target.startFraction + (m.target.fraction-m.target.startFraction)*p
}

// Handle applies one input and returns its outcome.
func (m *Machine) Handle(in Input) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	tr, handled, status := decide(prev, in, m.features)
	out := Outcome{Input: in.Kind, Prev: prev, Next: prev, Status: status, Handled: handled}
	if !handled || status != wire.StatusSuccess {
		return out
	}

	next := tr.Next
	eff := tr.Effect

	if eff.Has(EffectMarkNotOperational) {
		m.notOperational = true
	}
	if eff.Has(EffectMarkOperational) {
		m.notOperational = false
	}
	if eff.Has(EffectRaiseError) {
		m.errState = in.Error
		if m.errState == wire.ErrorNoError {
			m.errState = wire.ErrorUnableToCompleteOperation
		}
	}
	if eff.Has(EffectClearError) {
		m.errState = wire.ErrorNoError
	}
	if eff.Has(EffectSettle) && m.notOperational {
		next = wire.StateSetupRequired
	}
	if eff.Has(EffectAbortMotion) {
		m.abortMotion()
	}
	if eff.Has(EffectStartMotion) {
		m.startMotion(in.MoveTo)
	}
	if eff.Has(EffectCompleteMotion) {
		m.completeMotion()
	}
	if eff.Has(EffectConfigureFallback) {
		m.configureFallback(in.Fallback)
	}
	if eff.Has(EffectCancelFallback) {
		m.fallback = Fallback{}
	}

	m.state = next
	out.Next = next
	out.Effect = eff
	return out
}

// Expect returns the status a command input receives in state s, without
// changing any machine. Events return Success when handled.
func Expect(s wire.OperationalState, in Input, fs FeatureSet) wire.Status {
	_, _, status := decide(s, in, fs)
	return status
}

func decide(s wire.OperationalState, in Input, fs FeatureSet) (Transition, bool, wire.Status) {
	if in.Kind.IsCommand() && !supportedCommand(in.Kind, fs) {
		return Transition{Next: s}, true, wire.StatusUnsupportedCommand
	}
	tr, handled := Lookup(s, in.Kind)
	if !handled {
		return tr, false, wire.StatusSuccess
	}
	switch in.Kind {
	case KindMoveTo:
		if st := ValidateMoveTo(s, in.MoveTo, fs); st != wire.StatusSuccess {
			return tr, true, st
		}
	case KindConfigureFallback:
		if st := ValidateConfigureFallback(s, in.Fallback, fs); st != wire.StatusSuccess {
			return tr, true, st
		}
	}
	return tr, true, tr.Status
}

func (m *Machine) startMotion(f wire.MoveTo) {
	pos, frac := m.overall.Positioning, m.fraction
	if f.Tag != nil {
		pos, frac = resolveTag(*f.Tag, m.overall.Positioning)
	}
	m.target = &motionTarget{
		position:      pos,
		fraction:      frac,
		startFraction: m.fraction,
		latch:         f.Latch,
		speed:         f.Speed,
	}
	if f.Speed != nil {
		m.overall.Speed = *f.Speed
	}
	if frac != m.fraction {
		m.overall.Latching = wire.NotLatched
	}
}

func (m *Machine) completeMotion() {
	if m.target == nil {
		return
	}
	m.overall.Positioning = m.target.position
	m.fraction = m.target.fraction
	if m.target.latch != nil {
		m.overall.Latching = *m.target.latch
	}
	m.target = nil
}

func (m *Machine) abortMotion() {
	if m.target == nil {
		return
	}
	switch m.fraction {
	case 0:
		m.overall.Positioning = wire.FullyClosed
	case 1:
		m.overall.Positioning = wire.FullyOpened
	default:
		m.overall.Positioning = wire.PartiallyOpened
	}
	m.target = nil
}

func (m *Machine) configureFallback(c wire.ConfigureFallback) {
	m.fallback.Configured = true
	if c.RestingProcedure != nil {
		m.fallback.RestingProcedure = *c.RestingProcedure
	}
	if c.TriggerCondition != nil {
		m.fallback.TriggerCondition = *c.TriggerCondition
	}
	if c.TriggerPosition != nil {
		m.fallback.TriggerPosition = *c.TriggerPosition
	}
	if c.WaitingDelay != nil {
		m.fallback.WaitingDelay = *c.WaitingDelay
	}
}

// resolveTag maps a MoveTo tag to a target position and opening fraction.
// The next-step tags depend on the current position.
func resolveTag(t wire.Tag, current wire.Positioning) (wire.Positioning, float64) {
	switch t {
	case wire.TagCloseInFull:
		return wire.FullyClosed, 0
	case wire.TagOpenInFull:
		return wire.FullyOpened, 1
	case wire.TagOpenOneQuarter:
		return wire.PartiallyOpened, 0.25
	case wire.TagOpenInHalf:
		return wire.PartiallyOpened, 0.5
	case wire.TagOpenThreeQuarter:
		return wire.PartiallyOpened, 0.75
	case wire.TagPedestrian:
		return wire.OpenedForPedestrian, 0.3
	case wire.TagVentilation:
		return wire.OpenedForVentilation, 0.1
	case wire.TagSignature:
		return wire.OpenedAtSignature, 0.8
	case wire.TagSequenceNextStep:
		if current == wire.FullyClosed {
			return wire.FullyOpened, 1
		}
		return wire.FullyClosed, 0
	case wire.TagPedestrianNextStep:
		if current == wire.OpenedForPedestrian {
			return wire.FullyClosed, 0
		}
		return wire.OpenedForPedestrian, 0.3
	}
	return current, 0
}
