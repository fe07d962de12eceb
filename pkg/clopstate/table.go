package clopstate

import (
	"strings"

	"github.com/clopstate/clop-go/pkg/wire"
)

// Effect is a set of side effects attached to a transition.
type Effect uint32

const (
	EffectStartMotion Effect = 1 << iota
	EffectAbortMotion
	EffectPauseMotion
	EffectResumeMotion
	EffectCompleteMotion
	EffectStartCalibration
	EffectAbortCalibration
	EffectRaiseError
	EffectClearError
	EffectSettle // rest in SetupRequired instead of Stopped while not operational
	EffectMarkNotOperational
	EffectMarkOperational
	EffectConfigureFallback
	EffectCancelFallback

	EffectNone  Effect = 0
	EffectAbort        = EffectAbortMotion | EffectAbortCalibration
)

var effectNames = []string{
	"StartMotion", "AbortMotion", "PauseMotion", "ResumeMotion", "CompleteMotion",
	"StartCalibration", "AbortCalibration", "RaiseError", "ClearError", "Settle",
	"MarkNotOperational", "MarkOperational", "ConfigureFallback", "CancelFallback",
}

// Has reports whether every bit of f is set in e.
func (e Effect) Has(f Effect) bool {
	return f != 0 && e&f == f
}

func (e Effect) String() string {
	if e == EffectNone {
		return "None"
	}
	var parts []string
	for i, name := range effectNames {
		if e&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Transition is one row of the table.
type Transition struct {
	Next   wire.OperationalState
	Status wire.Status
	Effect Effect
}

type rowKey struct {
	state wire.OperationalState
	kind  Kind
}

var table = buildTable()

func buildTable() map[rowKey]Transition {
	t := make(map[rowKey]Transition)
	ok := func(s wire.OperationalState, k Kind, next wire.OperationalState, eff Effect) {
		t[rowKey{s, k}] = Transition{Next: next, Status: wire.StatusSuccess, Effect: eff}
	}
	each := func(k Kind, next wire.OperationalState, eff Effect, except ...wire.OperationalState) {
	states:
		for _, s := range wire.OperationalStates {
			for _, x := range except {
				if s == x {
					continue states
				}
			}
			ok(s, k, next, eff)
		}
	}

	const (
		stopped     = wire.StateStopped
		running     = wire.StateRunning
		paused      = wire.StatePaused
		errored     = wire.StateError
		protected   = wire.StateProtected
		disengaged  = wire.StateDisengaged
		setup       = wire.StateSetupRequired
		calibrating = wire.StateCalibrating
	)

	// Commands
	ok(stopped, KindStop, stopped, EffectNone)
	ok(running, KindStop, stopped, EffectAbortMotion)
	ok(paused, KindStop, stopped, EffectAbortMotion)
	ok(calibrating, KindStop, stopped, EffectAbortCalibration)

	ok(running, KindPause, paused, EffectPauseMotion)
	ok(paused, KindPause, paused, EffectNone)

	ok(paused, KindResume, running, EffectResumeMotion)
	ok(running, KindResume, running, EffectNone)

	ok(stopped, KindCalibrate, calibrating, EffectStartCalibration)
	ok(calibrating, KindCalibrate, calibrating, EffectNone)

	for _, s := range []wire.OperationalState{stopped, running, paused} {
		ok(s, KindMoveTo, running, EffectStartMotion)
		ok(s, KindConfigureFallback, s, EffectConfigureFallback)
		ok(s, KindCancelFallback, s, EffectCancelFallback)
	}

	// Events
	ok(running, KindMotionComplete, stopped, EffectCompleteMotion)
	ok(calibrating, KindCalibrationComplete, stopped, EffectClearError)
	ok(calibrating, KindCalibrationFailed, errored, EffectRaiseError)
	each(KindFault, errored, EffectAbort|EffectRaiseError)
	ok(errored, KindClearError, stopped, EffectClearError|EffectSettle)
	each(KindSetupRequired, setup, EffectAbort|EffectMarkNotOperational)
	ok(setup, KindSetupComplete, stopped, EffectMarkOperational)
	each(KindForceStopped, stopped, EffectAbort|EffectMarkOperational)
	each(KindForceRunning, running, EffectAbortCalibration)
	each(KindReset, stopped, EffectAbort|EffectMarkOperational|EffectClearError)
	each(KindDisengage, disengaged, EffectAbort, errored)
	ok(disengaged, KindEngage, stopped, EffectNone)
	each(KindProtectionRaised, protected, EffectAbort, errored)
	ok(protected, KindProtectionDropped, stopped, EffectNone)

	return t
}

// Lookup returns the table row for an input kind in state s. Commands
// without a row are rejected with InvalidInState and leave the state
// unchanged; events without a row are ignored and Lookup reports false.
func Lookup(s wire.OperationalState, k Kind) (Transition, bool) {
	if tr, ok := table[rowKey{s, k}]; ok {
		return tr, true
	}
	if k.IsCommand() {
		return Transition{Next: s, Status: wire.StatusInvalidInState}, true
	}
	return Transition{Next: s}, false
}

// IsBlocking reports whether s rejects every MoveTo.
func IsBlocking(s wire.OperationalState) bool {
	tr, _ := Lookup(s, KindMoveTo)
	return tr.Status == wire.StatusInvalidInState
}
