package clopstate

import (
	"fmt"

	"github.com/clopstate/clop-go/pkg/wire"
)

// Case is one (state, command, fields) tuple with the status the model
// expects for it.
type Case struct {
	State wire.OperationalState
	Input Input
	Want  wire.Status
}

func (c Case) String() string {
	switch c.Input.Kind {
	case KindMoveTo:
		return fmt.Sprintf("%s/MoveTo(tag=%s,latch=%s,speed=%s)", c.State,
			optString(c.Input.MoveTo.Tag), optString(c.Input.MoveTo.Latch), optString(c.Input.MoveTo.Speed))
	case KindConfigureFallback:
		f := c.Input.Fallback
		return fmt.Sprintf("%s/ConfigureFallback(rest=%s,cond=%s,pos=%s,delay=%s)", c.State,
			optString(f.RestingProcedure), optString(f.TriggerCondition), optString(f.TriggerPosition), optString(f.WaitingDelay))
	}
	return fmt.Sprintf("%s/%s", c.State, c.Input.Kind)
}

// Enumerate generates every state crossed with every command. Field values
// range over absent, each known value and one value past the known range.
func Enumerate(fs FeatureSet) []Case {
	var cases []Case
	add := func(s wire.OperationalState, in Input) {
		cases = append(cases, Case{State: s, Input: in, Want: Expect(s, in, fs)})
	}

	tags := options(wire.Tags, wire.Tag(len(wire.Tags)))
	latches := options(wire.Latchings, wire.Latching(len(wire.Latchings)))
	speeds := options(wire.Speeds, wire.Speed(len(wire.Speeds)))

	rests := options([]wire.RestingProcedure{wire.RestingDoNothing, wire.RestingGoToFullyClosed, wire.RestingGoToFullyOpened}, 3)
	conds := options([]wire.TriggerCondition{wire.TriggerAfterDelay, wire.TriggerAfterMovement}, 2)
	positions := options([]wire.TriggerPosition{wire.TriggerAtFullyClosed, wire.TriggerAtFullyOpened, wire.TriggerAtAnyPosition}, 3)
	delays := []*uint16{nil, wire.Ptr(uint16(30))}

	for _, s := range wire.OperationalStates {
		for _, k := range Commands {
			switch k {
			case KindMoveTo:
				for _, t := range tags {
					for _, l := range latches {
						for _, sp := range speeds {
							add(s, Input{Kind: k, MoveTo: wire.MoveTo{Tag: t, Latch: l, Speed: sp}})
						}
					}
				}
			case KindConfigureFallback:
				for _, r := range rests {
					for _, c := range conds {
						for _, p := range positions {
							for _, d := range delays {
								add(s, Input{Kind: k, Fallback: wire.ConfigureFallback{
									RestingProcedure: r, TriggerCondition: c, TriggerPosition: p, WaitingDelay: d,
								}})
							}
						}
					}
				}
			default:
				add(s, Input{Kind: k})
			}
		}
	}
	return cases
}

// Drive returns events that bring a machine in any state to s.
func Drive(s wire.OperationalState) []Input {
	switch s {
	case wire.StateStopped:
		return []Input{Event(KindReset)}
	case wire.StateRunning:
		return []Input{Event(KindReset), Event(KindForceRunning)}
	case wire.StatePaused:
		return []Input{Event(KindReset), Event(KindForceRunning), {Kind: KindPause}}
	case wire.StateError:
		return []Input{Event(KindReset), Fault(wire.ErrorBlocked)}
	case wire.StateProtected:
		return []Input{Event(KindReset), Event(KindProtectionRaised)}
	case wire.StateDisengaged:
		return []Input{Event(KindReset), Event(KindDisengage)}
	case wire.StateSetupRequired:
		return []Input{Event(KindReset), Event(KindSetupRequired)}
	case wire.StateCalibrating:
		return []Input{Event(KindReset), {Kind: KindCalibrate}}
	}
	return nil
}

func options[T any](known []T, unknown T) []*T {
	out := make([]*T, 0, len(known)+2)
	out = append(out, nil)
	for i := range known {
		out = append(out, &known[i])
	}
	return append(out, &unknown)
}

func optString[T any](v *T) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
