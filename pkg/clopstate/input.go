package clopstate

import "github.com/clopstate/clop-go/pkg/wire"

// Kind tags an input to the model.
type Kind uint8

// Commands.
const (
	KindStop Kind = iota + 1
	KindPause
	KindResume
	KindCalibrate
	KindMoveTo
	KindConfigureFallback
	KindCancelFallback
)

// Events.
const (
	KindMotionComplete Kind = iota + 32
	KindCalibrationComplete
	KindCalibrationFailed
	KindFault
	KindClearError
	KindSetupRequired
	KindSetupComplete
	KindForceStopped
	KindForceRunning
	KindReset
	KindEngage
	KindDisengage
	KindProtectionRaised
	KindProtectionDropped
)

var kindNames = map[Kind]string{
	KindStop:                "Stop",
	KindPause:               "Pause",
	KindResume:              "Resume",
	KindCalibrate:           "Calibrate",
	KindMoveTo:              "MoveTo",
	KindConfigureFallback:   "ConfigureFallback",
	KindCancelFallback:      "CancelFallback",
	KindMotionComplete:      "MotionComplete",
	KindCalibrationComplete: "CalibrationComplete",
	KindCalibrationFailed:   "CalibrationFailed",
	KindFault:               "Fault",
	KindClearError:          "ClearError",
	KindSetupRequired:       "SetupRequired",
	KindSetupComplete:       "SetupComplete",
	KindForceStopped:        "ForceStopped",
	KindForceRunning:        "ForceRunning",
	KindReset:               "Reset",
	KindEngage:              "Engage",
	KindDisengage:           "Disengage",
	KindProtectionRaised:    "ProtectionRaised",
	KindProtectionDropped:   "ProtectionDropped",
}

// Commands lists the command kinds.
var Commands = []Kind{
	KindStop, KindPause, KindResume, KindCalibrate,
	KindMoveTo, KindConfigureFallback, KindCancelFallback,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// IsCommand reports whether k is sent by a harness and answered with a status.
func (k Kind) IsCommand() bool {
	return k >= KindStop && k <= KindCancelFallback
}

// Input is one input to the model.
type Input struct {
	Kind Kind

	// MoveTo carries the fields of a MoveTo command.
	MoveTo wire.MoveTo

	// Fallback carries the fields of a ConfigureFallback command.
	Fallback wire.ConfigureFallback

	// Error is the error state of a Fault or CalibrationFailed event.
	Error wire.ErrorState
}

// CommandInput builds the input for a decoded wire command.
func CommandInput(cmd wire.Command) (Input, bool) {
	switch c := cmd.(type) {
	case wire.Stop:
		return Input{Kind: KindStop}, true
	case wire.Pause:
		return Input{Kind: KindPause}, true
	case wire.Resume:
		return Input{Kind: KindResume}, true
	case wire.Calibrate:
		return Input{Kind: KindCalibrate}, true
	case wire.MoveTo:
		return Input{Kind: KindMoveTo, MoveTo: c}, true
	case *wire.MoveTo:
		return Input{Kind: KindMoveTo, MoveTo: *c}, true
	case wire.ConfigureFallback:
		return Input{Kind: KindConfigureFallback, Fallback: c}, true
	case *wire.ConfigureFallback:
		return Input{Kind: KindConfigureFallback, Fallback: *c}, true
	case wire.CancelFallback:
		return Input{Kind: KindCancelFallback}, true
	}
	return Input{}, false
}

// Event builds an event input.
func Event(k Kind) Input {
	return Input{Kind: k}
}

// Fault builds a fault event carrying e.
func Fault(e wire.ErrorState) Input {
	return Input{Kind: KindFault, Error: e}
}
