package wire

// OverallState is the composite physical state of a closure.
//
// CBOR encoding:
//
//	{
//	  1: positioning,  // uint8
//	  2: latching,     // uint8
//	  3: speed         // uint8
//	}
type OverallState struct {
	Positioning Positioning `cbor:"1,keyasint"`
	Latching    Latching    `cbor:"2,keyasint"`
	Speed       Speed       `cbor:"3,keyasint"`
}

// ErrorStateStruct is the value of the OperationalError attribute.
type ErrorStateStruct struct {
	ErrorStateID      ErrorState `cbor:"1,keyasint"`
	ErrorStateLabel   string     `cbor:"2,keyasint,omitempty"`
	ErrorStateDetails string     `cbor:"3,keyasint,omitempty"`
}

// OperationalStateStruct is one entry of the OperationalStateList attribute.
type OperationalStateStruct struct {
	OperationalStateID    OperationalState `cbor:"1,keyasint"`
	OperationalStateLabel string           `cbor:"2,keyasint,omitempty"`
}

// Command is a cluster command with its fields. The command value itself is
// the invoke parameters.
type Command interface {
	CommandID() CommandID
}

// MoveTo moves the closure to a tag position, optionally with a latch and
// speed. Every field is optional.
type MoveTo struct {
	Tag   *Tag      `cbor:"0,keyasint,omitempty"`
	Speed *Speed    `cbor:"1,keyasint,omitempty"`
	Latch *Latching `cbor:"2,keyasint,omitempty"`
}

func (MoveTo) CommandID() CommandID { return CmdMoveTo }

// IsEmpty reports whether no field is set.
func (m MoveTo) IsEmpty() bool {
	return m.Tag == nil && m.Speed == nil && m.Latch == nil
}

// Stop halts any motion or calibration.
type Stop struct{}

func (Stop) CommandID() CommandID { return CmdStop }

// Pause suspends motion.
type Pause struct{}

func (Pause) CommandID() CommandID { return CmdPause }

// Resume continues paused motion.
type Resume struct{}

func (Resume) CommandID() CommandID { return CmdResume }

// Calibrate starts a calibration run.
type Calibrate struct{}

func (Calibrate) CommandID() CommandID { return CmdCalibrate }

// ConfigureFallback sets the fallback behaviour. Every field is optional.
type ConfigureFallback struct {
	RestingProcedure *RestingProcedure `cbor:"0,keyasint,omitempty"`
	TriggerCondition *TriggerCondition `cbor:"1,keyasint,omitempty"`
	TriggerPosition  *TriggerPosition  `cbor:"2,keyasint,omitempty"`
	WaitingDelay     *uint16           `cbor:"3,keyasint,omitempty"`
}

func (ConfigureFallback) CommandID() CommandID { return CmdConfigureFallback }

// IsEmpty reports whether no field is set.
func (c ConfigureFallback) IsEmpty() bool {
	return c.RestingProcedure == nil && c.TriggerCondition == nil &&
		c.TriggerPosition == nil && c.WaitingDelay == nil
}

// CancelFallback clears a configured fallback.
type CancelFallback struct{}

func (CancelFallback) CommandID() CommandID { return CmdCancelFallback }

// Ptr returns a pointer to v. Used to fill optional command fields.
func Ptr[T any](v T) *T {
	return &v
}

// DecodeCommand decodes invoke parameters into the typed command for id.
// It returns false for unknown commands.
func DecodeCommand(id CommandID, params any) (Command, bool, error) {
	var cmd Command
	switch id {
	case CmdStop:
		return Stop{}, true, nil
	case CmdPause:
		return Pause{}, true, nil
	case CmdResume:
		return Resume{}, true, nil
	case CmdCalibrate:
		return Calibrate{}, true, nil
	case CmdCancelFallback:
		return CancelFallback{}, true, nil
	case CmdMoveTo:
		var m MoveTo
		if params != nil {
			if err := DecodeInto(params, &m); err != nil {
				return nil, true, err
			}
		}
		cmd = m
	case CmdConfigureFallback:
		var c ConfigureFallback
		if params != nil {
			if err := DecodeInto(params, &c); err != nil {
				return nil, true, err
			}
		}
		cmd = c
	default:
		return nil, false, nil
	}
	return cmd, true, nil
}
