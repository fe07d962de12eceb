package runner

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/clopstate/clop-go/pkg/apppipe"
	"github.com/clopstate/clop-go/pkg/wire"
)

var errMissingParam = errors.New("missing parameter")

// rawCommand is a command with no fields, used for IDs the harness has no
// typed command for.
type rawCommand struct{ id wire.CommandID }

func (c rawCommand) CommandID() wire.CommandID { return c.id }

func paramString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	default:
		return fmt.Sprint(t), true
	}
}

// paramUint reads a non-negative integer param bounded by limit.
func paramUint(params map[string]any, key string, limit uint64) (uint64, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	var n uint64
	switch t := v.(type) {
	case int:
		if t < 0 {
			return 0, true, fmt.Errorf("%s: negative value %d", key, t)
		}
		n = uint64(t)
	case uint64:
		n = t
	case float64:
		if t < 0 || t != math.Trunc(t) {
			return 0, true, fmt.Errorf("%s: not a whole number: %v", key, t)
		}
		n = uint64(t)
	case string:
		parsed, err := strconv.ParseUint(t, 0, 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		n = parsed
	default:
		return 0, true, fmt.Errorf("%s: unsupported type %T", key, v)
	}
	if n > limit {
		return 0, true, fmt.Errorf("%s: %d out of range", key, n)
	}
	return n, true, nil
}

// paramEnum reads an enum param given by name or number. Numbers outside
// the named set are accepted so steps can send unknown values.
func paramEnum[T ~uint8](params map[string]any, key string, parse func(string) (T, error)) (*T, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	if s, isStr := v.(string); isStr {
		e, err := parse(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &e, nil
	}
	n, _, err := paramUint(params, key, math.MaxUint8)
	if err != nil {
		return nil, err
	}
	e := T(n)
	return &e, nil
}

func paramEndpoint(params map[string]any, def uint16) (uint16, error) {
	n, ok, err := paramUint(params, ParamEndpoint, math.MaxUint16)
	if err != nil || !ok {
		return def, err
	}
	return uint16(n), nil
}

func paramTimed(params map[string]any) (time.Duration, error) {
	n, _, err := paramUint(params, ParamTimedMs, math.MaxUint16)
	return time.Duration(n) * time.Millisecond, err
}

func paramStatus(params map[string]any, key string) (wire.Status, bool, error) {
	s, ok := paramString(params, key)
	if !ok {
		return 0, false, nil
	}
	status, err := wire.ParseStatus(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return status, true, nil
}

// buildCommand turns send_command params into a typed command.
func buildCommand(params map[string]any) (wire.Command, error) {
	name, ok := paramString(params, ParamCommand)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMissingParam, ParamCommand)
	}
	id, err := wire.ParseCommandID(name)
	if err != nil {
		return nil, err
	}

	switch id {
	case wire.CmdMoveTo:
		var m wire.MoveTo
		if m.Tag, err = paramEnum(params, ParamTag, wire.ParseTag); err != nil {
			return nil, err
		}
		if m.Speed, err = paramEnum(params, ParamSpeed, wire.ParseSpeed); err != nil {
			return nil, err
		}
		if m.Latch, err = paramEnum(params, ParamLatch, wire.ParseLatching); err != nil {
			return nil, err
		}
		return m, nil
	case wire.CmdConfigureFallback:
		var c wire.ConfigureFallback
		if c.RestingProcedure, err = paramEnum(params, ParamRestingProcedure, wire.ParseRestingProcedure); err != nil {
			return nil, err
		}
		if c.TriggerCondition, err = paramEnum(params, ParamTriggerCondition, wire.ParseTriggerCondition); err != nil {
			return nil, err
		}
		if c.TriggerPosition, err = paramEnum(params, ParamTriggerPosition, wire.ParseTriggerPosition); err != nil {
			return nil, err
		}
		delay, set, err := paramUint(params, ParamWaitingDelay, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		if set {
			c.WaitingDelay = wire.Ptr(uint16(delay))
		}
		return c, nil
	case wire.CmdStop:
		return wire.Stop{}, nil
	case wire.CmdPause:
		return wire.Pause{}, nil
	case wire.CmdResume:
		return wire.Resume{}, nil
	case wire.CmdCalibrate:
		return wire.Calibrate{}, nil
	case wire.CmdCancelFallback:
		return wire.CancelFallback{}, nil
	}
	return rawCommand{id: id}, nil
}

// buildMessage turns inject_state params into an app pipe message.
func buildMessage(params map[string]any) (apppipe.Message, error) {
	name, ok := paramString(params, ParamName)
	if !ok {
		return apppipe.Message{}, fmt.Errorf("%w: %s", errMissingParam, ParamName)
	}
	msg := apppipe.Message{Name: name}
	if !msg.Known() {
		return msg, fmt.Errorf("%w: %q", apppipe.ErrUnknownName, name)
	}

	if v, ok := params[ParamSetupRequired]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return msg, fmt.Errorf("%s: want bool, got %T", ParamSetupRequired, v)
		}
		msg.SetupRequired = &b
	} else if name == apppipe.NameSetSetupRequired {
		msg.SetupRequired = wire.Ptr(true)
	}
	if s, ok := paramString(params, ParamError); ok {
		msg.Error = s
	}

	tag, err := paramEnum(params, ParamTag, wire.ParseTag)
	if err != nil {
		return msg, err
	}
	speed, err := paramEnum(params, ParamSpeed, wire.ParseSpeed)
	if err != nil {
		return msg, err
	}
	latch, err := paramEnum(params, ParamLatch, wire.ParseLatching)
	if err != nil {
		return msg, err
	}
	if tag != nil {
		msg.Tag = wire.Ptr(uint8(*tag))
	}
	if speed != nil {
		msg.Speed = wire.Ptr(uint8(*speed))
	}
	if latch != nil {
		msg.Latch = wire.Ptr(uint8(*latch))
	}
	return msg, nil
}
