package apppipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message names.
const (
	NameSetSetupRequired  = "SetSetupRequired"
	NameStopped           = "Stopped"
	NameReset             = "Reset"
	NameMoveTo            = "MoveTo"
	NameErrorEvent        = "ErrorEvent"
	NameClearError        = "ClearError"
	NameCalibrationEnded  = "CalibrationEnded"
	NameCalibrationFailed = "CalibrationFailed"
	NameGoRunning         = "GoRunning"
	NameGoStopped         = "GoStopped"
	NameEngaged           = "Engaged"
	NameDisengaged        = "Disengaged"
	NameProtectionRised   = "ProtectionRised"
	NameProtectionDropped = "ProtectionDropped"
	NameMovementComplete  = "MovementComplete"
)

// Names lists every message name a device understands.
var Names = []string{
	NameSetSetupRequired, NameStopped, NameReset, NameMoveTo, NameErrorEvent,
	NameClearError, NameCalibrationEnded, NameCalibrationFailed, NameGoRunning,
	NameGoStopped, NameEngaged, NameDisengaged, NameProtectionRised,
	NameProtectionDropped, NameMovementComplete,
}

var (
	ErrMissingName = errors.New("message has no Name")
	ErrUnknownName = errors.New("unknown message name")
)

// Message is one simulation stimulus. Only the fields relevant to Name are
// set.
type Message struct {
	Name          string `json:"Name"`
	SetupRequired *bool  `json:"SetupRequired,omitempty"`
	Error         string `json:"Error,omitempty"`
	Tag           *uint8 `json:"Tag,omitempty"`
	Speed         *uint8 `json:"Speed,omitempty"`
	Latch         *uint8 `json:"Latch,omitempty"`
}

// Known reports whether the name is one a device handles.
func (m Message) Known() bool {
	for _, n := range Names {
		if n == m.Name {
			return true
		}
	}
	return false
}

func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Name)
	if m.SetupRequired != nil {
		fmt.Fprintf(&b, " SetupRequired=%t", *m.SetupRequired)
	}
	if m.Error != "" {
		fmt.Fprintf(&b, " Error=%s", m.Error)
	}
	if m.Tag != nil {
		fmt.Fprintf(&b, " Tag=%d", *m.Tag)
	}
	if m.Speed != nil {
		fmt.Fprintf(&b, " Speed=%d", *m.Speed)
	}
	if m.Latch != nil {
		fmt.Fprintf(&b, " Latch=%d", *m.Latch)
	}
	return b.String()
}

// Encode returns the message as a single JSON line.
func Encode(m Message) ([]byte, error) {
	if m.Name == "" {
		return nil, ErrMissingName
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses one JSON object. Unknown names decode successfully but
// return ErrUnknownName alongside the message.
func Decode(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, fmt.Errorf("decode app pipe message: %w", err)
	}
	if m.Name == "" {
		return m, ErrMissingName
	}
	if !m.Known() {
		return m, fmt.Errorf("%w: %q", ErrUnknownName, m.Name)
	}
	return m, nil
}

// SetupRequired builds a SetSetupRequired message.
func SetupRequired(on bool) Message {
	return Message{Name: NameSetSetupRequired, SetupRequired: &on}
}

// ErrorEvent builds an ErrorEvent message for the named error state.
func ErrorEvent(errorState string) Message {
	return Message{Name: NameErrorEvent, Error: errorState}
}
