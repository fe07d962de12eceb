package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// OperationalState is the coarse operational state of a closure.
type OperationalState uint8

const (
	StateStopped       OperationalState = 0x00
	StateRunning       OperationalState = 0x01
	StatePaused        OperationalState = 0x02
	StateError         OperationalState = 0x03
	StateProtected     OperationalState = 0x41
	StateDisengaged    OperationalState = 0x42
	StateSetupRequired OperationalState = 0x43
	StateCalibrating   OperationalState = 0x64
)

var operationalStateNames = map[OperationalState]string{
	StateStopped:       "Stopped",
	StateRunning:       "Running",
	StatePaused:        "Paused",
	StateError:         "Error",
	StateProtected:     "Protected",
	StateDisengaged:    "Disengaged",
	StateSetupRequired: "SetupRequired",
	StateCalibrating:   "Calibrating",
}

// OperationalStates lists every known operational state in value order.
var OperationalStates = []OperationalState{
	StateStopped, StateRunning, StatePaused, StateError,
	StateProtected, StateDisengaged, StateSetupRequired, StateCalibrating,
}

func (s OperationalState) String() string { return enumName(s, operationalStateNames) }

// IsKnown reports whether s is a defined operational state.
func (s OperationalState) IsKnown() bool { _, ok := operationalStateNames[s]; return ok }

// ParseOperationalState parses a state name or numeric literal.
func ParseOperationalState(s string) (OperationalState, error) {
	return parseEnum(s, operationalStateNames, "operational state")
}

// ErrorState identifies the error carried alongside StateError.
type ErrorState uint8

const (
	ErrorNoError                   ErrorState = 0x00
	ErrorUnableToStartOrResume     ErrorState = 0x01
	ErrorUnableToCompleteOperation ErrorState = 0x02
	ErrorCommandInvalidInState     ErrorState = 0x03
	ErrorBlocked                   ErrorState = 0x40
	ErrorIntegratedElement         ErrorState = 0x41
	ErrorMaintenanceRequired       ErrorState = 0x42
	ErrorThermalProtected          ErrorState = 0x43
)

var errorStateNames = map[ErrorState]string{
	ErrorNoError:                   "NoError",
	ErrorUnableToStartOrResume:     "UnableToStartOrResume",
	ErrorUnableToCompleteOperation: "UnableToCompleteOperation",
	ErrorCommandInvalidInState:     "CommandInvalidInState",
	ErrorBlocked:                   "Blocked",
	ErrorIntegratedElement:         "IntegratedElement",
	ErrorMaintenanceRequired:       "MaintenanceRequired",
	ErrorThermalProtected:          "ThermalProtected",
}

func (e ErrorState) String() string { return enumName(e, errorStateNames) }

// IsKnown reports whether e is a defined error state.
func (e ErrorState) IsKnown() bool { _, ok := errorStateNames[e]; return ok }

// ParseErrorState parses an error state name or numeric literal.
func ParseErrorState(s string) (ErrorState, error) {
	return parseEnum(s, errorStateNames, "error state")
}

// Tag is the target of a MoveTo command.
type Tag uint8

const (
	TagCloseInFull        Tag = 0
	TagOpenInFull         Tag = 1
	TagOpenOneQuarter     Tag = 2
	TagOpenInHalf         Tag = 3
	TagOpenThreeQuarter   Tag = 4
	TagPedestrian         Tag = 5
	TagVentilation        Tag = 6
	TagSignature          Tag = 7
	TagSequenceNextStep   Tag = 8
	TagPedestrianNextStep Tag = 9
)

var tagNames = map[Tag]string{
	TagCloseInFull:        "CloseInFull",
	TagOpenInFull:         "OpenInFull",
	TagOpenOneQuarter:     "OpenOneQuarter",
	TagOpenInHalf:         "OpenInHalf",
	TagOpenThreeQuarter:   "OpenThreeQuarter",
	TagPedestrian:         "Pedestrian",
	TagVentilation:        "Ventilation",
	TagSignature:          "Signature",
	TagSequenceNextStep:   "SequenceNextStep",
	TagPedestrianNextStep: "PedestrianNextStep",
}

// Tags lists every known tag in value order.
var Tags = []Tag{
	TagCloseInFull, TagOpenInFull, TagOpenOneQuarter, TagOpenInHalf, TagOpenThreeQuarter,
	TagPedestrian, TagVentilation, TagSignature, TagSequenceNextStep, TagPedestrianNextStep,
}

func (t Tag) String() string { return enumName(t, tagNames) }

// IsKnown reports whether t is a defined tag.
func (t Tag) IsKnown() bool { return t <= TagPedestrianNextStep }

// ParseTag parses a tag name or numeric literal.
func ParseTag(s string) (Tag, error) { return parseEnum(s, tagNames, "tag") }

// Latching describes the latch of a closure.
type Latching uint8

const (
	LatchedAndSecured    Latching = 0
	LatchedButNotSecured Latching = 1
	NotLatched           Latching = 2
)

var latchingNames = map[Latching]string{
	LatchedAndSecured:    "LatchedAndSecured",
	LatchedButNotSecured: "LatchedButNotSecured",
	NotLatched:           "NotLatched",
}

// Latchings lists every known latching value in value order.
var Latchings = []Latching{LatchedAndSecured, LatchedButNotSecured, NotLatched}

func (l Latching) String() string { return enumName(l, latchingNames) }

// IsKnown reports whether l is a defined latching value.
func (l Latching) IsKnown() bool { return l <= NotLatched }

// ParseLatching parses a latching name or numeric literal.
func ParseLatching(s string) (Latching, error) { return parseEnum(s, latchingNames, "latching") }

// Speed is a three-level-auto speed.
type Speed uint8

const (
	SpeedAutomatic Speed = 0
	SpeedLow       Speed = 1
	SpeedMedium    Speed = 2
	SpeedHigh      Speed = 3
)

var speedNames = map[Speed]string{
	SpeedAutomatic: "Automatic",
	SpeedLow:       "Low",
	SpeedMedium:    "Medium",
	SpeedHigh:      "High",
}

// Speeds lists every known speed in value order.
var Speeds = []Speed{SpeedAutomatic, SpeedLow, SpeedMedium, SpeedHigh}

func (s Speed) String() string { return enumName(s, speedNames) }

// IsKnown reports whether s is a defined speed.
func (s Speed) IsKnown() bool { return s <= SpeedHigh }

// ParseSpeed parses a speed name or numeric literal.
func ParseSpeed(s string) (Speed, error) { return parseEnum(s, speedNames, "speed") }

// Positioning is the physical position reported in OverallState.
type Positioning uint8

const (
	FullyClosed          Positioning = 0
	FullyOpened          Positioning = 1
	PartiallyOpened      Positioning = 2
	OpenedForPedestrian  Positioning = 3
	OpenedForVentilation Positioning = 4
	OpenedAtSignature    Positioning = 5
)

var positioningNames = map[Positioning]string{
	FullyClosed:          "FullyClosed",
	FullyOpened:          "FullyOpened",
	PartiallyOpened:      "PartiallyOpened",
	OpenedForPedestrian:  "OpenedForPedestrian",
	OpenedForVentilation: "OpenedForVentilation",
	OpenedAtSignature:    "OpenedAtSignature",
}

func (p Positioning) String() string { return enumName(p, positioningNames) }

// IsKnown reports whether p is a defined positioning value.
func (p Positioning) IsKnown() bool { return p <= OpenedAtSignature }

// ParsePositioning parses a positioning name or numeric literal.
func ParsePositioning(s string) (Positioning, error) {
	return parseEnum(s, positioningNames, "positioning")
}

// RestingProcedure is what a closure does once a fallback triggers.
type RestingProcedure uint8

const (
	RestingDoNothing       RestingProcedure = 0
	RestingGoToFullyClosed RestingProcedure = 1
	RestingGoToFullyOpened RestingProcedure = 2
)

var restingProcedureNames = map[RestingProcedure]string{
	RestingDoNothing:       "DoNothing",
	RestingGoToFullyClosed: "GoToFullyClosed",
	RestingGoToFullyOpened: "GoToFullyOpened",
}

func (r RestingProcedure) String() string { return enumName(r, restingProcedureNames) }

// IsKnown reports whether r is a defined resting procedure.
func (r RestingProcedure) IsKnown() bool { return r <= RestingGoToFullyOpened }

// ParseRestingProcedure parses a resting procedure name or numeric literal.
func ParseRestingProcedure(s string) (RestingProcedure, error) {
	return parseEnum(s, restingProcedureNames, "resting procedure")
}

// TriggerCondition is when a fallback triggers.
type TriggerCondition uint8

const (
	TriggerAfterDelay    TriggerCondition = 0
	TriggerAfterMovement TriggerCondition = 1
)

var triggerConditionNames = map[TriggerCondition]string{
	TriggerAfterDelay:    "AfterDelay",
	TriggerAfterMovement: "AfterMovement",
}

func (c TriggerCondition) String() string { return enumName(c, triggerConditionNames) }

// IsKnown reports whether c is a defined trigger condition.
func (c TriggerCondition) IsKnown() bool { return c <= TriggerAfterMovement }

// ParseTriggerCondition parses a trigger condition name or numeric literal.
func ParseTriggerCondition(s string) (TriggerCondition, error) {
	return parseEnum(s, triggerConditionNames, "trigger condition")
}

// TriggerPosition is the position a fallback is armed at.
type TriggerPosition uint8

const (
	TriggerAtFullyClosed TriggerPosition = 0
	TriggerAtFullyOpened TriggerPosition = 1
	TriggerAtAnyPosition TriggerPosition = 2
)

var triggerPositionNames = map[TriggerPosition]string{
	TriggerAtFullyClosed: "AtFullyClosed",
	TriggerAtFullyOpened: "AtFullyOpened",
	TriggerAtAnyPosition: "AtAnyPosition",
}

func (p TriggerPosition) String() string { return enumName(p, triggerPositionNames) }

// IsKnown reports whether p is a defined trigger position.
func (p TriggerPosition) IsKnown() bool { return p <= TriggerAtAnyPosition }

// ParseTriggerPosition parses a trigger position name or numeric literal.
func ParseTriggerPosition(s string) (TriggerPosition, error) {
	return parseEnum(s, triggerPositionNames, "trigger position")
}

func enumName[T ~uint8](v T, names map[T]string) string {
	if name, ok := names[v]; ok {
		return name
	}
	return "Unknown"
}

func parseEnum[T ~uint8](s string, names map[T]string, kind string) (T, error) {
	s = strings.TrimSpace(s)
	for v, name := range names {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown %s %q", kind, s)
	}
	return T(n), nil
}

func parseID[T ~uint32](s string, names map[T]string, kind string) (T, error) {
	s = strings.TrimSpace(s)
	for v, name := range names {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown %s %q", kind, s)
	}
	return T(n), nil
}

func hexID(id uint32) string {
	return fmt.Sprintf("0x%04x", id)
}
