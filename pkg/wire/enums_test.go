package wire

import "testing"

func TestOperationalState_Values(t *testing.T) {
	tests := []struct {
		state OperationalState
		value uint8
		name  string
	}{
		{StateStopped, 0x00, "Stopped"},
		{StateRunning, 0x01, "Running"},
		{StatePaused, 0x02, "Paused"},
		{StateError, 0x03, "Error"},
		{StateProtected, 0x41, "Protected"},
		{StateDisengaged, 0x42, "Disengaged"},
		{StateSetupRequired, 0x43, "SetupRequired"},
		{StateCalibrating, 0x64, "Calibrating"},
	}
	for _, tt := range tests {
		if uint8(tt.state) != tt.value {
			t.Errorf("%s = %#x, want %#x", tt.name, uint8(tt.state), tt.value)
		}
		if tt.state.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.state.String(), tt.name)
		}
		if !tt.state.IsKnown() {
			t.Errorf("%s should be known", tt.name)
		}
	}
	if OperationalState(0x10).IsKnown() {
		t.Error("0x10 should not be a known state")
	}
	if len(OperationalStates) != len(tests) {
		t.Errorf("OperationalStates has %d entries, want %d", len(OperationalStates), len(tests))
	}
}

func TestParseEnums(t *testing.T) {
	if v, err := ParseTag("SequenceNextStep"); err != nil || v != TagSequenceNextStep {
		t.Errorf("ParseTag: got %v, %v", v, err)
	}
	if v, err := ParseTag("10"); err != nil || v.IsKnown() {
		t.Errorf("ParseTag(10) should give an unknown tag, got %v, %v", v, err)
	}
	if v, err := ParseLatching("notlatched"); err != nil || v != NotLatched {
		t.Errorf("ParseLatching: got %v, %v", v, err)
	}
	if v, err := ParseSpeed("High"); err != nil || v != SpeedHigh {
		t.Errorf("ParseSpeed: got %v, %v", v, err)
	}
	if v, err := ParseErrorState("Blocked"); err != nil || v != ErrorBlocked {
		t.Errorf("ParseErrorState: got %v, %v", v, err)
	}
	if v, err := ParseOperationalState("0x43"); err != nil || v != StateSetupRequired {
		t.Errorf("ParseOperationalState: got %v, %v", v, err)
	}
	if _, err := ParsePositioning("Sideways"); err == nil {
		t.Error("ParsePositioning should reject unknown names")
	}
}

func TestKnownBounds(t *testing.T) {
	if Tag(10).IsKnown() || !TagPedestrianNextStep.IsKnown() {
		t.Error("tag bounds wrong")
	}
	if Latching(3).IsKnown() || !NotLatched.IsKnown() {
		t.Error("latching bounds wrong")
	}
	if Speed(4).IsKnown() || !SpeedHigh.IsKnown() {
		t.Error("speed bounds wrong")
	}
	if Tag(10).String() != "Unknown" {
		t.Errorf("unknown tag String() = %q", Tag(10).String())
	}
}

func TestIDNames(t *testing.T) {
	if CommandName(CmdMoveTo) != "MoveTo" {
		t.Errorf("CommandName(MoveTo) = %q", CommandName(CmdMoveTo))
	}
	if AttributeName(0x1234) != "0x1234" {
		t.Errorf("AttributeName(0x1234) = %q", AttributeName(0x1234))
	}
	if id, err := ParseCommandID("calibrate"); err != nil || id != CmdCalibrate {
		t.Errorf("ParseCommandID: got %v, %v", id, err)
	}
	if id, err := ParseAttribute("OverallState"); err != nil || id != AttrOverallState {
		t.Errorf("ParseAttribute: got %v, %v", id, err)
	}
}
