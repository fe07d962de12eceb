package runner

// Actions.
const (
	ActionSendCommand          = "send_command"
	ActionReadOperationalState = "read_operational_state"
	ActionReadOperationalError = "read_operational_error"
	ActionReadOverallState     = "read_overall_state"
	ActionReadAttribute        = "read_attribute"
	ActionInjectState          = "inject_state"
	ActionWait                 = "wait"
)

// Step parameters.
const (
	ParamEndpoint      = "endpoint"
	ParamCommand       = "command"
	ParamTag           = "tag"
	ParamSpeed         = "speed"
	ParamLatch         = "latch"
	ParamTimedMs       = "timed_ms"
	ParamExpectStatus  = "expect_status"
	ParamExpected      = "expected"
	ParamPositioning   = "positioning"
	ParamLatching      = "latching"
	ParamAttribute     = "attribute"
	ParamName          = "name"
	ParamSetupRequired = "setup_required"
	ParamError         = "error"

	ParamRestingProcedure = "resting_procedure"
	ParamTriggerCondition = "trigger_condition"
	ParamTriggerPosition  = "trigger_position"
	ParamWaitingDelay     = "waiting_delay"
)

// Step outputs.
const (
	KeyStatus      = "status"
	KeyState       = "state"
	KeyErrorState  = "error_state"
	KeyPositioning = "positioning"
	KeyLatching    = "latching"
	KeySpeed       = "speed"
	KeyValue       = "value"
	KeyInjected    = "injected"
	KeyWaited      = "waited_ms"
)
