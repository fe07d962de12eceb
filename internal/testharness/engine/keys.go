package engine

// InternalStepOutput holds a copy of the last step's outputs.
const InternalStepOutput = "__step_output"

// KeyValue is the output key the value_* checkers inspect.
const KeyValue = "value"

// Checker names as they appear in YAML expect blocks.
const (
	CheckerNameDefault      = "default"
	CheckerNameValueEquals  = "value_equals"
	CheckerNameValueNot     = "value_not"
	CheckerNameValueIn      = "value_in"
	CheckerNameValueInRange = "value_in_range"
	CheckerNameContains     = "contains"
	CheckerNameSaveAs       = "save_as"
)
