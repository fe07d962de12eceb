package wire

// ClusterID identifies a cluster on an endpoint.
type ClusterID = uint32

// AttributeID identifies an attribute within a cluster.
type AttributeID = uint32

// CommandID identifies a command within a cluster.
type CommandID = uint32

// ClusterClosureOperationalState is the closure operational-state cluster.
const ClusterClosureOperationalState ClusterID = 0x0104

// Closure operational-state attributes.
const (
	AttrOperationalStateList AttributeID = 0x0003
	AttrOperationalState     AttributeID = 0x0004
	AttrOperationalError     AttributeID = 0x0005
	AttrOverallState         AttributeID = 0x0006
	AttrRestingProcedure     AttributeID = 0x0007
	AttrTriggerCondition     AttributeID = 0x0008
	AttrTriggerPosition      AttributeID = 0x0009
	AttrWaitingDelay         AttributeID = 0x000a
	AttrFeatureMap           AttributeID = 0xfffc
)

// Closure operational-state commands.
const (
	CmdPause             CommandID = 0x00
	CmdStop              CommandID = 0x01
	CmdResume            CommandID = 0x03
	CmdCalibrate         CommandID = 0x80
	CmdMoveTo            CommandID = 0x81
	CmdConfigureFallback CommandID = 0x82
	CmdCancelFallback    CommandID = 0x83
)

var attributeNames = map[AttributeID]string{
	AttrOperationalStateList: "OperationalStateList",
	AttrOperationalState:     "OperationalState",
	AttrOperationalError:     "OperationalError",
	AttrOverallState:         "OverallState",
	AttrRestingProcedure:     "RestingProcedure",
	AttrTriggerCondition:     "TriggerCondition",
	AttrTriggerPosition:      "TriggerPosition",
	AttrWaitingDelay:         "WaitingDelay",
	AttrFeatureMap:           "FeatureMap",
}

var commandNames = map[CommandID]string{
	CmdPause:             "Pause",
	CmdStop:              "Stop",
	CmdResume:            "Resume",
	CmdCalibrate:         "Calibrate",
	CmdMoveTo:            "MoveTo",
	CmdConfigureFallback: "ConfigureFallback",
	CmdCancelFallback:    "CancelFallback",
}

// AttributeName returns the attribute name, or its hex ID if unknown.
func AttributeName(id AttributeID) string {
	if name, ok := attributeNames[id]; ok {
		return name
	}
	return hexID(id)
}

// CommandName returns the command name, or its hex ID if unknown.
func CommandName(id CommandID) string {
	if name, ok := commandNames[id]; ok {
		return name
	}
	return hexID(id)
}

// ParseAttribute resolves an attribute by name or numeric literal.
func ParseAttribute(s string) (AttributeID, error) {
	return parseID(s, attributeNames, "attribute")
}

// ParseCommandID resolves a command by name or numeric literal.
func ParseCommandID(s string) (CommandID, error) {
	return parseID(s, commandNames, "command")
}
