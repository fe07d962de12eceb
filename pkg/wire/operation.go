package wire

// Operation represents an interaction operation.
type Operation uint8

const (
	// OpRead gets the current value of one attribute.
	OpRead Operation = 1

	// OpInvoke executes a command with parameters.
	OpInvoke Operation = 2
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpRead:
		return "Read"
	case OpInvoke:
		return "Invoke"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is a known operation.
func (o Operation) IsValid() bool {
	return o == OpRead || o == OpInvoke
}
