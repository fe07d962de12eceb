package log

import (
	"time"

	"github.com/clopstate/clop-go/pkg/wire"
)

// Event is one entry of a protocol capture. Exactly one of the payload
// pointers is set. Keys are small integers to keep capture files compact.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	LocalRole    Role      `cbor:"6,keyasint,omitempty"`
	RemoteAddr   string    `cbor:"7,keyasint,omitempty"`
	DeviceID     string    `cbor:"8,keyasint,omitempty"`

	// TestCaseID is set by the harness while a test case runs.
	TestCaseID string `cbor:"9,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Injection   *InjectionEvent   `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// label returns names[v], or "UNKNOWN" when v has no name.
func label[T ~uint8](v T, names []string) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "UNKNOWN"
}

// Direction is relative to the process that wrote the event.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string { return label(d, []string{"IN", "OUT"}) }

// Layer is where an event was captured.
type Layer uint8

const (
	// LayerTransport sees raw frames.
	LayerTransport Layer = iota
	// LayerWire sees decoded requests and responses.
	LayerWire
	// LayerService sees device and harness state.
	LayerService
)

func (l Layer) String() string { return label(l, []string{"TRANSPORT", "WIRE", "SERVICE"}) }

// Category is the kind of payload an event carries.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryInjection
	CategoryState
	CategoryError
)

func (c Category) String() string {
	return label(c, []string{"MESSAGE", "INJECTION", "STATE", "ERROR"})
}

// Role is the side of the connection that wrote the event.
type Role uint8

const (
	RoleDevice Role = iota
	RoleHarness
)

func (r Role) String() string { return label(r, []string{"DEVICE", "HARNESS"}) }

// FrameEvent is a transport frame. Size counts the length prefix.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// MessageEvent is a decoded request or response. Operation, EndpointID,
// ClusterID and ElementID describe requests; Status and ProcessingTime
// describe responses.
type MessageEvent struct {
	Type           MessageType     `cbor:"1,keyasint"`
	MessageID      uint32          `cbor:"2,keyasint"`
	Operation      *wire.Operation `cbor:"3,keyasint,omitempty"`
	EndpointID     *uint16         `cbor:"4,keyasint,omitempty"`
	ClusterID      *uint32         `cbor:"5,keyasint,omitempty"`
	Status         *wire.Status    `cbor:"6,keyasint,omitempty"`
	ElementID      *uint32         `cbor:"7,keyasint,omitempty"`
	Payload        any             `cbor:"8,keyasint,omitempty"`
	ProcessingTime *time.Duration  `cbor:"9,keyasint,omitempty"`
}

// MessageType tells requests from responses.
type MessageType uint8

const (
	MessageTypeRequest MessageType = iota
	MessageTypeResponse
)

func (m MessageType) String() string { return label(m, []string{"REQUEST", "RESPONSE"}) }

// StateChangeEvent records a transition of a connection, the operational
// state machine, its error state or the running test case.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity is what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = iota
	StateEntityOperational
	StateEntityError
	StateEntityTestCase
)

func (s StateEntity) String() string {
	return label(s, []string{"CONNECTION", "OPERATIONAL", "ERROR_STATE", "TEST_CASE"})
}

// InjectionEvent is an app pipe message as the device received it.
type InjectionEvent struct {
	Name     string `cbor:"1,keyasint"`
	Raw      string `cbor:"2,keyasint,omitempty"`
	Rejected bool   `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData is a failure at any layer. Context names the operation
// that failed.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Code    *int   `cbor:"3,keyasint,omitempty"`
	Context string `cbor:"4,keyasint,omitempty"`
}
