package wire

import (
	"fmt"
)

// CBOR map keys for message encoding.
const (
	KeyMessageID  = 1
	KeyOpOrStatus = 2 // Operation (request) or Status (response)
	KeyEndpointID = 3
	KeyClusterID  = 4
	KeyPayload    = 5
)

// ReservedMessageID is never used for a request.
const ReservedMessageID uint32 = 0

// Request represents a request message from the harness to the device.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32
//	  2: operation,    // uint8: 1=Read, 2=Invoke
//	  3: endpointId,   // uint16
//	  4: clusterId,    // uint32
//	  5: payload       // ReadPayload or InvokePayload
//	}
type Request struct {
	MessageID  uint32    `cbor:"1,keyasint"`
	Operation  Operation `cbor:"2,keyasint"`
	EndpointID uint16    `cbor:"3,keyasint"`
	ClusterID  uint32    `cbor:"4,keyasint"`
	Payload    any       `cbor:"5,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == ReservedMessageID {
		return fmt.Errorf("messageId 0 is reserved")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	return nil
}

// Response represents a response message from the device to the harness.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32: matches request
//	  2: status,       // uint8: 0=success, or error code
//	  3: payload       // attribute value, command response or ErrorPayload
//	}
type Response struct {
	MessageID uint32 `cbor:"1,keyasint"`
	Status    Status `cbor:"2,keyasint"`
	Payload   any    `cbor:"3,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// ReadPayload represents the payload for a Read request.
type ReadPayload struct {
	AttributeID uint32 `cbor:"1,keyasint"`
}

// InvokePayload represents the payload for an Invoke request.
//
// CBOR encoding:
//
//	{
//	  1: commandId,       // uint32
//	  2: parameters,      // command fields, absent when the command has none
//	  3: timedTimeoutMs   // uint16: timed request window, absent when untimed
//	}
type InvokePayload struct {
	CommandID      uint32 `cbor:"1,keyasint"`
	Parameters     any    `cbor:"2,keyasint,omitempty"`
	TimedTimeoutMs uint16 `cbor:"3,keyasint,omitempty"`
}

// IsTimed reports whether the invoke was sent as a timed request.
func (p *InvokePayload) IsTimed() bool {
	return p.TimedTimeoutMs > 0
}

// ErrorPayload represents additional error information in a response.
type ErrorPayload struct {
	Message string `cbor:"1,keyasint,omitempty"`
}

// ExtractReadPayload extracts a read payload from a request payload.
// After a CBOR round-trip the payload is a raw map (map[any]any), not
// *ReadPayload, so both typed and untyped forms are handled.
func ExtractReadPayload(payload any) (*ReadPayload, error) {
	switch p := payload.(type) {
	case *ReadPayload:
		return p, nil
	case ReadPayload:
		return &p, nil
	case nil:
		return nil, fmt.Errorf("missing read payload")
	}
	var rp ReadPayload
	if err := DecodeInto(payload, &rp); err != nil {
		return nil, fmt.Errorf("invalid read payload: %w", err)
	}
	return &rp, nil
}

// ExtractInvokePayload extracts an invoke payload from a request payload.
func ExtractInvokePayload(payload any) (*InvokePayload, error) {
	switch p := payload.(type) {
	case *InvokePayload:
		return p, nil
	case InvokePayload:
		return &p, nil
	case nil:
		return nil, fmt.Errorf("missing invoke payload")
	}
	var ip InvokePayload
	if err := DecodeInto(payload, &ip); err != nil {
		return nil, fmt.Errorf("invalid invoke payload: %w", err)
	}
	return &ip, nil
}

// ExtractErrorMessage returns the message of an error response payload, or
// an empty string when there is none.
func ExtractErrorMessage(payload any) string {
	switch p := payload.(type) {
	case *ErrorPayload:
		return p.Message
	case ErrorPayload:
		return p.Message
	case nil:
		return ""
	}
	var ep ErrorPayload
	if err := DecodeInto(payload, &ep); err != nil {
		return ""
	}
	return ep.Message
}
