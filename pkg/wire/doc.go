// Package wire defines the CBOR wire format for the closure operational-state
// interaction protocol.
//
// The protocol is a small request/response stand-in for a Matter interaction
// model: a test harness reads attributes and invokes commands on a cluster of
// an endpoint, and the device answers with a Matter status code and an
// optional payload. All maps use integer keys.
//
// # Message Types
//
//   - Request: harness to device (Read, Invoke)
//   - Response: device to harness (status plus payload)
//
// # Optional Fields
//
// Command fields are pointers. A nil field is absent on the wire, which is
// distinct from a field carrying the zero value of its enum.
package wire
