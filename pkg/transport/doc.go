// Package transport carries CBOR messages between the certification
// harness and a closure device over plain TCP.
//
// Every message is one frame: a 4-byte big-endian length prefix followed by
// the payload.
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// Frames and connection state changes are reported to an optional
// log.Logger so a session can be replayed with clop-log.
package transport
