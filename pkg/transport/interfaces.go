package transport

import (
	"net"
	"time"
)

// Conn is the side of a connection that can send frames.
type Conn interface {
	RemoteAddr() net.Addr
	Send(data []byte) error
	Close() error
}

// ReceivingConn adds a blocking read, used by the harness side.
type ReceivingConn interface {
	Conn
	Receive(timeout time.Duration) ([]byte, error)
}

// FrameReadWriter provides length-prefixed frame I/O.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

var (
	_ Conn            = (*ServerConn)(nil)
	_ ReceivingConn   = (*ClientConn)(nil)
	_ FrameReadWriter = (*Framer)(nil)
)
