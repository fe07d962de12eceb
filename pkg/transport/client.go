package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clopstate/clop-go/pkg/log"
)

var ErrConnectionClosed = errors.New("connection closed")

// ClientConfig configures Dial.
type ClientConfig struct {
	// MaxMessageSize bounds frames in both directions (default 64 KB).
	MaxMessageSize uint32

	// ConnectTimeout applies when ctx carries no deadline (default 10s).
	ConnectTimeout time.Duration

	// Logger receives frame and connection events (optional).
	Logger log.Logger
}

// ClientConn is the harness side of a device connection.
type ClientConn struct {
	conn      net.Conn
	framer    *Framer
	connID    string
	logger    log.Logger
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to a device at address.
func Dial(ctx context.Context, address string, config ClientConfig) (*ClientConn, error) {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	c := &ClientConn{
		conn:   conn,
		framer: NewFramer(conn, config.MaxMessageSize),
		connID: uuid.New().String(),
		logger: config.Logger,
		closed: make(chan struct{}),
	}
	c.framer.SetLogger(config.Logger, c.connID, log.RoleHarness, address)
	c.logState("", "CONNECTED")
	return c, nil
}

// ConnID returns the connection's unique identifier.
func (c *ClientConn) ConnID() string { return c.connID }

// RemoteAddr returns the device address.
func (c *ClientConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Send writes one frame to the device.
func (c *ClientConn) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive reads the next frame. A zero timeout blocks until a frame arrives
// or the connection closes.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	select {
	case <-c.closed:
		return nil, ErrConnectionClosed
	default:
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	data, err := c.framer.ReadFrame()
	if err != nil && isClosedErr(err) {
		select {
		case <-c.closed:
			return nil, ErrConnectionClosed
		default:
		}
	}
	return data, err
}

// Close closes the connection. It is safe to call more than once.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.logState("CONNECTED", "DISCONNECTED")
	})
	return err
}

// Done is closed once Close has been called.
func (c *ClientConn) Done() <-chan struct{} { return c.closed }

func (c *ClientConn) logState(oldState, newState string) {
	if c.logger == nil {
		return
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleHarness,
		RemoteAddr:   c.conn.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

// isClosedErr reports whether err is the normal end of a stream.
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, ErrFrameTruncated)
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
