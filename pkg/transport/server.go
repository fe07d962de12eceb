package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clopstate/clop-go/pkg/log"
)

// DefaultPort is the TCP port the simulated device listens on.
const DefaultPort = 5540

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on, e.g. ":5540" or "127.0.0.1:0".
	Address string

	// MaxMessageSize bounds inbound and outbound frames (default 64 KB).
	MaxMessageSize uint32

	// Logger receives frame and connection events (optional).
	Logger log.Logger

	OnConnect    func(conn *ServerConn)
	OnDisconnect func(conn *ServerConn)
	OnMessage    func(conn *ServerConn, msg []byte)
	OnError      func(conn *ServerConn, err error)
}

// Server accepts harness connections and hands each inbound frame to
// OnMessage. Frames of one connection are delivered sequentially.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. It does not listen until Start.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}
}

// Start listens and begins accepting connections in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to finish.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	err := s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return err
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.reportError(nil, fmt.Errorf("accept: %w", err))
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	remote := conn.RemoteAddr().String()

	framer := NewFramer(conn, s.config.MaxMessageSize)
	framer.SetLogger(s.config.Logger, connID, log.RoleDevice, remote)

	sconn := &ServerConn{
		conn:    conn,
		framer:  framer,
		server:  s,
		closeCh: make(chan struct{}),
		connID:  connID,
	}

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		conn.Close()
		return
	}
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	s.logState(connID, remote, "", "CONNECTED")
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	s.logState(connID, remote, "CONNECTED", "DISCONNECTED")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) logState(connID, remote, oldState, newState string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleDevice,
		RemoteAddr:   remote,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (s *Server) reportError(conn *ServerConn, err error) {
	if s.config.OnError != nil {
		s.config.OnError(conn, err)
	}
}

// ServerConn is one accepted harness connection.
type ServerConn struct {
	conn      net.Conn
	framer    *Framer
	server    *Server
	closeCh   chan struct{}
	closeOnce sync.Once
	connID    string
}

// ConnID returns the connection's unique identifier.
func (c *ServerConn) ConnID() string { return c.connID }

// RemoteAddr returns the peer address.
func (c *ServerConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Send writes one frame to the peer.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Close closes the connection. It is safe to call more than once.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) readLoop() {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
			case <-c.server.ctx.Done():
			default:
				if !isClosedErr(err) {
					c.server.reportError(c, err)
				}
			}
			c.Close()
			return
		}
		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}
