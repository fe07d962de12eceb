package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clopstate/clop-go/internal/testharness/commonops"
	"github.com/clopstate/clop-go/internal/testharness/inject"
	"github.com/clopstate/clop-go/pkg/apppipe"
	"github.com/clopstate/clop-go/pkg/closure"
	"github.com/clopstate/clop-go/pkg/discovery"
	"github.com/clopstate/clop-go/pkg/interaction"
	"github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/transport"
	"github.com/clopstate/clop-go/pkg/wire"
)

// DialConfig controls how the runner reaches a device.
type DialConfig struct {
	Attempts       int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration
	ProtocolLogger log.Logger
}

func (c DialConfig) withDefaults() DialConfig {
	if c.Attempts <= 0 {
		c.Attempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	return c
}

// Connection is a session with a device over TCP.
type Connection struct {
	conn   *transport.ClientConn
	client *interaction.Client
	done   chan struct{}
}

// Dial connects to target, retrying with backoff while the failure looks
// transient.
func Dial(ctx context.Context, target string, cfg DialConfig) (*Connection, error) {
	cfg = cfg.withDefaults()

	var conn *transport.ClientConn
	err := retryWithBackoff(ctx, RetryConfig{
		MaxAttempts: cfg.Attempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}, func() error {
		c, err := transport.Dial(ctx, target, transport.ClientConfig{Logger: cfg.ProtocolLogger})
		if err != nil {
			return classify(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", target, err)
	}

	var opts []interaction.ClientOption
	if cfg.RequestTimeout > 0 {
		opts = append(opts, interaction.WithTimeout(cfg.RequestTimeout))
	}
	if cfg.ProtocolLogger != nil {
		opts = append(opts, interaction.WithClientLogger(cfg.ProtocolLogger, conn.ConnID()))
	}
	c := &Connection{
		conn:   conn,
		client: interaction.NewClient(conn, opts...),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		_ = c.client.Run(conn)
	}()
	return c, nil
}

func (c *Connection) Read(ctx context.Context, endpoint uint16, cluster wire.ClusterID, attr wire.AttributeID) (any, error) {
	return c.client.Read(ctx, endpoint, cluster, attr)
}

func (c *Connection) Invoke(ctx context.Context, endpoint uint16, cluster wire.ClusterID, cmd wire.CommandID, params any, opts ...interaction.InvokeOption) (any, error) {
	return c.client.Invoke(ctx, endpoint, cluster, cmd, params, opts...)
}

// Close ends the session and waits for the read loop to exit.
func (c *Connection) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

// browseTarget finds a device over mDNS. It returns the first service and
// its endpoint.
func browseTarget(ctx context.Context, iface string, timeout time.Duration) (discovery.Service, error) {
	services, err := discovery.Browse(ctx, iface, timeout)
	if err != nil {
		return discovery.Service{}, err
	}
	if len(services) == 0 {
		return discovery.Service{}, discovery.ErrNotFound
	}
	return services[0], nil
}

// simulator runs a closure device in process behind a loopback TCP server.
// Each restart replaces the device so test cases start from the same state.
type simulator struct {
	cfg  closure.Config
	dial DialConfig

	mu     sync.RWMutex
	device *closure.Device
	server *transport.Server
	conn   *Connection
}

func newSimulator(cfg closure.Config, dial DialConfig) *simulator {
	return &simulator{cfg: cfg, dial: dial}
}

func (s *simulator) restart(ctx context.Context) error {
	s.stop()

	device := closure.New(s.cfg)
	// The server outlives the test case that started it.
	server, err := closure.Listen(context.WithoutCancel(ctx), "127.0.0.1:0", device)
	if err != nil {
		device.Close()
		return fmt.Errorf("start simulated device: %w", err)
	}
	conn, err := Dial(ctx, server.Addr().String(), s.dial)
	if err != nil {
		server.Stop()
		device.Close()
		return err
	}

	s.mu.Lock()
	s.device, s.server, s.conn = device, server, conn
	s.mu.Unlock()
	return nil
}

func (s *simulator) stop() {
	s.mu.Lock()
	device, server, conn := s.device, s.server, s.conn
	s.device, s.server, s.conn = nil, nil, nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if server != nil {
		server.Stop()
	}
	if device != nil {
		device.Close()
	}
}

func (s *simulator) current() (*closure.Device, *Connection) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device, s.conn
}

func (s *simulator) Read(ctx context.Context, endpoint uint16, cluster wire.ClusterID, attr wire.AttributeID) (any, error) {
	_, conn := s.current()
	if conn == nil {
		return nil, Infrastructure(transport.ErrConnectionClosed)
	}
	return conn.Read(ctx, endpoint, cluster, attr)
}

func (s *simulator) Invoke(ctx context.Context, endpoint uint16, cluster wire.ClusterID, cmd wire.CommandID, params any, opts ...interaction.InvokeOption) (any, error) {
	_, conn := s.current()
	if conn == nil {
		return nil, Infrastructure(transport.ErrConnectionClosed)
	}
	return conn.Invoke(ctx, endpoint, cluster, cmd, params, opts...)
}

// Inject delivers msg to the current device.
func (s *simulator) Inject(msg apppipe.Message) error {
	device, _ := s.current()
	if device == nil {
		return inject.ErrUnavailable
	}
	return device.Inject(msg)
}

var (
	_ commonops.DUT = (*Connection)(nil)
	_ commonops.DUT = (*simulator)(nil)
	_ inject.Target = (*simulator)(nil)
)
