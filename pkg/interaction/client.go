package interaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/wire"
)

var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrClientClosed    = errors.New("client is closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// DefaultTimeout is the per-request timeout when none is configured.
const DefaultTimeout = 10 * time.Second

// Sender transmits encoded request frames.
type Sender interface {
	Send(data []byte) error
}

// Receiver yields inbound frames. A zero timeout blocks.
type Receiver interface {
	Receive(timeout time.Duration) ([]byte, error)
}

// Client issues Read and Invoke requests and waits for the matching
// response.
type Client struct {
	sender  Sender
	timeout atomic.Int64
	msgID   atomic.Uint32
	plog    *messageLog

	pending   map[uint32]chan *wire.Response
	pendingMu sync.Mutex
	closed    bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout.Store(int64(d)) }
}

// WithClientLogger records every request and response as a wire-layer
// protocol event.
func WithClientLogger(l log.Logger, connID string) ClientOption {
	return func(c *Client) { c.plog = newMessageLog(l, connID, log.RoleHarness) }
}

// NewClient creates a client that writes requests to sender. Responses must
// be fed back through Run or HandleResponse.
func NewClient(sender Sender, opts ...ClientOption) *Client {
	c := &Client{
		sender:  sender,
		pending: make(map[uint32]chan *wire.Response),
	}
	c.timeout.Store(int64(DefaultTimeout))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTimeout changes the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout.Store(int64(d))
}

// Run reads frames from r until it fails, delivering each response to its
// waiting request. Pending requests fail with ErrClientClosed afterwards.
func (c *Client) Run(r Receiver) error {
	defer c.Close()
	for {
		data, err := r.Receive(0)
		if err != nil {
			return err
		}
		resp, err := wire.DecodeResponse(data)
		if err != nil {
			continue
		}
		_ = c.HandleResponse(resp)
	}
}

// Close fails every pending request and rejects new ones.
func (c *Client) Close() error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	return nil
}

// HandleResponse routes resp to the request with the same message ID.
func (c *Client) HandleResponse(resp *wire.Response) error {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.MessageID]
	if ok {
		delete(c.pending, resp.MessageID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return ErrUnexpectedReply
	}
	ch <- resp
	return nil
}

func (c *Client) nextMessageID() uint32 {
	for {
		if id := c.msgID.Add(1); id != wire.ReservedMessageID {
			return id
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	ch := make(chan *wire.Response, 1)

	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return nil, ErrClientClosed
	}
	c.pending[req.MessageID] = ch
	c.pendingMu.Unlock()

	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, req.MessageID)
		c.pendingMu.Unlock()
	}

	data, err := wire.EncodeRequest(req)
	if err != nil {
		forget()
		return nil, err
	}
	start := time.Now()
	c.plog.request(req, log.DirectionOut)
	if err := c.sender.Send(data); err != nil {
		forget()
		return nil, fmt.Errorf("send request %d: %w", req.MessageID, err)
	}

	timer := time.NewTimer(time.Duration(c.timeout.Load()))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	case <-timer.C:
		forget()
		return nil, fmt.Errorf("%w: message %d", ErrRequestTimeout, req.MessageID)
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClientClosed
		}
		c.plog.response(resp, log.DirectionIn, time.Since(start))
		return resp, nil
	}
}

// Read returns the raw value of one attribute.
func (c *Client) Read(ctx context.Context, endpoint uint16, cluster wire.ClusterID, attr wire.AttributeID) (any, error) {
	req := &wire.Request{
		MessageID:  c.nextMessageID(),
		Operation:  wire.OpRead,
		EndpointID: endpoint,
		ClusterID:  cluster,
		Payload:    &wire.ReadPayload{AttributeID: attr},
	}
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}
	return resp.Payload, nil
}

// InvokeOption configures a single Invoke.
type InvokeOption func(*wire.InvokePayload)

// Timed sends the invoke as a timed request with the given window.
func Timed(window time.Duration) InvokeOption {
	return func(p *wire.InvokePayload) {
		ms := window.Milliseconds()
		if ms <= 0 {
			ms = 1
		}
		if ms > 0xffff {
			ms = 0xffff
		}
		p.TimedTimeoutMs = uint16(ms)
	}
}

// Invoke executes a command and returns its response payload.
func (c *Client) Invoke(ctx context.Context, endpoint uint16, cluster wire.ClusterID, cmd wire.CommandID, params any, opts ...InvokeOption) (any, error) {
	payload := &wire.InvokePayload{CommandID: cmd, Parameters: params}
	for _, opt := range opts {
		opt(payload)
	}
	req := &wire.Request{
		MessageID:  c.nextMessageID(),
		Operation:  wire.OpInvoke,
		EndpointID: endpoint,
		ClusterID:  cluster,
		Payload:    payload,
	}
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}
	return resp.Payload, nil
}

// StatusError is a non-success response from the device.
type StatusError struct {
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return e.Status.String()
}

func statusError(resp *wire.Response) error {
	return &StatusError{Status: resp.Status, Message: wire.ExtractErrorMessage(resp.Payload)}
}

// StatusOf returns the status carried by err. A nil error is Success and any
// error that is not a *StatusError reports ok=false.
func StatusOf(err error) (wire.Status, bool) {
	if err == nil {
		return wire.StatusSuccess, true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}
