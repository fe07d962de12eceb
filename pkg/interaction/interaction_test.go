package interaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/wire"
)

type fakeHandler struct {
	mu      sync.Mutex
	invokes []*wire.InvokePayload
}

func (h *fakeHandler) HandleRead(_ context.Context, endpoint uint16, cluster wire.ClusterID, attr wire.AttributeID) (any, wire.Status) {
	if endpoint != 1 {
		return "no such endpoint", wire.StatusUnsupportedEndpoint
	}
	if cluster != wire.ClusterClosureOperationalState {
		return nil, wire.StatusUnsupportedCluster
	}
	if attr == wire.AttrOperationalState {
		return uint8(wire.StateRunning), wire.StatusSuccess
	}
	return nil, wire.StatusUnsupportedAttribute
}

func (h *fakeHandler) HandleInvoke(_ context.Context, _ uint16, _ wire.ClusterID, inv *wire.InvokePayload) (any, wire.Status) {
	h.mu.Lock()
	h.invokes = append(h.invokes, inv)
	h.mu.Unlock()
	if inv.CommandID == wire.CmdPause {
		return "paused not allowed", wire.StatusInvalidInState
	}
	return nil, wire.StatusSuccess
}

// loopback delivers each request frame to a Server and the encoded response
// back to the Client.
type loopback struct {
	server *Server
	client *Client
	drop   bool
}

func (l *loopback) Send(data []byte) error {
	if l.drop {
		return nil
	}
	go func() {
		out, err := l.server.HandleFrame(context.Background(), "loop", data)
		if err != nil {
			return
		}
		resp, err := wire.DecodeResponse(out)
		if err != nil {
			return
		}
		_ = l.client.HandleResponse(resp)
	}()
	return nil
}

func newPair(t *testing.T, h Handler, opts ...ClientOption) (*Client, *loopback) {
	t.Helper()
	lb := &loopback{server: NewServer(h)}
	lb.client = NewClient(lb, opts...)
	return lb.client, lb
}

func TestReadSuccess(t *testing.T) {
	client, _ := newPair(t, &fakeHandler{})

	v, err := client.Read(context.Background(), 1, wire.ClusterClosureOperationalState, wire.AttrOperationalState)
	require.NoError(t, err)
	assert.EqualValues(t, wire.StateRunning, v)
}

func TestReadErrors(t *testing.T) {
	client, _ := newPair(t, &fakeHandler{})
	ctx := context.Background()

	tests := []struct {
		name     string
		endpoint uint16
		cluster  wire.ClusterID
		attr     wire.AttributeID
		want     wire.Status
		msg      string
	}{
		{"endpoint", 9, wire.ClusterClosureOperationalState, wire.AttrOperationalState, wire.StatusUnsupportedEndpoint, "no such endpoint"},
		{"cluster", 1, 0x9999, wire.AttrOperationalState, wire.StatusUnsupportedCluster, ""},
		{"attribute", 1, wire.ClusterClosureOperationalState, 0x4242, wire.StatusUnsupportedAttribute, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Read(ctx, tt.endpoint, tt.cluster, tt.attr)
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.want, se.Status)
			assert.Equal(t, tt.msg, se.Message)
		})
	}
}

func TestInvokeTimedAndStatus(t *testing.T) {
	h := &fakeHandler{}
	client, _ := newPair(t, h)
	ctx := context.Background()

	_, err := client.Invoke(ctx, 1, wire.ClusterClosureOperationalState, wire.CmdMoveTo,
		wire.MoveTo{Tag: wire.Ptr(wire.TagOpenInFull)}, Timed(2*time.Second))
	require.NoError(t, err)

	_, err = client.Invoke(ctx, 1, wire.ClusterClosureOperationalState, wire.CmdPause, nil)
	status, ok := StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, wire.StatusInvalidInState, status)
	assert.Contains(t, err.Error(), "paused not allowed")

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.invokes, 2)
	assert.True(t, h.invokes[0].IsTimed())
	assert.EqualValues(t, 2000, h.invokes[0].TimedTimeoutMs)
	assert.False(t, h.invokes[1].IsTimed())

	var m wire.MoveTo
	require.NoError(t, wire.DecodeInto(h.invokes[0].Parameters, &m))
	require.NotNil(t, m.Tag)
	assert.Equal(t, wire.TagOpenInFull, *m.Tag)
}

func TestRequestTimeout(t *testing.T) {
	client, lb := newPair(t, &fakeHandler{}, WithTimeout(30*time.Millisecond))
	lb.drop = true

	_, err := client.Read(context.Background(), 1, wire.ClusterClosureOperationalState, wire.AttrOperationalState)
	assert.ErrorIs(t, err, ErrRequestTimeout)
	_, ok := StatusOf(err)
	assert.False(t, ok)
}

func TestContextCancel(t *testing.T) {
	client, lb := newPair(t, &fakeHandler{})
	lb.drop = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Read(ctx, 1, wire.ClusterClosureOperationalState, wire.AttrOperationalState)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseFailsPending(t *testing.T) {
	client, lb := newPair(t, &fakeHandler{})
	lb.drop = true

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Read(context.Background(), 1, wire.ClusterClosureOperationalState, wire.AttrOperationalState)
		errCh <- err
	}()

	assert.Eventually(t, func() bool {
		client.pendingMu.Lock()
		defer client.pendingMu.Unlock()
		return len(client.pending) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, client.Close())
	assert.ErrorIs(t, <-errCh, ErrClientClosed)

	_, err := client.Read(context.Background(), 1, wire.ClusterClosureOperationalState, wire.AttrOperationalState)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestUnexpectedReply(t *testing.T) {
	client := NewClient(&loopback{})
	err := client.HandleResponse(&wire.Response{MessageID: 77})
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestHandleFrameGarbage(t *testing.T) {
	s := NewServer(&fakeHandler{})
	out, err := s.HandleFrame(context.Background(), "c", []byte{0xff, 0x00})
	require.NoError(t, err)

	resp, err := wire.DecodeResponse(out)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusInvalidCommand, resp.Status)
	assert.Equal(t, wire.ReservedMessageID, resp.MessageID)
}

type eventSink struct {
	mu     sync.Mutex
	events []log.Event
}

func (e *eventSink) Log(ev log.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func TestProtocolLogging(t *testing.T) {
	serverLog := &eventSink{}
	clientLog := &eventSink{}

	lb := &loopback{server: NewServer(&fakeHandler{}, WithProtocolLogger(serverLog))}
	lb.client = NewClient(lb, WithClientLogger(clientLog, "c1"))

	_, err := lb.client.Invoke(context.Background(), 1, wire.ClusterClosureOperationalState, wire.CmdStop, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		serverLog.mu.Lock()
		defer serverLog.mu.Unlock()
		return len(serverLog.events) == 2
	}, time.Second, 5*time.Millisecond)

	clientLog.mu.Lock()
	defer clientLog.mu.Unlock()
	require.Len(t, clientLog.events, 2)
	req := clientLog.events[0].Message
	require.NotNil(t, req)
	assert.Equal(t, log.MessageTypeRequest, req.Type)
	require.NotNil(t, req.ElementID)
	assert.Equal(t, wire.CmdStop, *req.ElementID)
	assert.Equal(t, log.RoleHarness, clientLog.events[0].LocalRole)

	resp := clientLog.events[1].Message
	require.NotNil(t, resp.Status)
	assert.Equal(t, wire.StatusSuccess, *resp.Status)
	assert.NotNil(t, resp.ProcessingTime)
}

func TestStatusOfNil(t *testing.T) {
	s, ok := StatusOf(nil)
	assert.True(t, ok)
	assert.Equal(t, wire.StatusSuccess, s)

	_, ok = StatusOf(errors.New("boom"))
	assert.False(t, ok)
}
