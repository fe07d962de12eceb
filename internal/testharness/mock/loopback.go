package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/clopstate/clop-go/pkg/interaction"
	"github.com/clopstate/clop-go/pkg/wire"
)

// Message records one request a Loopback delivered.
type Message struct {
	Operation wire.Operation
	Endpoint  uint16
	Cluster   wire.ClusterID

	// ID is the attribute ID of a read or the command ID of an invoke.
	ID uint32

	Params  any
	TimedMs uint16
	Status  wire.Status
}

// Loopback delivers reads and invokes straight to a handler. Values cross a
// CBOR round trip in both directions so the handler and the caller see what
// they would see over a connection.
type Loopback struct {
	handler interaction.Handler

	mu       sync.Mutex
	messages []Message
}

// NewLoopback creates a loopback DUT in front of h.
func NewLoopback(h interaction.Handler) *Loopback {
	return &Loopback{handler: h}
}

// Read reads one attribute from the handler.
func (l *Loopback) Read(ctx context.Context, endpoint uint16, cluster wire.ClusterID, attr wire.AttributeID) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, status := l.handler.HandleRead(ctx, endpoint, cluster, attr)
	l.record(Message{Operation: wire.OpRead, Endpoint: endpoint, Cluster: cluster, ID: attr, Status: status})
	return reply(v, status)
}

// Invoke executes one command on the handler.
func (l *Loopback) Invoke(ctx context.Context, endpoint uint16, cluster wire.ClusterID, cmd wire.CommandID, params any, opts ...interaction.InvokeOption) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	encoded, err := roundTrip(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s parameters: %w", wire.CommandName(cmd), err)
	}
	inv := &wire.InvokePayload{CommandID: cmd, Parameters: encoded}
	for _, opt := range opts {
		opt(inv)
	}
	v, status := l.handler.HandleInvoke(ctx, endpoint, cluster, inv)
	l.record(Message{
		Operation: wire.OpInvoke,
		Endpoint:  endpoint,
		Cluster:   cluster,
		ID:        cmd,
		Params:    encoded,
		TimedMs:   inv.TimedTimeoutMs,
		Status:    status,
	})
	return reply(v, status)
}

// Messages returns a copy of the recorded requests.
func (l *Loopback) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Reset forgets the recorded requests.
func (l *Loopback) Reset() {
	l.mu.Lock()
	l.messages = nil
	l.mu.Unlock()
}

func (l *Loopback) record(m Message) {
	l.mu.Lock()
	l.messages = append(l.messages, m)
	l.mu.Unlock()
}

func reply(v any, status wire.Status) (any, error) {
	if status != wire.StatusSuccess {
		msg, _ := v.(string)
		return nil, &interaction.StatusError{Status: status, Message: msg}
	}
	return roundTrip(v)
}

func roundTrip(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := wire.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := wire.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
