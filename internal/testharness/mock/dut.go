// Package mock provides in-process devices under test for harness tests.
//
// DUT is a scripted testify mock for exercising exact reply paths.
// Loopback drives a real interaction.Handler, such as a simulated closure,
// without a network connection.
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/clopstate/clop-go/pkg/interaction"
	"github.com/clopstate/clop-go/pkg/wire"
)

// DUT is a scripted device under test. Expectations are set with On:
//
//	dut.On("Invoke", mock.Anything, uint16(1), wire.ClusterClosureOperationalState,
//		wire.CmdStop, mock.Anything, uint16(0)).Return(nil, nil)
//
// The last Invoke argument is the timed window in milliseconds, zero when
// the invoke was untimed.
type DUT struct {
	mock.Mock
}

// Read returns the scripted value for one attribute.
func (m *DUT) Read(ctx context.Context, endpoint uint16, cluster wire.ClusterID, attr wire.AttributeID) (any, error) {
	args := m.Called(ctx, endpoint, cluster, attr)
	return args.Get(0), args.Error(1)
}

// Invoke returns the scripted reply for one command.
func (m *DUT) Invoke(ctx context.Context, endpoint uint16, cluster wire.ClusterID, cmd wire.CommandID, params any, opts ...interaction.InvokeOption) (any, error) {
	p := &wire.InvokePayload{CommandID: cmd, Parameters: params}
	for _, opt := range opts {
		opt(p)
	}
	args := m.Called(ctx, endpoint, cluster, cmd, params, p.TimedTimeoutMs)
	return args.Get(0), args.Error(1)
}

// Status returns the error a network client reports for a non-success reply.
func Status(s wire.Status) error {
	if s == wire.StatusSuccess {
		return nil
	}
	return &interaction.StatusError{Status: s}
}
