// Package inject forces a simulated device into a state out of band.
//
// Test steps that need injection ask the StateInjector whether it is
// available and are skipped when it is not, so the same suites run against
// real devices that have no simulation channel.
package inject

import (
	"context"
	"errors"

	"github.com/clopstate/clop-go/pkg/apppipe"
)

// ErrUnavailable is returned by an injector that cannot reach a device.
var ErrUnavailable = errors.New("state injection unavailable")

// StateInjector delivers simulation messages to the device under test.
type StateInjector interface {
	Inject(ctx context.Context, msg apppipe.Message) error
	Available() bool
}

// Noop is used against real devices.
type Noop struct{}

func (Noop) Inject(context.Context, apppipe.Message) error { return ErrUnavailable }
func (Noop) Available() bool                               { return false }

// Pipe writes messages to a device's FIFO.
type Pipe struct {
	w *apppipe.Writer
}

// NewPipe creates an injector for the FIFO at path.
func NewPipe(path string) *Pipe {
	return &Pipe{w: apppipe.NewWriter(path)}
}

// Inject writes msg, waiting for the device to open its end until ctx ends.
func (p *Pipe) Inject(ctx context.Context, msg apppipe.Message) error {
	return p.w.Write(ctx, msg)
}

func (p *Pipe) Available() bool { return true }

// Path returns the FIFO path.
func (p *Pipe) Path() string { return p.w.Path() }

// Target receives messages in process. *closure.Device implements it.
type Target interface {
	Inject(msg apppipe.Message) error
}

// Direct hands messages to a device running in the same process.
type Direct struct {
	target Target
}

// NewDirect creates an injector for t.
func NewDirect(t Target) *Direct {
	return &Direct{target: t}
}

func (d *Direct) Inject(ctx context.Context, msg apppipe.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.target.Inject(msg)
}

func (d *Direct) Available() bool { return d.target != nil }

var (
	_ StateInjector = Noop{}
	_ StateInjector = (*Pipe)(nil)
	_ StateInjector = (*Direct)(nil)
)
