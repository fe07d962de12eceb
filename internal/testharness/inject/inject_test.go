package inject_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clopstate/clop-go/internal/testharness/inject"
	"github.com/clopstate/clop-go/pkg/apppipe"
	"github.com/clopstate/clop-go/pkg/closure"
	"github.com/clopstate/clop-go/pkg/wire"
)

func TestNoop(t *testing.T) {
	var inj inject.StateInjector = inject.Noop{}
	assert.False(t, inj.Available())
	assert.ErrorIs(t, inj.Inject(context.Background(), apppipe.SetupRequired(true)), inject.ErrUnavailable)
}

func TestDirectDrivesDevice(t *testing.T) {
	dev := closure.New(closure.Config{})
	t.Cleanup(func() { dev.Close() })
	inj := inject.NewDirect(dev)
	require.True(t, inj.Available())

	require.NoError(t, inj.Inject(context.Background(), apppipe.SetupRequired(true)))
	assert.Equal(t, wire.StateSetupRequired, dev.Snapshot().State)

	err := inj.Inject(context.Background(), apppipe.ErrorEvent("NoSuchError"))
	assert.ErrorIs(t, err, closure.ErrUnknownError)
}

func TestDirectHonoursContext(t *testing.T) {
	dev := closure.New(closure.Config{})
	t.Cleanup(func() { dev.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := inject.NewDirect(dev).Inject(ctx, apppipe.SetupRequired(true))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, wire.StateStopped, dev.Snapshot().State)
}

func TestPipeReachesListener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fifo")
	got := make(chan apppipe.Message, 1)
	l, err := apppipe.Listen(path, func(m apppipe.Message) error {
		got <- m
		return nil
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go l.Serve(ctx)

	inj := inject.NewPipe(path)
	assert.True(t, inj.Available())
	assert.Equal(t, path, inj.Path())
	require.NoError(t, inj.Inject(ctx, apppipe.Message{Name: apppipe.NameReset}))

	select {
	case m := <-got:
		assert.Equal(t, apppipe.NameReset, m.Name)
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}
