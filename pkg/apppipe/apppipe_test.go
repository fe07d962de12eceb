package apppipe

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Message
		wantErr error
	}{
		{
			name: "setup required",
			line: `{"Name":"SetSetupRequired","SetupRequired":true}`,
			want: SetupRequired(true),
		},
		{
			name: "move to",
			line: `{"Name":"MoveTo","Tag":3,"Speed":1,"Latch":0}`,
			want: Message{Name: NameMoveTo, Tag: ptr(uint8(3)), Speed: ptr(uint8(1)), Latch: ptr(uint8(0))},
		},
		{
			name: "error event",
			line: `{"Name":"ErrorEvent","Error":"Blocked"}`,
			want: ErrorEvent("Blocked"),
		},
		{
			name:    "missing name",
			line:    `{"Error":"Blocked"}`,
			want:    Message{Error: "Blocked"},
			wantErr: ErrMissingName,
		},
		{
			name:    "unknown name",
			line:    `{"Name":"DownClose"}`,
			want:    Message{Name: "DownClose"},
			wantErr: ErrUnknownName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.line))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeBadJSON(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestEncodeIsOneLine(t *testing.T) {
	data, err := Encode(Message{Name: NameStopped})
	require.NoError(t, err)
	assert.Equal(t, "{\"Name\":\"Stopped\"}\n", string(data))

	_, err = Encode(Message{})
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestMessageString(t *testing.T) {
	assert.Equal(t, "SetSetupRequired SetupRequired=true", SetupRequired(true).String())
	assert.Equal(t, "ErrorEvent Error=Blocked", ErrorEvent("Blocked").String())
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "/tmp/chip_closure_fifo_4242", DefaultPath(4242))
}

func TestListenerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fifo")

	var mu sync.Mutex
	var got []Message
	l, err := Listen(path, func(m Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m)
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	w := NewWriter(path)
	wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer wcancel()
	require.NoError(t, w.Write(wctx, SetupRequired(true)))
	require.NoError(t, w.Write(wctx, ErrorEvent("Blocked")))

	// Garbage between valid messages is skipped.
	raw, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = raw.Write([]byte("garbage\n{\"Name\":\"Reset\"}\n"))
	require.NoError(t, err)
	raw.Close()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, NameSetSetupRequired, got[0].Name)
	assert.Equal(t, "Blocked", got[1].Error)
	assert.Equal(t, NameReset, got[2].Name)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	require.NoError(t, l.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestListenRejectsRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := Listen(path, func(Message) error { return nil }, nil)
	assert.Error(t, err)
}

func TestWriterGivesUpWithoutReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewWriter(path).Write(ctx, Message{Name: NameReset})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func ptr[T any](v T) *T { return &v }
