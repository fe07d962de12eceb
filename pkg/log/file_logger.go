package log

import (
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a .clog capture. Captures from several runs
// can share a file; clop-log tells them apart by connection and test case.
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	enc    *cbor.Encoder
	closed bool
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: f, enc: NewEncoder(f)}, nil
}

// Log appends event, stamping it if it has no timestamp. Write errors are
// dropped.
func (l *FileLogger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		_ = l.enc.Encode(event)
	}
}

// Close closes the file; later events are discarded.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
