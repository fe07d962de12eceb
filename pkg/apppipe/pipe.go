package apppipe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPath returns the pipe path for a device process.
func DefaultPath(pid int) string {
	return fmt.Sprintf("/tmp/chip_closure_fifo_%d", pid)
}

// HandlerFunc receives decoded messages.
type HandlerFunc func(Message) error

// Listener owns a FIFO and feeds each line to a handler.
type Listener struct {
	path    string
	handler HandlerFunc
	logger  *slog.Logger
	file    *os.File
	created bool
}

// Listen creates the FIFO at path when absent and opens it for reading.
// The FIFO is opened read-write so the stream stays open between writers.
func Listen(path string, handler HandlerFunc, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	created := false
	if err := unix.Mkfifo(path, 0o600); err != nil {
		if !errors.Is(err, unix.EEXIST) {
			return nil, fmt.Errorf("mkfifo %s: %w", path, err)
		}
	} else {
		created = true
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		return nil, fmt.Errorf("%s exists and is not a named pipe", path)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if created {
			os.Remove(path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Listener{path: path, handler: handler, logger: logger, file: f, created: created}, nil
}

// Path returns the FIFO path.
func (l *Listener) Path() string { return l.path }

// Serve reads messages until ctx is cancelled or the pipe is closed.
// Malformed lines and unknown names are logged and skipped.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.file.Close() })
	defer stop()

	scanner := bufio.NewScanner(l.file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := Decode(line)
		if err != nil {
			l.logger.Warn("app pipe message ignored", "error", err, "raw", string(line))
			continue
		}
		l.logger.Debug("app pipe message", "message", msg.String())
		if err := l.handler(msg); err != nil {
			l.logger.Warn("app pipe message rejected", "message", msg.String(), "error", err)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// Close closes the FIFO and removes it when Listen created it.
func (l *Listener) Close() error {
	err := l.file.Close()
	if errors.Is(err, os.ErrClosed) {
		err = nil
	}
	if l.created {
		if rmErr := os.Remove(l.path); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

// Writer sends messages into a device's FIFO.
type Writer struct {
	path  string
	retry time.Duration
}

// NewWriter creates a writer for the FIFO at path.
func NewWriter(path string) *Writer {
	return &Writer{path: path, retry: 50 * time.Millisecond}
}

// Path returns the FIFO path.
func (w *Writer) Path() string { return w.path }

// Write delivers one message. It retries while the FIFO is missing or has no
// reader, until ctx ends.
func (w *Writer) Write(ctx context.Context, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	f, err := w.open(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return nil
}

func (w *Writer) open(ctx context.Context) (io.WriteCloser, error) {
	ticker := time.NewTicker(w.retry)
	defer ticker.Stop()

	for {
		fd, err := unix.Open(w.path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err == nil {
			return os.NewFile(uintptr(fd), w.path), nil
		}
		if !errors.Is(err, unix.ENXIO) && !errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("open %s: %w", w.path, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("open %s: %w", w.path, ctx.Err())
		case <-ticker.C:
		}
	}
}
