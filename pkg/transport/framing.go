package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/clopstate/clop-go/pkg/log"
)

const (
	// LengthPrefixSize is the size of the big-endian length prefix.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize bounds a single frame payload (64 KB).
	DefaultMaxMessageSize = 65536

	// MaxLogFrameDataSize caps the payload bytes copied into a frame log event.
	MaxLogFrameDataSize = 4096
)

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// frameTap emits transport-layer log events for frames crossing a connection.
type frameTap struct {
	logger log.Logger
	connID string
	role   log.Role
	remote string
}

func (t *frameTap) emit(data []byte, dir log.Direction) {
	if t == nil || t.logger == nil {
		return
	}
	logged := data
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		logged = data[:MaxLogFrameDataSize]
		truncated = true
	}
	t.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		LocalRole:    t.role,
		RemoteAddr:   t.remote,
		Frame: &log.FrameEvent{
			Size:      FrameSize(len(data)),
			Data:      logged,
			Truncated: truncated,
		},
	})
}

// FrameWriter writes length-prefixed frames. WriteFrame is safe for
// concurrent use.
type FrameWriter struct {
	mu      sync.Mutex
	w       io.Writer
	maxSize uint32
	tap     *frameTap
}

// NewFrameWriter creates a frame writer. A zero maxSize selects
// DefaultMaxMessageSize.
func NewFrameWriter(w io.Writer, maxSize uint32) *FrameWriter {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &FrameWriter{w: w, maxSize: maxSize}
}

// WriteFrame writes the prefix and payload as one buffer.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint32(len(data)) > fw.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), fw.maxSize)
	}

	buf := make([]byte, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[LengthPrefixSize:], data)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	fw.tap.emit(data, log.DirectionOut)
	return nil
}

// FrameReader reads length-prefixed frames. It is not safe for concurrent use.
type FrameReader struct {
	r       io.Reader
	maxSize uint32
	prefix  [LengthPrefixSize]byte
	tap     *frameTap
}

// NewFrameReader creates a frame reader. A zero maxSize selects
// DefaultMaxMessageSize.
func NewFrameReader(r io.Reader, maxSize uint32) *FrameReader {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &FrameReader{r: r, maxSize: maxSize}
}

// ReadFrame returns the next frame payload. A clean close before any prefix
// byte returns io.EOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(fr.prefix[:])
	if length == 0 {
		return nil, ErrMessageEmpty
	}
	if length > fr.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, fr.maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	fr.tap.emit(payload, log.DirectionIn)
	return payload, nil
}

// Framer pairs a reader and writer over one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer over rw.
func NewFramer(rw io.ReadWriter, maxSize uint32) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw, maxSize),
		FrameWriter: NewFrameWriter(rw, maxSize),
	}
}

// SetLogger attaches a protocol logger to both directions. A nil logger
// disables frame events.
func (f *Framer) SetLogger(logger log.Logger, connID string, role log.Role, remote string) {
	var tap *frameTap
	if logger != nil {
		tap = &frameTap{logger: logger, connID: connID, role: role, remote: remote}
	}
	f.FrameReader.tap = tap
	f.FrameWriter.tap = tap
}

// FrameSize returns the on-wire size of a payload including its prefix.
func FrameSize(payloadSize int) int {
	return LengthPrefixSize + payloadSize
}
