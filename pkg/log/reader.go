package log

import (
	"errors"
	"io"
	"iter"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events from a capture. Zero fields match everything; set
// fields must all match.
type Filter struct {
	ConnectionID string
	DeviceID     string
	TestCaseID   string

	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

func (f *Filter) matches(e Event) bool {
	switch {
	case f.ConnectionID != "" && e.ConnectionID != f.ConnectionID,
		f.DeviceID != "" && e.DeviceID != f.DeviceID,
		f.TestCaseID != "" && e.TestCaseID != f.TestCaseID,
		f.Direction != nil && e.Direction != *f.Direction,
		f.Layer != nil && e.Layer != *f.Layer,
		f.Category != nil && e.Category != *f.Category,
		f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader streams events from a capture file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens path and yields every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and yields the events filter matches.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.decoder.Decode(&e); err != nil {
			return Event{}, err
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

// Events yields the remaining matching events. A decode error is yielded
// once and ends the sequence.
func (r *Reader) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			e, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error { return r.file.Close() }

// ReadAll returns the events in path that filter matches. On a decode error
// it returns the events read so far.
func ReadAll(path string, filter Filter) ([]Event, error) {
	r, err := NewFilteredReader(path, filter)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var events []Event
	for e, err := range r.Events() {
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
	return events, nil
}
