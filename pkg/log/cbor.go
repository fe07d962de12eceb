package log

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Capture files keep RFC 3339 timestamps with nanoseconds and accept
// duplicate keys from older writers.
var (
	encMode = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})
	decMode = mustDecMode(cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic("log: cbor encode options: " + err.Error())
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic("log: cbor decode options: " + err.Error())
	}
	return m
}

// EncodeEvent returns the CBOR form of event.
func EncodeEvent(event Event) ([]byte, error) { return encMode.Marshal(event) }

// DecodeEvent parses one CBOR-encoded event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := decMode.Unmarshal(data, &event)
	return event, err
}

// NewEncoder writes a stream of events to w.
func NewEncoder(w io.Writer) *cbor.Encoder { return encMode.NewEncoder(w) }

// NewDecoder reads a stream of events from r.
func NewDecoder(r io.Reader) *cbor.Decoder { return decMode.NewDecoder(r) }
