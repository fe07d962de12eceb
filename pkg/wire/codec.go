package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for protocol messages.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for protocol messages.
var decMode cbor.DecMode

// strictDecMode rejects unknown struct fields. Used for instance checks on
// structured attribute values.
var strictDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet, // last wins
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}

	decOpts.DupMapKey = cbor.DupMapKeyEnforcedAPF
	decOpts.ExtraReturnErrors = cbor.ExtraDecErrorUnknownField
	strictDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create strict CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// DecodeInto converts a generically decoded value (typically map[any]any)
// into a typed value by re-encoding it.
func DecodeInto(v any, out any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	return Unmarshal(data, out)
}

// ErrMissingField is returned by DecodeStrict when a required key is absent.
var ErrMissingField = errors.New("missing required field")

// DecodeStrict is like DecodeInto but fails when v carries keys that out
// does not declare, or lacks a key out declares without omitempty.
func DecodeStrict(v any, out any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	if err := strictDecMode.Unmarshal(data, out); err != nil {
		return err
	}
	return checkRequiredKeys(data, out)
}

func checkRequiredKeys(data []byte, out any) error {
	t := reflect.TypeOf(out)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var present map[uint64]cbor.RawMessage
	if err := decMode.Unmarshal(data, &present); err != nil {
		return err
	}
	for i := range t.NumField() {
		name, opts, _ := strings.Cut(t.Field(i).Tag.Get("cbor"), ",")
		if !strings.Contains(opts, "keyasint") || strings.Contains(opts, "omitempty") {
			continue
		}
		key, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		if _, ok := present[key]; !ok {
			return fmt.Errorf("%w: %s key %d", ErrMissingField, t.Name(), key)
		}
	}
	return nil
}

// EncodeRequest encodes a request message to CBOR bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(req)
}

// DecodeRequest decodes CBOR bytes into a request message.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response message to CBOR bytes.
func EncodeResponse(resp *Response) ([]byte, error) {
	return Marshal(resp)
}

// DecodeResponse decodes CBOR bytes into a response message.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// Equal compares two values by their CBOR encoding.
func Equal(a, b any) bool {
	dataA, errA := Marshal(a)
	dataB, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(dataA, dataB)
}
