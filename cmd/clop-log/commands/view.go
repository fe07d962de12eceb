// Package commands implements the clop-log CLI commands.
package commands

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/wire"
)

// ViewFilter selects the events shown by view.
type ViewFilter struct {
	Layer      *log.Layer
	Direction  *log.Direction
	Category   *log.Category
	TestCaseID string
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{
		Layer:      f.Layer,
		Direction:  f.Direction,
		Category:   f.Category,
		TestCaseID: f.TestCaseID,
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] ROLE DIRECTION LAYER Type [test case]
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)

	fmt.Fprintf(w, "%s [conn:%s] %-7s %-3s %s %s", ts, connID,
		event.LocalRole, event.Direction, event.Layer, eventType(event))
	if event.TestCaseID != "" {
		fmt.Fprintf(w, " (%s)", event.TestCaseID)
	}
	fmt.Fprintln(w)

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Injection != nil:
		formatInjectionDetails(w, event.Injection)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// eventType labels the payload an event carries.
func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil:
		return event.Message.Type.String()
	case event.StateChange != nil:
		return "State"
	case event.Injection != nil:
		return "Injection"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  MessageID: %d\n", msg.MessageID)

	switch msg.Type {
	case log.MessageTypeRequest:
		if msg.Operation != nil {
			fmt.Fprintf(w, "  Operation: %s\n", msg.Operation)
		}
		if msg.EndpointID != nil {
			fmt.Fprintf(w, "  Endpoint: %d", *msg.EndpointID)
			if msg.ClusterID != nil {
				fmt.Fprintf(w, "  Cluster: 0x%04x", *msg.ClusterID)
			}
			fmt.Fprintln(w)
		}
		if msg.ElementID != nil && msg.Operation != nil {
			fmt.Fprintf(w, "  %s\n", elementName(*msg.Operation, *msg.ElementID))
		}

	case log.MessageTypeResponse:
		if msg.Status != nil {
			fmt.Fprintf(w, "  Status: %s (0x%02x)\n", msg.Status, uint8(*msg.Status))
		}
		if msg.ProcessingTime != nil {
			fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*msg.ProcessingTime))
		}
	}

	if msg.Payload != nil {
		payloadJSON, err := json.Marshal(jsonSafe(msg.Payload))
		if err == nil {
			fmt.Fprintf(w, "  Payload: %s\n", payloadJSON)
		}
	}
}

// elementName renders the attribute or command a request addressed.
func elementName(op wire.Operation, id uint32) string {
	if op == wire.OpInvoke {
		return "Command: " + wire.CommandName(wire.CommandID(id))
	}
	return "Attribute: " + wire.AttributeName(wire.AttributeID(id))
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatInjectionDetails(w io.Writer, in *log.InjectionEvent) {
	fmt.Fprintf(w, "  Name: %s", in.Name)
	if in.Rejected {
		fmt.Fprint(w, " (rejected)")
	}
	fmt.Fprintln(w)
	if in.Raw != "" {
		fmt.Fprintf(w, "  Raw: %s\n", in.Raw)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// jsonSafe converts CBOR-decoded maps with non-string keys for encoding/json.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonSafe(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonSafe(val)
		}
		return out
	default:
		return v
	}
}

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "service":
		return log.LayerService, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or service)", s)
	}
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "injection":
		return log.CategoryInjection, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, injection, state, or error)", s)
	}
}

// RunView prints every matching event of the log at path.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
