package log

import (
	"context"
	"log/slog"
)

// SlogAdapter prints protocol events as debug records on a slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log emits one "protocol" record carrying the event's fields.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}
	if event.TestCaseID != "" {
		attrs = append(attrs, slog.String("test_case", event.TestCaseID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs, slog.Int("frame_size", event.Frame.Size), slog.Bool("truncated", event.Frame.Truncated))
	case event.Message != nil:
		attrs = append(attrs, messageAttrs(event.Message)...)
	case event.StateChange != nil:
		sc := event.StateChange
		attrs = append(attrs,
			slog.String("entity", sc.Entity.String()),
			slog.String("old_state", sc.OldState),
			slog.String("new_state", sc.NewState),
		)
		if sc.Reason != "" {
			attrs = append(attrs, slog.String("reason", sc.Reason))
		}
	case event.Injection != nil:
		attrs = append(attrs, slog.String("injection", event.Injection.Name), slog.Bool("rejected", event.Injection.Rejected))
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

func messageAttrs(m *MessageEvent) []slog.Attr {
	attrs := []slog.Attr{
		slog.Uint64("msg_id", uint64(m.MessageID)),
		slog.String("msg_type", m.Type.String()),
	}
	if m.Operation != nil {
		attrs = append(attrs, slog.String("operation", m.Operation.String()))
	}
	if m.EndpointID != nil {
		attrs = append(attrs, slog.Uint64("endpoint", uint64(*m.EndpointID)))
	}
	if m.ClusterID != nil {
		attrs = append(attrs, slog.Uint64("cluster", uint64(*m.ClusterID)))
	}
	if m.ElementID != nil {
		attrs = append(attrs, slog.Uint64("element", uint64(*m.ElementID)))
	}
	if m.Status != nil {
		attrs = append(attrs, slog.String("status", m.Status.String()))
	}
	if m.ProcessingTime != nil {
		attrs = append(attrs, slog.Duration("processing_time", *m.ProcessingTime))
	}
	return attrs
}

var _ Logger = (*SlogAdapter)(nil)
