package interaction

import (
	"time"

	"github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/wire"
)

// messageLog turns requests and responses into wire-layer protocol events.
// A nil *messageLog drops everything.
type messageLog struct {
	logger log.Logger
	connID string
	role   log.Role
}

func newMessageLog(l log.Logger, connID string, role log.Role) *messageLog {
	if l == nil {
		return nil
	}
	return &messageLog{logger: l, connID: connID, role: role}
}

func (m *messageLog) request(req *wire.Request, dir log.Direction) {
	if m == nil {
		return
	}
	op := req.Operation
	ep := req.EndpointID
	cl := req.ClusterID
	ev := &log.MessageEvent{
		Type:       log.MessageTypeRequest,
		MessageID:  req.MessageID,
		Operation:  &op,
		EndpointID: &ep,
		ClusterID:  &cl,
		Payload:    req.Payload,
	}
	switch op {
	case wire.OpRead:
		if p, err := wire.ExtractReadPayload(req.Payload); err == nil {
			ev.ElementID = &p.AttributeID
		}
	case wire.OpInvoke:
		if p, err := wire.ExtractInvokePayload(req.Payload); err == nil {
			ev.ElementID = &p.CommandID
		}
	}
	m.emit(dir, ev)
}

func (m *messageLog) response(resp *wire.Response, dir log.Direction, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := resp.Status
	ev := &log.MessageEvent{
		Type:      log.MessageTypeResponse,
		MessageID: resp.MessageID,
		Status:    &status,
		Payload:   resp.Payload,
	}
	if elapsed > 0 {
		ev.ProcessingTime = &elapsed
	}
	m.emit(dir, ev)
}

func (m *messageLog) emit(dir log.Direction, ev *log.MessageEvent) {
	m.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: m.connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    m.role,
		Message:      ev,
	})
}
