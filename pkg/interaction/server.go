package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/wire"
)

// Handler answers decoded requests. A non-success status is sent back with
// the returned value as the error message when it is a string.
type Handler interface {
	HandleRead(ctx context.Context, endpoint uint16, cluster wire.ClusterID, attr wire.AttributeID) (any, wire.Status)
	HandleInvoke(ctx context.Context, endpoint uint16, cluster wire.ClusterID, inv *wire.InvokePayload) (any, wire.Status)
}

// Server decodes request frames, dispatches them to a Handler and encodes
// the responses.
type Server struct {
	handler Handler
	logger  log.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithProtocolLogger records requests and responses as wire-layer events.
func WithProtocolLogger(l log.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server that dispatches to h.
func NewServer(h Handler, opts ...ServerOption) *Server {
	s := &Server{handler: h}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleFrame decodes one request frame and returns the encoded response.
// Frames that do not decode as a request yield a response with message ID 0
// and status InvalidCommand.
func (s *Server) HandleFrame(ctx context.Context, connID string, frame []byte) ([]byte, error) {
	ml := newMessageLog(s.logger, connID, log.RoleDevice)

	req, err := wire.DecodeRequest(frame)
	if err != nil {
		resp := errorResponse(wire.ReservedMessageID, wire.StatusInvalidCommand, err.Error())
		ml.response(resp, log.DirectionOut, 0)
		return wire.EncodeResponse(resp)
	}
	ml.request(req, log.DirectionIn)

	start := time.Now()
	resp := s.HandleRequest(ctx, req)
	ml.response(resp, log.DirectionOut, time.Since(start))
	return wire.EncodeResponse(resp)
}

// HandleRequest processes a decoded request.
func (s *Server) HandleRequest(ctx context.Context, req *wire.Request) *wire.Response {
	if err := req.Validate(); err != nil {
		return errorResponse(req.MessageID, wire.StatusInvalidCommand, err.Error())
	}

	switch req.Operation {
	case wire.OpRead:
		p, err := wire.ExtractReadPayload(req.Payload)
		if err != nil {
			return errorResponse(req.MessageID, wire.StatusInvalidCommand, err.Error())
		}
		v, status := s.handler.HandleRead(ctx, req.EndpointID, req.ClusterID, p.AttributeID)
		return reply(req.MessageID, v, status)

	case wire.OpInvoke:
		p, err := wire.ExtractInvokePayload(req.Payload)
		if err != nil {
			return errorResponse(req.MessageID, wire.StatusInvalidCommand, err.Error())
		}
		v, status := s.handler.HandleInvoke(ctx, req.EndpointID, req.ClusterID, p)
		return reply(req.MessageID, v, status)

	default:
		return errorResponse(req.MessageID, wire.StatusInvalidCommand, fmt.Sprintf("unknown operation %d", req.Operation))
	}
}

func reply(msgID uint32, v any, status wire.Status) *wire.Response {
	if status.IsSuccess() {
		return &wire.Response{MessageID: msgID, Status: status, Payload: v}
	}
	msg, _ := v.(string)
	return errorResponse(msgID, status, msg)
}

func errorResponse(msgID uint32, status wire.Status, message string) *wire.Response {
	resp := &wire.Response{MessageID: msgID, Status: status}
	if message != "" {
		resp.Payload = &wire.ErrorPayload{Message: message}
	}
	return resp
}
