package closure

import (
	"context"

	"github.com/clopstate/clop-go/pkg/interaction"
	"github.com/clopstate/clop-go/pkg/transport"
)

// Listen starts a TCP server on address that answers requests with d.
// Each connection is served sequentially in its read loop.
func Listen(ctx context.Context, address string, d *Device) (*transport.Server, error) {
	is := interaction.NewServer(d, interaction.WithProtocolLogger(d.cfg.ProtocolLogger))
	logger := d.cfg.Logger

	server := transport.NewServer(transport.ServerConfig{
		Address: address,
		Logger:  d.cfg.ProtocolLogger,
		OnConnect: func(conn *transport.ServerConn) {
			logger.Info("harness connected", "conn", conn.ConnID(), "remote", conn.RemoteAddr())
		},
		OnDisconnect: func(conn *transport.ServerConn) {
			logger.Info("harness disconnected", "conn", conn.ConnID())
		},
		OnMessage: func(conn *transport.ServerConn, msg []byte) {
			resp, err := is.HandleFrame(ctx, conn.ConnID(), msg)
			if err != nil {
				logger.Warn("encode response", "conn", conn.ConnID(), "error", err)
				return
			}
			if err := conn.Send(resp); err != nil {
				logger.Warn("send response", "conn", conn.ConnID(), "error", err)
			}
		},
		OnError: func(conn *transport.ServerConn, err error) {
			if conn != nil {
				logger.Warn("connection error", "conn", conn.ConnID(), "error", err)
				return
			}
			logger.Warn("server error", "error", err)
		},
	})
	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	return server, nil
}
