// Package interaction implements the request/response exchange between the
// certification harness and a closure device.
//
// Two operations exist:
//
//   - Read: fetch one attribute value
//   - Invoke: execute a command, optionally as a timed request
//
// # Server Usage
//
// The Server decodes request frames and dispatches them to a Handler:
//
//	server := interaction.NewServer(device, interaction.WithProtocolLogger(plog))
//	resp := server.HandleFrame(ctx, frame)
//
// # Client Usage
//
// The Client correlates responses by message ID:
//
//	client := interaction.NewClient(conn)
//	go client.Run(conn)
//
//	state, err := client.Read(ctx, 1, wire.ClusterClosureOperationalState, wire.AttrOperationalState)
//	_, err = client.Invoke(ctx, 1, wire.ClusterClosureOperationalState, wire.CmdStop, nil)
//
// Any non-success status comes back as a *StatusError.
package interaction
