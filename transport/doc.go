// Package transport carries object transfer commands over a websocket.
//
// It stands in for the BLE object transfer service: Server implements
// ots.Server and delivers parsed create and write events to an ots.Handler,
// and Client uploads an image to it.
//
//	srv := transport.NewServer(transport.WithServerLogger(logger))
//	if _, err := machine.Register(srv); err != nil {
//	    return err
//	}
//	http.Handle("/ots", srv)
//
// On the uploader side:
//
//	client, err := transport.Dial(ctx, "ws://localhost:8080/ots",
//	    transport.WithChunkSize(512),
//	    transport.WithRateLimit(100, 8),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	_, err = client.Upload(ctx, image)
//
// Failures reported by the server surface as *protocol.ProtocolError.
package transport
