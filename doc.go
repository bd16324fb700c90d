// Package transactor provides a duplex request/response channel between two
// peers, typically a parent process and a child talking over the child's
// standard input and output.
//
// Either side may send requests at any time. Each request carries an id, and
// the peer answers with a response carrying the same id, so responses may
// arrive in any order. A background loop serves the peer's requests through
// a Handler and routes the peer's responses to the Future returned by Send.
//
// # Wire Format
//
// Every frame is one object:
//
//	{"op": "request",  "id": 1, "body": {...}}
//	{"op": "response", "id": 1, "body": {...}}
//	{"op": "stop"}
//
// The default codec writes one JSON object per line. CBORCodec frames the
// same objects as concatenated CBOR items.
//
// # Basic Usage
//
//	t, err := transactor.New(os.Stdin, os.Stdout, transactor.Echo())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := t.Call(ctx, map[string]any{"x": 1})
//
//	t.Stop()
//	_ = t.Close()
//
// For a child process, StartProcess spawns it and wires its stdio:
//
//	t, err := transactor.StartProcess(ctx, "echopeer", nil, transactor.Echo(),
//	    transactor.WithStderr(func(line string) { log.Print(line) }),
//	)
//
// # Lifecycle
//
// The loop exits cleanly when Stop is called, when the context given to
// Start is cancelled, or when the peer sends stop (see SendStop). It exits
// with a failure when a stream fails, when the inbound stream ends without a
// stop frame, or when the Handler returns an error. HasExited and Wait
// report the failure. Requests still pending when the loop exits fail with
// an error matching ErrStopped.
//
// Malformed frames and responses for unknown ids do not end the loop; they
// are logged, counted, and passed to the WithAnomalyHandler callback.
//
// # Logging
//
// For detailed operation tracking, use WithLogger:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
//	t, err := transactor.New(in, out, h, transactor.WithLogger(logger))
//
// Every run is logged with its own run_id.
//
// # Error Handling
//
// Failures are typed:
//
//	if err := t.Wait(ctx); err != nil {
//	    if handlerErr, ok := errors.AsType[*transactor.HandlerError](err); ok {
//	        log.Printf("request %d failed: %v", handlerErr.ID, handlerErr.Err)
//	    }
//	    if errors.Is(err, transactor.ErrInboundClosed) {
//	        log.Print("peer went away")
//	    }
//	}
package transactor
