package transactor

import "context"

// Handler serves requests sent by the peer.
//
// HandleRequest runs on the background loop, one request at a time, in the
// order requests arrive. The returned value becomes the body of the response.
// Returning an error terminates the run; the error is reported as a
// *HandlerError by HasExited and Wait.
//
// ctx is the context given to Start.
type Handler interface {
	HandleRequest(ctx context.Context, body any) (any, error)
}

// HandlerFunc adapts an ordinary function to a Handler.
type HandlerFunc func(ctx context.Context, body any) (any, error)

// HandleRequest calls f(ctx, body).
func (f HandlerFunc) HandleRequest(ctx context.Context, body any) (any, error) {
	return f(ctx, body)
}

// Echo returns a Handler that answers each request with its own body.
func Echo() Handler {
	return HandlerFunc(func(_ context.Context, body any) (any, error) {
		return body, nil
	})
}
