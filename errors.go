package transactor

import "github.com/wagiedev/transactor-go/internal/errors"

// Re-export error types from internal package

// TransportError indicates the inbound or outbound stream failed.
type TransportError = errors.TransportError

// RejectedError describes an inbound message that was not a valid envelope.
type RejectedError = errors.RejectedError

// HandlerError indicates the request handler failed while serving a request.
type HandlerError = errors.HandlerError

// ProcessError indicates a spawned peer process exited abnormally.
type ProcessError = errors.ProcessError

// DecodeError indicates a frame could not be decoded.
type DecodeError = errors.DecodeError

// TransactorError is the base interface for all transactor errors.
type TransactorError = errors.TransactorError

// Re-export sentinel errors from internal package.
var (
	// ErrStopped is returned by Await when the loop exits before the response arrives.
	ErrStopped = errors.ErrStopped

	// ErrClosed indicates the transactor has been closed and cannot be reused.
	ErrClosed = errors.ErrClosed

	// ErrNotStarted indicates the transactor has never been started.
	ErrNotStarted = errors.ErrNotStarted

	// ErrStillRunning indicates Close was called while the loop was running.
	ErrStillRunning = errors.ErrStillRunning

	// ErrInboundClosed indicates the peer closed its stream without sending stop.
	ErrInboundClosed = errors.ErrInboundClosed

	// ErrFutureConsumed indicates a Future was awaited more than once.
	ErrFutureConsumed = errors.ErrFutureConsumed

	// ErrUnknownID indicates a response arrived for an id with no pending request.
	ErrUnknownID = errors.ErrUnknownID
)
