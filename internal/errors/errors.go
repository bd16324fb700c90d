package errors

import (
	"errors"
	"fmt"
)

// TransactorError is the base interface for all transactor errors.
type TransactorError interface {
	error
	IsTransactorError() bool
}

// Compile-time verification that all error types implement TransactorError.
var (
	_ TransactorError = (*TransportError)(nil)
	_ TransactorError = (*RejectedError)(nil)
	_ TransactorError = (*HandlerError)(nil)
	_ TransactorError = (*ProcessError)(nil)
	_ TransactorError = (*DecodeError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrStopped indicates the background loop exited cleanly while a request
	// was still waiting for its response.
	ErrStopped = errors.New("transactor stopped")

	// ErrClosed indicates the transactor has been closed and cannot be reused.
	ErrClosed = errors.New("transactor closed")

	// ErrNotStarted indicates the background loop has never been started.
	ErrNotStarted = errors.New("transactor not started")

	// ErrStillRunning indicates Close was called before Stop.
	ErrStillRunning = errors.New("transactor still running: call Stop before Close")

	// ErrInboundClosed indicates the inbound stream ended without a stop message.
	ErrInboundClosed = errors.New("inbound stream closed")

	// ErrFutureConsumed indicates a future was awaited more than once.
	ErrFutureConsumed = errors.New("future already consumed")

	// ErrUnknownID indicates a response arrived for an id with no pending request.
	ErrUnknownID = errors.New("no pending request for id")
)

// TransportError indicates the inbound or outbound stream failed.
// It is fatal to the run that observed it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransactorError implements TransactorError.
func (e *TransportError) IsTransactorError() bool { return true }

// RejectedError indicates an inbound message was malformed.
// Rejected messages are reported and skipped; they never end the run.
type RejectedError struct {
	Reason string
	Err    error
	Data   any
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rejected message: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("rejected message: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// IsTransactorError implements TransactorError.
func (e *RejectedError) IsTransactorError() bool { return true }

// HandlerError indicates the request handler failed while serving a request.
type HandlerError struct {
	ID  uint64
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed for request %d: %v", e.ID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsTransactorError implements TransactorError.
func (e *HandlerError) IsTransactorError() bool { return true }

// ProcessError indicates a spawned peer process failed.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("peer process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("peer process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsTransactorError implements TransactorError.
func (e *ProcessError) IsTransactorError() bool { return true }

// DecodeError indicates a frame could not be decoded from the inbound stream.
//
// Unless Recoverable is set the decoder state is lost after such an error,
// so it is fatal to the stream. A recoverable error means the offending
// frame was consumed whole and the next frame can still be read.
type DecodeError struct {
	Codec       string
	Err         error
	Recoverable bool
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s frame: %v", e.Codec, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTransactorError implements TransactorError.
func (e *DecodeError) IsTransactorError() bool { return true }
