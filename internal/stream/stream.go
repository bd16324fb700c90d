// Package stream couples a frame codec to one inbound and one outbound byte
// stream.
//
// Inbound frames are decoded by a single pump goroutine that lives as long as
// the stream and hands each frame over an unbuffered channel, so a frame is
// only taken off the wire when a consumer is ready for it. Outbound frames
// are encoded and written under one lock so that concurrent writers never
// interleave partial frames.
package stream

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wagiedev/transactor-go/internal/codec"
	"github.com/wagiedev/transactor-go/internal/errors"
)

// writeAbandonGrace bounds how long Write waits for a blocked write goroutine
// after its context ends.
const writeAbandonGrace = time.Second

// flusher is implemented by buffered writers such as *bufio.Writer.
type flusher interface {
	Flush() error
}

// Undecodable stands in for an inbound frame that was consumed but could not
// be decoded. It is delivered on Frames in place of the frame.
type Undecodable struct {
	Err error
}

// Stream is safe for concurrent use by one consumer of Frames and any number
// of writers.
type Stream struct {
	log   *slog.Logger
	codec codec.Codec

	in io.Reader

	// Inbound pump
	pumpOnce sync.Once
	frames   chan any
	done     chan struct{}
	doneOnce sync.Once
	errMu    sync.Mutex
	readErr  error

	// Outbound framing; mu protects everything below
	mu       sync.Mutex
	out      io.Writer
	buf      bytes.Buffer
	enc      codec.Encoder
	writeErr error
}

// New creates a stream over in and out using c for framing.
// Nothing is read from in until Frames is first called.
func New(log *slog.Logger, c codec.Codec, in io.Reader, out io.Writer) *Stream {
	s := &Stream{
		log:    log.With("component", "stream", "codec", c.Name()),
		codec:  c,
		in:     in,
		out:    out,
		frames: make(chan any),
		done:   make(chan struct{}),
	}

	s.enc = c.NewEncoder(&s.buf)

	return s
}

// Frames returns the channel of decoded inbound frames, starting the pump on
// first use.
//
// A frame that was read whole but could not be decoded arrives as an
// Undecodable value. The channel is closed when the inbound stream ends or
// fails; Err then reports why.
func (s *Stream) Frames() <-chan any {
	s.pumpOnce.Do(func() {
		go s.pump()
	})

	return s.frames
}

// Err returns the terminal inbound error once Frames has been closed.
//
// A clean end of input is reported as ErrInboundClosed; anything else is a
// *errors.TransportError.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	return s.readErr
}

func (s *Stream) pump() {
	defer close(s.frames)
	defer s.log.Debug("Inbound pump stopped")

	dec := s.codec.NewDecoder(s.in)
	frameCount := 0

	for {
		v, err := dec.Decode()
		if err != nil {
			decodeErr, ok := stderrors.AsType[*errors.DecodeError](err)
			if !ok || !decodeErr.Recoverable {
				s.setReadErr(err)

				return
			}

			s.log.Debug("Skipping undecodable frame", "error", err)

			v = Undecodable{Err: err}
		}

		frameCount++
		s.log.Debug("Received frame", "frame_count", frameCount)

		select {
		case s.frames <- v:
		case <-s.done:
			s.errMu.Lock()
			s.readErr = errors.ErrInboundClosed
			s.errMu.Unlock()

			return
		}
	}
}

func (s *Stream) setReadErr(err error) {
	if stderrors.Is(err, io.EOF) {
		s.log.Debug("Inbound stream reached end of input")

		err = errors.ErrInboundClosed
	} else {
		s.log.Error("Inbound stream failed", "error", err)

		err = &errors.TransportError{Op: "read", Err: err}
	}

	s.errMu.Lock()
	s.readErr = err
	s.errMu.Unlock()
}

// Write encodes v as one frame and writes it to the outbound stream.
//
// Writes are serialized. If ctx ends while a write is blocked, the outbound
// stream is closed (when it is an io.Closer) and the stream refuses further
// writes, since a partial frame may already be on the wire.
func (s *Stream) Write(ctx context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.buf.Reset()

	if err := s.enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s frame: %w", s.codec.Name(), err)
	}

	data := s.buf.Bytes()

	s.log.Debug("Writing frame", "data_len", len(data))

	done := make(chan error, 1)

	go func() {
		done <- s.writeFrame(data)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.writeErr = &errors.TransportError{Op: "write", Err: err}
			s.log.Error("Failed to write frame", "error", err)

			return s.writeErr
		}

		return nil

	case <-ctx.Done():
		s.log.Debug("Context cancelled during write, closing outbound stream")

		s.writeErr = &errors.TransportError{Op: "write", Err: ctx.Err()}

		if c, ok := s.out.(io.Closer); ok {
			_ = c.Close()
		}

		select {
		case <-done:
		case <-time.After(writeAbandonGrace):
			s.log.Warn("Write goroutine did not exit after close, potential leak")
		}

		return ctx.Err()
	}
}

func (s *Stream) writeFrame(data []byte) error {
	if _, err := s.out.Write(data); err != nil {
		return err
	}

	if f, ok := s.out.(flusher); ok {
		return f.Flush()
	}

	return nil
}

// Close stops the inbound pump at the next frame boundary.
//
// A pump blocked inside a read stays blocked until the inbound stream
// itself is closed by its owner.
func (s *Stream) Close() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}
