package transactor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/transactor-go/internal/config"
	"github.com/wagiedev/transactor-go/internal/correlator"
	"github.com/wagiedev/transactor-go/internal/errors"
	"github.com/wagiedev/transactor-go/internal/message"
	"github.com/wagiedev/transactor-go/internal/metrics"
	"github.com/wagiedev/transactor-go/internal/stream"
	"github.com/wagiedev/transactor-go/internal/wake"
)

// Future is the caller's handle on one outbound request.
type Future = correlator.Future

// Transactor exchanges requests and responses with a peer over one inbound
// and one outbound stream.
//
// A background loop, started with Start, reads the inbound stream. It serves
// each peer request through the Handler and writes the response, resolves
// the Future of each peer response, and exits when the peer sends stop, when
// Stop is called, or when a stream fails. Send may be called from any
// goroutine at any time before Close.
//
// A Transactor can be started again after it stops. It must be stopped
// before Close.
type Transactor struct {
	log     *slog.Logger
	options *config.Options
	handler Handler
	schema  *jsonschema.Resolved

	stream     *stream.Stream
	correlator *correlator.Correlator
	wake       *wake.Channel
	metrics    *metrics.Metrics

	// process is set by StartProcess and closed by Close.
	process io.Closer

	closed atomic.Bool

	// runMu serializes Start, Stop and Close. It guards active, the run
	// that has not been joined yet.
	runMu  sync.Mutex
	active *run

	// mu guards current, the most recent run. The loop takes it on exit, so
	// Stop must never hold it while joining.
	mu      sync.Mutex
	current *run
}

// run is one execution of the background loop.
type run struct {
	group     *errgroup.Group
	stopWatch func() bool

	// exited is closed when the loop returns. failure is written before
	// that and never after.
	exited  chan struct{}
	failure error
}

func (r *run) wait(ctx context.Context) error {
	select {
	case <-r.exited:
		return r.failure
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *run) hasExited() bool {
	select {
	case <-r.exited:
		return true
	default:
		return false
	}
}

// New creates a transactor that reads frames from in and writes frames to
// out. Nothing is read until Start.
//
// If out implements io.Closer it is closed when a write is abandoned because
// its context ended.
func New(in io.Reader, out io.Writer, h Handler, opts ...Option) (*Transactor, error) {
	return newTransactor(in, out, h, applyOptions(opts))
}

func newTransactor(in io.Reader, out io.Writer, h Handler, options *Options) (*Transactor, error) {
	if h == nil {
		return nil, stderrors.New("transactor: handler is required")
	}

	options.Defaults()

	t := &Transactor{
		log:        options.Logger.With("component", "transactor"),
		options:    options,
		handler:    h,
		correlator: correlator.New(),
		wake:       wake.New(),
	}

	if options.RequestSchema != nil {
		resolved, err := options.RequestSchema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve request schema: %w", err)
		}

		t.schema = resolved
	}

	t.stream = stream.New(options.Logger, options.Codec, in, out)
	t.metrics = metrics.New(options.Registerer, options.MetricsLabels, func() float64 {
		return float64(t.correlator.Len())
	})

	return t, nil
}

// Start launches the background loop.
//
// A loop that is still running is stopped and joined first. ctx is passed to
// the Handler; cancelling it stops the loop the same way Stop does, without
// the join.
func (t *Transactor) Start(ctx context.Context) error {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if t.closed.Load() {
		return ErrClosed
	}

	t.stopLocked()
	t.wake.Arm()

	log := t.log.With("run_id", ulid.Make().String())
	r := &run{
		group:  &errgroup.Group{},
		exited: make(chan struct{}),
	}

	t.mu.Lock()
	t.current = r
	t.mu.Unlock()

	t.active = r
	r.stopWatch = context.AfterFunc(ctx, func() {
		t.signal(r)
	})
	r.group.Go(func() error {
		return t.runLoop(ctx, log, r)
	})

	log.Info("Transactor started", "codec", t.options.Codec.Name())

	return nil
}

// Stop signals the background loop and waits for it to exit.
//
// A request already being served is finished first. Stop returns
// immediately if the loop is not running, and is safe to call multiple
// times.
func (t *Transactor) Stop() {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	t.stopLocked()
}

func (t *Transactor) stopLocked() {
	r := t.active
	if r == nil {
		return
	}

	t.log.Debug("Stopping transactor")

	t.wake.Signal()

	// The run's failure is already recorded for HasExited and Wait.
	_ = r.group.Wait()

	r.stopWatch()
	t.active = nil

	t.log.Debug("Transactor stopped")
}

// signal wakes the loop of r when r's context ends. A run that has exited,
// or been replaced, is not signalled, so the wake cannot leak into a later
// run.
func (t *Transactor) signal(r *run) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != r || r.hasExited() {
		return
	}

	t.wake.Signal()
}

func (t *Transactor) currentRun() *run {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.current
}

// HasExited reports whether the most recent run has exited.
//
// If the run failed, HasExited returns true together with the failure.
// Before the first Start it returns ErrNotStarted.
func (t *Transactor) HasExited() (bool, error) {
	r := t.currentRun()
	if r == nil {
		return false, ErrNotStarted
	}

	if !r.hasExited() {
		return false, nil
	}

	return true, r.failure
}

// Wait blocks until the most recent run exits or ctx ends.
//
// It returns the run's failure, nil after a clean exit, ctx.Err() if ctx
// ends first, and ErrNotStarted before the first Start. The run is the one
// current when Wait is called; a later Start does not change its result.
func (t *Transactor) Wait(ctx context.Context) error {
	r := t.currentRun()
	if r == nil {
		return ErrNotStarted
	}

	return r.wait(ctx)
}

// Done returns a channel that is closed when the current run exits.
// Before the first Start it returns nil.
func (t *Transactor) Done() <-chan struct{} {
	r := t.currentRun()
	if r == nil {
		return nil
	}

	return r.exited
}

// Pending returns the number of requests still waiting for a response.
func (t *Transactor) Pending() int {
	return t.correlator.Len()
}

// Send writes a request carrying body and returns the Future for its
// response.
//
// Send does not require the loop to be running, but only a running loop
// resolves Futures. If the write fails the request is forgotten and the
// error is returned.
func (t *Transactor) Send(ctx context.Context, body any) (*Future, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}

	f := t.correlator.Allocate()

	// Close marks the transactor closed before failing pending requests, so
	// a request allocated after that is caught here.
	if t.closed.Load() {
		t.correlator.Forget(f.ID())

		return nil, ErrClosed
	}

	t.log.Debug("Sending request", "request_id", f.ID())

	if err := t.stream.Write(ctx, message.NewRequest(f.ID(), body)); err != nil {
		t.correlator.Forget(f.ID())
		t.log.Error("Failed to send request", "request_id", f.ID(), "error", err)

		return nil, fmt.Errorf("send request: %w", err)
	}

	t.metrics.FramesTotal.WithLabelValues(metrics.DirectionOut, string(message.OpRequest)).Inc()

	return f, nil
}

// Call sends a request and waits for its response.
func (t *Transactor) Call(ctx context.Context, body any) (any, error) {
	f, err := t.Send(ctx, body)
	if err != nil {
		return nil, err
	}

	return f.Await(ctx)
}

// SendStop asks the peer to terminate its background loop.
func (t *Transactor) SendStop(ctx context.Context) error {
	if t.closed.Load() {
		return ErrClosed
	}

	if err := t.stream.Write(ctx, message.NewStop()); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}

	t.metrics.FramesTotal.WithLabelValues(metrics.DirectionOut, string(message.OpStop)).Inc()
	t.log.Debug("Sent stop to peer")

	return nil
}

// Close releases the transactor. It fails every request still pending with
// ErrClosed and, for a transactor from StartProcess, terminates the peer
// process and returns its *ProcessError if it had failed.
//
// Close returns ErrStillRunning, and releases nothing, while the loop runs.
// A loop that already exited on its own is joined. Close is safe to call
// multiple times.
func (t *Transactor) Close() error {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if t.closed.Load() {
		return nil
	}

	if r := t.currentRun(); r != nil && !r.hasExited() {
		return ErrStillRunning
	}

	t.stopLocked()
	t.closed.Store(true)

	if n := t.correlator.FailAll(ErrClosed); n > 0 {
		t.log.Debug("Failed pending requests on close", "count", n)
	}

	t.stream.Close()
	t.wake.Close()

	if t.process != nil {
		if err := t.process.Close(); err != nil {
			return fmt.Errorf("close peer process: %w", err)
		}
	}

	t.log.Debug("Transactor closed")

	return nil
}

// runLoop runs one loop to completion and publishes how it ended.
func (t *Transactor) runLoop(ctx context.Context, log *slog.Logger, r *run) error {
	err := t.loop(ctx, log)

	outcome := metrics.OutcomeClean
	pendingErr := ErrStopped

	if err != nil {
		outcome = metrics.OutcomeFailed
		pendingErr = fmt.Errorf("%w: %w", ErrStopped, err)

		log.Error("Transactor loop failed", "error", err)
	} else {
		log.Info("Transactor loop exited")
	}

	if n := t.correlator.FailAll(pendingErr); n > 0 {
		log.Debug("Failed pending requests", "count", n)
	}

	t.metrics.RunsTotal.WithLabelValues(outcome).Inc()

	t.mu.Lock()
	r.failure = err
	close(r.exited)
	t.mu.Unlock()

	return err
}

// loop waits on the wake channel and the inbound stream until one of them
// ends the run. A pending wake signal always wins over a ready frame.
func (t *Transactor) loop(ctx context.Context, log *slog.Logger) error {
	frames := t.stream.Frames()

	for {
		select {
		case <-t.wake.C():
			log.Debug("Wake signal received")

			return nil
		default:
		}

		select {
		case <-t.wake.C():
			log.Debug("Wake signal received")

			return nil

		case frame, ok := <-frames:
			if !ok {
				return t.stream.Err()
			}

			stop, err := t.dispatch(ctx, log, frame)
			if err != nil {
				return err
			}

			if stop {
				return nil
			}
		}
	}
}

// dispatch handles one inbound frame. It reports whether the peer asked the
// loop to stop.
func (t *Transactor) dispatch(ctx context.Context, log *slog.Logger, frame any) (bool, error) {
	if u, ok := frame.(stream.Undecodable); ok {
		t.anomaly(log, metrics.AnomalyMalformed, &errors.RejectedError{
			Reason: "frame could not be decoded",
			Err:    u.Err,
		})

		return false, nil
	}

	d, err := message.Parse(frame)
	if err != nil {
		t.anomaly(log, metrics.AnomalyMalformed, err)

		return false, nil
	}

	t.metrics.FramesTotal.WithLabelValues(metrics.DirectionIn, string(d.Op)).Inc()

	switch d.Op {
	case message.OpRequest:
		return false, t.serve(ctx, log, d, frame)

	case message.OpResponse:
		if !t.correlator.Resolve(d.ID, d.Body) {
			t.anomaly(log, metrics.AnomalyUnknownID, fmt.Errorf("%w %d", ErrUnknownID, d.ID))

			return false, nil
		}

		t.metrics.ResponsesResolvedTotal.Inc()
		log.Debug("Resolved request", "request_id", d.ID)

		return false, nil

	case message.OpStop:
		log.Info("Peer requested stop")

		return true, nil

	default:
		return false, nil
	}
}

// serve runs the handler for one request and writes its response.
func (t *Transactor) serve(ctx context.Context, log *slog.Logger, d *message.Decision, frame any) error {
	if t.schema != nil {
		if err := t.validate(d.Body); err != nil {
			t.anomaly(log, metrics.AnomalySchema, &errors.RejectedError{
				Reason: "request body does not match schema",
				Err:    err,
				Data:   frame,
			})

			return nil
		}
	}

	log.Debug("Serving request", "request_id", d.ID)

	reply, err := t.handler.HandleRequest(ctx, d.Body)
	if err != nil {
		return &errors.HandlerError{ID: d.ID, Err: err}
	}

	// The response to a request already served is written even if ctx has
	// ended; the loop exits right after.
	if err := t.stream.Write(context.WithoutCancel(ctx), message.NewResponse(d.ID, reply)); err != nil {
		return err
	}

	t.metrics.FramesTotal.WithLabelValues(metrics.DirectionOut, string(message.OpResponse)).Inc()
	t.metrics.RequestsServedTotal.Inc()

	return nil
}

// validate checks body against the request schema. Bodies are normalized to
// the shape encoding/json produces so every codec validates the same way.
func (t *Transactor) validate(body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("unmarshal body: %w", err)
	}

	return t.schema.Validate(instance)
}

func (t *Transactor) anomaly(log *slog.Logger, kind string, err error) {
	log.Warn("Ignoring inbound message", "kind", kind, "error", err)

	t.metrics.AnomaliesTotal.WithLabelValues(kind).Inc()
	t.options.OnAnomaly(err)
}
