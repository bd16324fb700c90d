// Package correlator matches outbound requests to their eventual responses.
//
// A Correlator hands out strictly increasing ids starting at 1 and keeps one
// pending slot per outstanding id. The background loop resolves slots as
// responses arrive; foreground goroutines wait on the Future returned with
// each slot. Responses are matched by id only, never by arrival order.
package correlator

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/wagiedev/transactor-go/internal/errors"
)

// result is what a slot is fulfilled with: a body or an error.
type result struct {
	body any
	err  error
}

// slot tracks one outstanding request.
type slot struct {
	id uint64
	// fulfilled receives exactly one result. It is buffered so that sending
	// under Correlator.mu never blocks.
	fulfilled chan result
}

// Correlator is safe for concurrent use.
type Correlator struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*slot
}

// New creates an empty Correlator whose first id is 1.
func New() *Correlator {
	return &Correlator{
		nextID:  1,
		pending: make(map[uint64]*slot, 16),
	}
}

// Allocate registers a new pending slot and returns the Future bound to it.
//
// Ids are never reused for the lifetime of the Correlator. Running out of the
// 64-bit id space is an unrecoverable internal fault and panics.
func (c *Correlator) Allocate() *Future {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nextID == math.MaxUint64 {
		panic("correlator: id space exhausted")
	}

	id := c.nextID
	c.nextID++

	s := &slot{id: id, fulfilled: make(chan result, 1)}
	c.pending[id] = s

	return &Future{id: id, slot: s, owner: c}
}

// Resolve fulfils the slot for id with body and removes it.
//
// Returns false if no request with that id is pending; the caller decides
// how to report that anomaly.
func (c *Correlator) Resolve(id uint64, body any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, exists := c.pending[id]
	if !exists {
		return false
	}

	delete(c.pending, id)
	s.fulfilled <- result{body: body}

	return true
}

// FailAll fulfils every pending slot with err and returns how many there were.
func (c *Correlator) FailAll(err error) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.pending)
	for id, s := range c.pending {
		delete(c.pending, id)
		s.fulfilled <- result{err: err}
	}

	return n
}

// Forget drops the slot for id without fulfilling it.
func (c *Correlator) Forget(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, id)
}

// Len returns the number of pending slots.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

// Future is the caller's handle on one pending slot.
type Future struct {
	id       uint64
	slot     *slot
	owner    *Correlator
	consumed atomic.Bool
}

// ID returns the correlation id carried by the outbound request.
func (f *Future) ID() uint64 {
	return f.id
}

// Await blocks until the slot is fulfilled or ctx ends, and consumes it.
//
// Await must not be called from the goroutine that resolves responses; that
// goroutine would be waiting on itself. If ctx ends first the slot is
// forgotten and a late response for this id becomes unknown.
// A Future can be awaited only once; later calls return ErrFutureConsumed.
func (f *Future) Await(ctx context.Context) (any, error) {
	if !f.consumed.CompareAndSwap(false, true) {
		return nil, errors.ErrFutureConsumed
	}

	select {
	case r := <-f.slot.fulfilled:
		return r.body, r.err

	case <-ctx.Done():
		f.owner.Forget(f.id)

		// Fulfilment happens under the same lock as Forget, so after Forget
		// the channel either holds the result or never will.
		select {
		case r := <-f.slot.fulfilled:
			return r.body, r.err
		default:
		}

		return nil, ctx.Err()
	}
}
