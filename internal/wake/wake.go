// Package wake provides the signal used to interrupt the background loop.
//
// A Channel is allocated once per transactor and reused across runs: Arm
// drains any stale signal before a run starts, Signal wakes the run that is
// currently waiting. It carries no data; its only meaning is "stop now".
package wake

import "sync"

// Channel is a one-slot, always-open wake signal. It is safe for concurrent use.
type Channel struct {
	mu     sync.Mutex
	c      chan struct{}
	closed bool
}

// New allocates a wake channel.
func New() *Channel {
	return &Channel{c: make(chan struct{}, 1)}
}

// C returns the channel a waiting loop selects on.
func (w *Channel) C() <-chan struct{} {
	return w.c
}

// Signal wakes the waiting loop. Signals beyond the first collapse into one,
// and signalling a closed channel does nothing.
func (w *Channel) Signal() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	select {
	case w.c <- struct{}{}:
	default:
	}
}

// Arm discards a pending signal so the next run starts unsignalled.
// Arm must only be called while no loop is waiting on C.
func (w *Channel) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.c:
	default:
	}
}

// Close releases the channel. Later signals are ignored.
func (w *Channel) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
}
