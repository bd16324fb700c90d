package wake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannel_SignalWakesWaiter(t *testing.T) {
	w := New()
	woke := make(chan struct{})

	go func() {
		<-w.C()
		close(woke)
	}()

	w.Signal()

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestChannel_SignalsCollapse(t *testing.T) {
	w := New()

	w.Signal()
	w.Signal()
	w.Signal()

	<-w.C()

	select {
	case <-w.C():
		t.Fatal("repeated signals must collapse into one")
	default:
	}
}

func TestChannel_ArmDrainsStaleSignal(t *testing.T) {
	w := New()
	w.Signal()
	w.Arm()

	select {
	case <-w.C():
		t.Fatal("Arm should discard the pending signal")
	default:
	}

	// Arm on an empty channel is harmless.
	w.Arm()
	w.Signal()
	require.Len(t, w.C(), 1)
}

func TestChannel_SignalAfterClose(t *testing.T) {
	w := New()
	w.Close()

	require.NotPanics(t, w.Signal)
	require.Empty(t, w.C())
}
