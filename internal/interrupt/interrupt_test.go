package interrupt

import (
	"sync/atomic"
	"testing"
)

func TestRunCallbacksRunsEveryRegisteredCallbackOnce(t *testing.T) {
	callbacks = nil // reset package state for this test's isolated view

	var a, b int32
	Register(func() { atomic.AddInt32(&a, 1) })
	Register(func() { atomic.AddInt32(&b, 1) })
	Register(func() { panic("a callback panicking must not stop the rest") })

	runCallbacks()

	if atomic.LoadInt32(&a) != 1 || atomic.LoadInt32(&b) != 1 {
		t.Errorf("callbacks ran a=%d b=%d, want both exactly once", a, b)
	}
}
