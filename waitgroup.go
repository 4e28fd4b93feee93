package corun

import (
	"sync"

	"github.com/gammazero/deque"
)

// WaitGroup is used to wait for a collection of tasks to finish.
// Tasks call Add(1) when they start and Done() when they finish.
// Other tasks can call Wait() to suspend until all tasks have
// finished.
type WaitGroup struct {
	noCopy noCopy                   // Prevents copying of the WaitGroup
	mu     sync.Mutex               // Guards v and w
	v      int32                    // Counter for the number of tasks
	w      deque.Deque[func(error)] // Suspended waiters
}

// Add adds delta to the WaitGroup counter. If the counter becomes
// zero, every waiting task is resumed. If the counter goes negative,
// Add panics.
func (wg *WaitGroup) Add(delta int) {
	wg.mu.Lock()
	wg.v += int32(delta)

	if wg.v < 0 {
		wg.mu.Unlock()
		panic("corun: negative WaitGroup counter")
	}

	if wg.v > 0 || wg.w.Len() == 0 {
		wg.mu.Unlock()
		return
	}

	waiters := make([]func(error), 0, wg.w.Len())
	for wg.w.Len() > 0 {
		waiters = append(waiters, wg.w.PopFront())
	}
	wg.mu.Unlock()

	for _, h := range waiters {
		h(nil)
	}
}

// Done decrements the WaitGroup counter by one. It's a convenience
// method equivalent to Add(-1).
func (wg *WaitGroup) Done() {
	wg.Add(-1)
}

// Wait suspends the calling task until the WaitGroup counter is zero.
// If the counter is already zero, it returns immediately.
func (wg *WaitGroup) Wait(y Yield) {
	wg.mu.Lock()
	idle := wg.v == 0
	wg.mu.Unlock()
	if idle {
		return
	}

	AwaitVoid(y.plain(), func(h func(error)) {
		wg.mu.Lock()
		if wg.v == 0 {
			wg.mu.Unlock()
			h(nil)
			return
		}
		wg.w.PushBack(h)
		wg.mu.Unlock()
	})
}
