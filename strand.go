package corun

import (
	"sync"

	"github.com/gammazero/deque"
)

const (
	// StrandBatchLimit is the maximum number of handlers a Strand runs
	// per turn on its inner executor before yielding the worker to
	// other work.
	StrandBatchLimit = 64
)

// Strand serializes the work posted through it: handlers run in FIFO
// order and never concurrently with each other, whichever workers
// drive the inner executor. Tasks spawned on a Strand, and tasks
// spawned from their Yield, share that mutual-exclusion domain.
type Strand struct {
	noCopy  noCopy
	inner   Executor
	mu      sync.Mutex
	queue   deque.Deque[func()]
	running bool
}

// NewStrand creates a Strand running on target's executor.
func NewStrand(target Target) *Strand {
	return &Strand{inner: target.Executor()}
}

// Executor returns s itself, making a Strand a spawn Target.
func (s *Strand) Executor() Executor {
	return s
}

// Inner returns the executor the Strand runs on.
func (s *Strand) Inner() Executor {
	return s.inner
}

// Post queues fn behind every handler already posted to s.
func (s *Strand) Post(fn func()) {
	s.mu.Lock()
	s.queue.PushBack(fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.inner.Post(s.invoke)
}

// WorkStarted forwards to the inner executor.
func (s *Strand) WorkStarted() {
	workStarted(s.inner)
}

// WorkFinished forwards to the inner executor.
func (s *Strand) WorkFinished() {
	workFinished(s.inner)
}

func (s *Strand) invoke() {
	for n := 0; n < StrandBatchLimit; n++ {
		fn, ok := s.pop()
		if !ok {
			return
		}
		s.call(fn)
	}
	s.mu.Lock()
	if s.queue.Len() == 0 {
		s.running = false
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.inner.Post(s.invoke)
}

// pop takes the next handler, releasing the running flag when the
// queue is drained.
func (s *Strand) pop() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		s.running = false
		return nil, false
	}
	return s.queue.PopFront(), true
}

// call runs fn. If fn panics, the remaining handlers are handed to a
// fresh turn before the panic continues.
func (s *Strand) call(fn func()) {
	done := false
	defer func() {
		if done {
			return
		}
		s.mu.Lock()
		if s.queue.Len() == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.inner.Post(s.invoke)
	}()
	fn()
	done = true
}
