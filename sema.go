package corun

import (
	"sync"

	"github.com/gammazero/deque"
)

// sema implements a semaphore for task synchronization. It counts the
// permits in use and queues the resumption handlers of waiting tasks.
// A released permit is handed straight to the first waiter.
type sema struct {
	noCopy noCopy                   // Prevents copying of the semaphore
	mu     sync.Mutex               // Guards v and w
	v      int                      // Permits in use
	w      deque.Deque[func(error)] // Waiting tasks queue
}

// tryAcquire takes a permit if one of limit is free and nobody is
// queued ahead.
func (s *sema) tryAcquire(limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.v < limit && s.w.Len() == 0 {
		s.v++
		return true
	}
	return false
}

// acquire takes a permit, suspending the task until one is handed to
// it.
func (s *sema) acquire(y Yield, limit int) {
	if s.tryAcquire(limit) {
		return
	}

	AwaitVoid(y.plain(), func(h func(error)) {
		s.mu.Lock()
		if s.v < limit && s.w.Len() == 0 {
			s.v++
			s.mu.Unlock()
			h(nil)
			return
		}
		s.w.PushBack(h)
		s.mu.Unlock()
	})
}

// release returns a permit. If tasks are waiting, the first one is
// resumed holding it.
func (s *sema) release() {
	s.mu.Lock()
	if s.w.Len() == 0 {
		if s.v == 0 {
			s.mu.Unlock()
			panic("corun: release of unheld semaphore")
		}
		s.v--
		s.mu.Unlock()
		return
	}
	h := s.w.PopFront()
	s.mu.Unlock()
	h(nil)
}

// waiting returns the number of queued tasks.
func (s *sema) waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Len()
}

// Semaphore bounds the number of tasks inside a section.
type Semaphore struct {
	n    int
	sema sema
}

// NewSemaphore creates a semaphore with n permits.
func NewSemaphore(n int) *Semaphore {
	return &Semaphore{n: n}
}

// Acquire takes a permit, suspending the task while none is free.
func (s *Semaphore) Acquire(y Yield) {
	s.sema.acquire(y, s.n)
}

// TryAcquire takes a permit if one is free without suspending.
func (s *Semaphore) TryAcquire() bool {
	return s.sema.tryAcquire(s.n)
}

// Release returns a permit.
func (s *Semaphore) Release() {
	s.sema.release()
}
