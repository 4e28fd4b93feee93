package corun

import (
	"sync"

	"code.hybscloud.com/iox"
	"github.com/gammazero/deque"
)

// Executor schedules work for later execution, possibly on another
// worker. Post must not run fn inline.
type Executor interface {
	Post(fn func())
}

// WorkTracker is implemented by executors that keep count of
// outstanding work. A task parked on an asynchronous operation holds
// one unit of work for as long as the operation is pending.
type WorkTracker interface {
	WorkStarted()
	WorkFinished()
}

// Target names where a new task runs. *Schedule, *Strand and Yield are
// targets; any other executor is adapted with On.
type Target interface {
	Executor() Executor
}

type executorTarget struct {
	ex Executor
}

func (t executorTarget) Executor() Executor {
	return t.ex
}

// On adapts an arbitrary executor into a Target.
func On(ex Executor) Target {
	return executorTarget{ex: ex}
}

func workStarted(ex Executor) {
	if wt, ok := ex.(WorkTracker); ok {
		wt.WorkStarted()
	}
}

func workFinished(ex Executor) {
	if wt, ok := ex.(WorkTracker); ok {
		wt.WorkFinished()
	}
}

// Schedule is an execution context: a FIFO run queue shared by every
// worker that calls Run. It keeps count of outstanding work, being
// queued handlers, handlers in flight and work registered through
// WorkStarted. When that count drops to zero, Run returns and the
// Schedule stops until Restart is called.
type Schedule struct {
	noCopy  noCopy
	mu      sync.Mutex
	cond    sync.Cond
	queue   deque.Deque[func()]
	work    int64
	stopped bool
}

// NewSchedule creates an empty Schedule.
func NewSchedule() *Schedule {
	s := new(Schedule)
	s.cond.L = &s.mu
	return s
}

// Executor returns s itself, making a Schedule a spawn Target.
func (s *Schedule) Executor() Executor {
	return s
}

// Post queues fn. It is safe for concurrent use and never runs fn
// inline.
func (s *Schedule) Post(fn func()) {
	s.mu.Lock()
	s.work++
	s.queue.PushBack(fn)
	s.mu.Unlock()
	s.cond.Signal()
}

// WorkStarted registers outstanding work that is not in the queue,
// keeping Run from returning while it is pending.
func (s *Schedule) WorkStarted() {
	s.mu.Lock()
	s.work++
	s.mu.Unlock()
}

// WorkFinished releases work registered with WorkStarted.
func (s *Schedule) WorkFinished() {
	s.mu.Lock()
	s.work--
	if s.work < 0 {
		s.mu.Unlock()
		panic("corun: negative Schedule work count")
	}
	idle := s.work == 0
	s.mu.Unlock()
	if idle {
		s.cond.Broadcast()
	}
}

// Run executes handlers on the calling goroutine until the Schedule is
// stopped or runs out of work, and returns the number of handlers it
// executed. Any number of workers may call Run at the same time. A
// panicking handler propagates out of Run.
func (s *Schedule) Run() int {
	n := 0
	for {
		fn, ok := s.next(true)
		if !ok {
			return n
		}
		s.invoke(fn)
		n++
	}
}

// Poll executes the handlers that are ready to run without waiting for
// more, and returns how many it executed.
func (s *Schedule) Poll() int {
	n := 0
	for {
		fn, ok := s.next(false)
		if !ok {
			return n
		}
		s.invoke(fn)
		n++
	}
}

// Drive executes handlers until done reports true, ignoring the
// stopped state and the work count. When the queue is empty it backs
// off adaptively instead of parking on the condition variable, which
// suits hosts that interleave the Schedule with an external poller.
func (s *Schedule) Drive(done func() bool) int {
	var bo iox.Backoff
	n := 0
	for !done() {
		fn, ok := s.pop()
		if !ok {
			bo.Wait()
			continue
		}
		bo.Reset()
		s.invoke(fn)
		n++
	}
	return n
}

// Stop makes every Run return as soon as its current handler finishes.
// Queued handlers are kept for a later Restart.
func (s *Schedule) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Restart clears the stopped state left by Stop or by running out of
// work.
func (s *Schedule) Restart() {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
}

// Stopped reports whether the Schedule is stopped.
func (s *Schedule) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Schedule) next(block bool) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.stopped {
			return nil, false
		}
		if s.queue.Len() > 0 {
			return s.queue.PopFront(), true
		}
		if s.work == 0 {
			s.stopped = true
			s.cond.Broadcast()
			return nil, false
		}
		if !block {
			return nil, false
		}
		s.cond.Wait()
	}
}

func (s *Schedule) pop() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil, false
	}
	return s.queue.PopFront(), true
}

func (s *Schedule) invoke(fn func()) {
	defer s.WorkFinished()
	fn()
}
