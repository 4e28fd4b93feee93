package corun

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// after is a mock asynchronous operation completing with v and err
// once d has elapsed.
func after[T any](d time.Duration, v T, err error) func(Handler[T]) {
	return func(h Handler[T]) {
		time.AfterFunc(d, func() { h(err, v) })
	}
}

// failAfter is after for operations without a value.
func failAfter(d time.Duration, err error) func(func(error)) {
	return func(h func(error)) {
		time.AfterFunc(d, func() { h(err) })
	}
}

// runWorkers drives s with n goroutine workers until it runs out of
// work.
func runWorkers(t *testing.T, s *Schedule, n int) {
	t.Helper()
	var g ThreadGroup
	require.NoError(t, g.CreateThreads(func() { s.Run() }, n))
	require.NoError(t, g.Join())
	require.Equal(t, 0, g.Len())
}

// tracingExecutor counts the handlers it is currently running.
type tracingExecutor struct {
	inner  Executor
	active atomic.Int32
	posts  atomic.Int32
}

func (e *tracingExecutor) Executor() Executor {
	return e
}

func (e *tracingExecutor) Post(fn func()) {
	e.posts.Add(1)
	e.inner.Post(func() {
		e.active.Add(1)
		defer e.active.Add(-1)
		fn()
	})
}

func (e *tracingExecutor) WorkStarted() {
	workStarted(e.inner)
}

func (e *tracingExecutor) WorkFinished() {
	workFinished(e.inner)
}

// countingStacks records every allocation and release.
type countingStacks struct {
	allocs   atomic.Int32
	releases atomic.Int32
	fail     error
}

func (c *countingStacks) Allocate(size int) (Stack, error) {
	if c.fail != nil {
		return Stack{}, c.fail
	}
	c.allocs.Add(1)
	return Stack{Mem: make([]byte, size)}, nil
}

func (c *countingStacks) Deallocate(Stack) {
	c.releases.Add(1)
}
