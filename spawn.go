package corun

import (
	"context"
	"sync"
)

// Option configures Spawn and SpawnResult.
type Option func(*spawnOptions)

type spawnOptions struct {
	ctx   context.Context
	alloc StackAllocator
	size  int
	name  string
}

// WithContext sets the parent of the task's context. The default is
// the parent task's context when spawning from a Yield, and
// context.Background otherwise.
func WithContext(ctx context.Context) Option {
	return func(o *spawnOptions) { o.ctx = ctx }
}

// WithStack has the task obtain its Stack from alloc. A size of zero
// leaves the choice to the allocator.
func WithStack(alloc StackAllocator, size int) Option {
	return func(o *spawnOptions) { o.alloc, o.size = alloc, size }
}

// WithStackSize gives the task a pooled Stack of size bytes.
func WithStackSize(size int) Option {
	return func(o *spawnOptions) {
		if size <= 0 {
			size = DefaultStackSize
		}
		o.alloc, o.size = pooledStacks(size), size
	}
}

// WithName labels the task in the runtime trace.
func WithName(name string) Option {
	return func(o *spawnOptions) { o.name = name }
}

// Spawn starts fn as a new task on target and returns immediately.
// The first run is posted to the target's executor; it never happens
// inside Spawn. When fn returns, handler is called on that executor
// with the returned error, or with the error captured from a panic
// that escaped fn (*AwaitError or *PanicError).
//
// Spawning from a Yield runs the new task on the parent's executor, so
// parent and child share a Strand's mutual exclusion.
//
// handler must not be nil; pass Detached to drop the outcome on
// purpose.
func Spawn(target Target, fn func(Yield) error, handler func(error), opts ...Option) {
	if handler == nil {
		panic("corun: nil completion handler (use Detached to ignore the outcome)")
	}
	SpawnResult(target,
		func(y Yield) (struct{}, error) { return struct{}{}, fn(y) },
		func(err error, _ struct{}) { handler(err) },
		opts...,
	)
}

// SpawnResult is Spawn for task bodies that produce a value.
func SpawnResult[T any](target Target, fn func(Yield) (T, error), handler func(error, T), opts ...Option) {
	if handler == nil {
		panic("corun: nil completion handler (use DetachedResult to ignore the outcome)")
	}

	var o spawnOptions
	for _, opt := range opts {
		opt(&o)
	}

	ex := target.Executor()
	if ex == nil {
		panic("corun: spawn target has no executor")
	}

	var parent *task
	ctx := context.Background()
	if y, ok := target.(Yield); ok {
		parent = y.task
		ctx = y.Context()
	}
	if o.ctx != nil {
		ctx = o.ctx
	}

	t := newTask(ctx, ex, parent, o.name)

	if err := t.allocate(o.alloc, o.size); err != nil {
		t.Logf("STACK %v", err)
		t.tracer.End()
		ex.Post(func() {
			var zero T
			handler(err, zero)
		})
		return
	}

	t.start(func(y Yield) func() {
		var (
			v   T
			err error
		)
		if perr := try(func() { v, err = fn(y) }); perr != nil {
			err = perr
		}
		return func() { handler(err, v) }
	})
}

// Detached is the completion handler for tasks whose outcome is
// deliberately ignored.
func Detached(error) {}

// DetachedResult is Detached for SpawnResult.
func DetachedResult[T any](error, T) {}

// Future is a completion token that stores a task's outcome for a
// caller outside the executor.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewFuture creates an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Handler returns the completion handler to pass to SpawnResult.
func (f *Future[T]) Handler() func(error, T) {
	return f.resolve
}

// ErrHandler returns the completion handler to pass to Spawn.
func (f *Future[T]) ErrHandler() func(error) {
	return func(err error) {
		var zero T
		f.resolve(err, zero)
	}
}

// Done is closed once the Future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get waits for the outcome or for ctx to be done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) resolve(err error, v T) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}
