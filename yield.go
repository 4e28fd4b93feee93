package corun

import (
	"context"
)

// Yield is the handle a task body receives. It is passed by value
// through sequential code and handed to Await to mark a suspension
// point. A Yield does not own its task and must not be used after the
// body returns.
type Yield struct {
	task *task
	ex   Executor
	ec   *error
}

// Executor returns the executor resumptions are posted to. Spawning
// with a Yield as Target runs the child on this executor.
func (y Yield) Executor() Executor {
	return y.ex
}

// Redirect returns a copy of y that stores the error of an awaited
// operation in *err instead of raising it. On success *err is set to
// nil.
func (y Yield) Redirect(err *error) Yield {
	y.ec = err
	return y
}

// Redirected reports whether y carries an error slot.
func (y Yield) Redirected() bool {
	return y.ec != nil
}

// ID returns the identity of the task y belongs to.
func (y Yield) ID() uint32 {
	if y.task == nil {
		return 0
	}
	return y.task.id
}

// Context returns the task's context. It carries y, see
// YieldFromContext.
func (y Yield) Context() context.Context {
	if y.task == nil {
		return context.Background()
	}
	return y.task.ctx
}

// Stack returns the block obtained from the task's StackAllocator, or
// nil when the task was spawned without one.
func (y Yield) Stack() []byte {
	return y.mustTask().stack.Mem
}

// Log records msg in the runtime trace under the task's path.
func (y Yield) Log(msg string) {
	y.mustTask().Log(msg)
}

// Logf is Log with formatting.
func (y Yield) Logf(format string, args ...any) {
	y.mustTask().Logf(format, args...)
}

func (y Yield) mustTask() *task {
	if y.task == nil || !y.task.inside() {
		panic(ErrNotInTask)
	}
	return y.task
}

// raise surfaces the error of a completed operation: into the redirect
// slot when there is one, otherwise as an AwaitError panic.
func (y Yield) raise(err error) {
	if y.ec != nil {
		*y.ec = err
		return
	}
	if err != nil {
		panic(&AwaitError{Err: err})
	}
}

// plain returns y without its redirect slot, for internal suspensions
// that must not touch the caller's error variable.
func (y Yield) plain() Yield {
	y.ec = nil
	return y
}
