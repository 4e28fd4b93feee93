package corun

import (
	"context"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
)

// Handler is the completion handler of an asynchronous operation that
// produces a value. It must be called exactly once.
type Handler[T any] func(err error, v T)

// Await suspends the task y belongs to on an asynchronous operation
// and returns the operation's value once it completes.
//
// initiate starts the operation. It is called after the task has
// suspended, on the worker that was running it, and must arrange for
// the handler to be called exactly once, from any goroutine. The
// handler posts the task's resumption onto y's executor.
//
// When the operation fails and y has no redirect slot, Await panics
// with *AwaitError; Spawn delivers that error to the completion
// handler unless the body recovers it. With a redirect slot the error
// is stored there and the value is returned regardless.
func Await[T any](y Yield, initiate func(Handler[T])) T {
	t := y.mustTask()

	o := &op{t: t}
	o.initiate = func(o *op) {
		initiate(func(err error, v T) { o.complete(err, v) })
	}

	v, err := t.suspend(o)
	out, _ := v.(T)
	y.raise(err)
	return out
}

// AwaitVoid is Await for operations that complete with an error only.
func AwaitVoid(y Yield, initiate func(func(error))) {
	t := y.mustTask()

	o := &op{t: t}
	o.initiate = func(o *op) {
		initiate(func(err error) { o.complete(err, nil) })
	}

	_, err := t.suspend(o)
	y.raise(err)
}

// Reschedule suspends the task and immediately posts its resumption,
// letting other handlers queued on the executor run first.
func Reschedule(y Yield) {
	AwaitVoid(y, func(h func(error)) { h(nil) })
}

// Sleep suspends the task for d. It completes early with the context
// error when the task's context is done first.
func Sleep(y Yield, d time.Duration) {
	ctx := y.Context()
	AwaitVoid(y, func(h func(error)) {
		var (
			fired atomix.Uint32
			mu    sync.Mutex
			stop  func() bool
		)

		fire := func(err error) {
			if fired.Add(1) != 1 {
				return
			}
			mu.Lock()
			s := stop
			mu.Unlock()
			if s != nil {
				s()
			}
			h(err)
		}

		mu.Lock()
		timer := time.AfterFunc(d, func() { fire(nil) })
		stop = context.AfterFunc(ctx, func() {
			if timer.Stop() {
				fire(context.Cause(ctx))
			}
		})
		mu.Unlock()
	})
}
