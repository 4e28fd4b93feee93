package corun

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// ErrDoubleResume is the panic value raised when a completion
	// handler is invoked more than once for the same suspension.
	ErrDoubleResume = errors.New("corun: completion handler invoked twice")

	// ErrTerminated is the panic value raised when a task that has
	// already returned is resumed again.
	ErrTerminated = errors.New("corun: resume of terminated task")

	// ErrNotInTask is the panic value raised when a Yield is used
	// outside the body of the task it belongs to.
	ErrNotInTask = errors.New("corun: yield used outside its task")

	// ErrTuningUnsupported is returned when priority, affinity or
	// destruction policy is requested from a thread backend that cannot
	// honor it.
	ErrTuningUnsupported = errors.New("corun: thread tuning not supported")

	// ErrThreadExited is returned when a thread is tuned after its
	// worker function has returned.
	ErrThreadExited = errors.New("corun: thread has exited")

	// ErrStackSize is returned by stack allocators for a size they
	// cannot serve.
	ErrStackSize = errors.New("corun: invalid stack size")
)

// AwaitError is raised, as a panic, at the suspension point of a task
// whose awaited operation completed with an error and whose Yield
// carries no redirect slot. Spawn captures it and delivers it to the
// completion handler.
type AwaitError struct {
	Err error
}

func (e *AwaitError) Error() string {
	return "corun: " + e.Err.Error()
}

func (e *AwaitError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered from a task body or a worker
// thread together with the stack at the point of the panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "corun: panic: %v", e.Value)
	if e.Stack != nil {
		b.WriteString("\n\n")
		b.Write(e.Stack)
	}
	return b.String()
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// capture converts a recovered panic value into the error delivered to
// a completion handler. An AwaitError escapes the body unchanged so the
// original operation error stays reachable with errors.Is.
func capture(v any) error {
	if ae, ok := v.(*AwaitError); ok {
		return ae
	}
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// try runs f and reports a recovered panic as an error.
func try(f func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = capture(v)
		}
	}()
	f()
	return nil
}
