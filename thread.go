package corun

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// Thread is one worker of a ThreadGroup.
type Thread interface {
	// Join waits for the worker function to return. It returns a
	// *PanicError when the worker died of a panic.
	Join() error
}

// Tunable is the optional tuning capability of a thread backend.
type Tunable interface {
	Priority() Priority
	SetPriority(Priority) error
	NativePriority() (int, error)
	SetNativePriority(int) error
	Affinity() (CPUSet, error)
	SetAffinity(CPUSet) error
	DtorAction() DtorAction
	SetDtorAction(DtorAction)
}

// TunableThread is a Thread whose backend supports tuning.
type TunableThread interface {
	Thread
	Tunable
}

// Launcher is a thread backend.
type Launcher interface {
	Launch(fn func(), attr Attributes) (Thread, error)
}

// Attributes are applied to a thread before its worker function
// starts. The zero value leaves everything inherited.
type Attributes struct {
	Priority   Priority
	Affinity   CPUSet
	DtorAction DtorAction
}

func (a Attributes) isZero() bool {
	return a.Priority == PriorityInherit && a.Affinity == nil && a.DtorAction == DtorJoin
}

// Priority is a portable scheduling priority band.
type Priority int

const (
	PriorityInherit Priority = iota
	PriorityLowest
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
)

var priorityNames = [...]string{"inherit", "lowest", "low", "normal", "high", "highest"}

func (p Priority) String() string {
	if p < 0 || int(p) >= len(priorityNames) {
		return fmt.Sprintf("Priority(%d)", int(p))
	}
	return priorityNames[p]
}

// ParsePriority parses the names produced by Priority.String.
func ParsePriority(s string) (Priority, error) {
	for i, name := range priorityNames {
		if strings.EqualFold(s, name) {
			return Priority(i), nil
		}
	}
	return PriorityInherit, fmt.Errorf("corun: unknown priority %q", s)
}

// niceOf maps a priority band to a Unix nice value.
func niceOf(p Priority) int {
	switch p {
	case PriorityLowest:
		return 19
	case PriorityLow:
		return 10
	case PriorityHigh:
		return -10
	case PriorityHighest:
		return -20
	default:
		return 0
	}
}

// priorityOf maps a nice value back to the nearest band.
func priorityOf(nice int) Priority {
	switch {
	case nice >= 15:
		return PriorityLowest
	case nice >= 5:
		return PriorityLow
	case nice > -5:
		return PriorityNormal
	case nice > -15:
		return PriorityHigh
	default:
		return PriorityHighest
	}
}

// CPUSet lists CPU indexes a thread may run on.
type CPUSet []int

// DtorAction is what ThreadGroup.Close does with a thread still
// running.
type DtorAction int

const (
	// DtorJoin waits for the thread.
	DtorJoin DtorAction = iota
	// DtorDetach abandons the thread to finish on its own.
	DtorDetach
)

// HardwareConcurrency returns the number of logical CPUs usable by the
// process.
func HardwareConcurrency() int {
	return runtime.NumCPU()
}

// runWorker runs fn, converting a panic into the error Join reports.
// A worker that dies is not restarted.
func runWorker(fn func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = capture(v)
			slog.Error("corun: worker thread died", "panic", v)
		}
	}()
	fn()
	return nil
}

// Goroutines launches each worker as a plain goroutine. Its threads are
// not tunable.
var Goroutines Launcher = goroutineLauncher{}

type goroutineLauncher struct{}

func (goroutineLauncher) Launch(fn func(), attr Attributes) (Thread, error) {
	if !attr.isZero() {
		return nil, ErrTuningUnsupported
	}
	th := &goroutineThread{done: make(chan struct{})}
	go func() {
		defer close(th.done)
		th.err = runWorker(fn)
	}()
	return th, nil
}

type goroutineThread struct {
	done chan struct{}
	err  error
}

func (t *goroutineThread) Join() error {
	<-t.done
	return t.err
}

// OSThreads launches each worker locked to an OS thread of its own.
// On Linux its threads are TunableThreads.
var OSThreads Launcher = osThreadLauncher{}

type osThreadLauncher struct{}

func (osThreadLauncher) Launch(fn func(), attr Attributes) (Thread, error) {
	th := newOSThread()
	ready := make(chan error, 1)

	go func() {
		// Never unlocked: the runtime discards the OS thread, with its
		// tuning, when the worker returns.
		runtime.LockOSThread()
		defer close(th.done)
		defer th.retire()

		if err := th.bind(attr); err != nil {
			ready <- err
			return
		}
		ready <- nil

		th.err = runWorker(fn)
	}()

	if err := <-ready; err != nil {
		<-th.done
		return nil, err
	}
	return th, nil
}
