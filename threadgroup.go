package corun

import (
	"errors"
)

// ThreadGroup owns a set of worker threads, typically all running the
// dispatch loop of one Schedule. The newest thread is the front of the
// group. A ThreadGroup is driven by a single owner: CreateThread, Join
// and Close must not be called concurrently with each other.
//
// The zero value launches goroutine workers.
type ThreadGroup struct {
	noCopy   noCopy
	launcher Launcher
	threads  []Thread
}

// NewThreadGroup creates an empty group whose threads come from l.
func NewThreadGroup(l Launcher) *ThreadGroup {
	return &ThreadGroup{launcher: l}
}

// CreateThread starts one thread running fn.
func (g *ThreadGroup) CreateThread(fn func()) error {
	return g.CreateThreadAttr(fn, Attributes{})
}

// CreateThreadAttr starts one thread running fn with attr applied
// first. An error leaves the group unchanged.
func (g *ThreadGroup) CreateThreadAttr(fn func(), attr Attributes) error {
	l := g.launcher
	if l == nil {
		l = Goroutines
	}
	th, err := l.Launch(fn, attr)
	if err != nil {
		return err
	}
	g.threads = append(g.threads, th)
	return nil
}

// CreateThreads starts n threads running fn. It stops at the first
// failure; threads created before it stay in the group.
func (g *ThreadGroup) CreateThreads(fn func(), n int) error {
	return g.CreateThreadsAttr(fn, Attributes{}, n)
}

// CreateThreadsAttr is CreateThreads with attributes.
func (g *ThreadGroup) CreateThreadsAttr(fn func(), attr Attributes, n int) error {
	for i := 0; i < n; i++ {
		if err := g.CreateThreadAttr(fn, attr); err != nil {
			return err
		}
	}
	return nil
}

// Join waits for every thread, front first, dropping each one as soon
// as it has exited. It returns the panics of the workers that died.
// Joining an empty group returns nil at once.
func (g *ThreadGroup) Join() error {
	var errs []error
	for n := len(g.threads); n > 0; n = len(g.threads) {
		if err := g.threads[n-1].Join(); err != nil {
			errs = append(errs, err)
		}
		g.threads[n-1] = nil
		g.threads = g.threads[:n-1]
	}
	return errors.Join(errs...)
}

// Close ends the group's lifetime: threads whose DtorAction is
// DtorDetach are abandoned, every other thread is joined.
func (g *ThreadGroup) Close() error {
	var errs []error
	for n := len(g.threads); n > 0; n = len(g.threads) {
		th := g.threads[n-1]
		g.threads[n-1] = nil
		g.threads = g.threads[:n-1]

		if tt, ok := th.(TunableThread); ok && tt.DtorAction() == DtorDetach {
			continue
		}
		if err := th.Join(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of threads not yet joined.
func (g *ThreadGroup) Len() int {
	return len(g.threads)
}

// Tunable returns the group-wide tuning capability. It is available
// only when the group has threads and every one of them is tunable.
func (g *ThreadGroup) Tunable() (Tunable, bool) {
	if len(g.threads) == 0 {
		return nil, false
	}
	for _, th := range g.threads {
		if _, ok := th.(TunableThread); !ok {
			return nil, false
		}
	}
	return groupTuner{g}, true
}

// groupTuner applies every setting to all threads and reads settings
// from the front thread, the threads being expected to share one
// configuration. Once the group has been joined or closed the getters
// report defaults and ErrThreadExited.
type groupTuner struct {
	g *ThreadGroup
}

func (gt groupTuner) front() (TunableThread, bool) {
	n := len(gt.g.threads)
	if n == 0 {
		return nil, false
	}
	return gt.g.threads[n-1].(TunableThread), true
}

func (gt groupTuner) each(fn func(TunableThread) error) error {
	if len(gt.g.threads) == 0 {
		return ErrThreadExited
	}
	var errs []error
	for _, th := range gt.g.threads {
		if err := fn(th.(TunableThread)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (gt groupTuner) Priority() Priority {
	th, ok := gt.front()
	if !ok {
		return PriorityInherit
	}
	return th.Priority()
}

func (gt groupTuner) SetPriority(p Priority) error {
	return gt.each(func(th TunableThread) error { return th.SetPriority(p) })
}

func (gt groupTuner) NativePriority() (int, error) {
	th, ok := gt.front()
	if !ok {
		return 0, ErrThreadExited
	}
	return th.NativePriority()
}

func (gt groupTuner) SetNativePriority(nice int) error {
	return gt.each(func(th TunableThread) error { return th.SetNativePriority(nice) })
}

func (gt groupTuner) Affinity() (CPUSet, error) {
	th, ok := gt.front()
	if !ok {
		return nil, ErrThreadExited
	}
	return th.Affinity()
}

func (gt groupTuner) SetAffinity(cpus CPUSet) error {
	return gt.each(func(th TunableThread) error { return th.SetAffinity(cpus) })
}

func (gt groupTuner) DtorAction() DtorAction {
	th, ok := gt.front()
	if !ok {
		return DtorJoin
	}
	return th.DtorAction()
}

func (gt groupTuner) SetDtorAction(a DtorAction) {
	_ = gt.each(func(th TunableThread) error {
		th.SetDtorAction(a)
		return nil
	})
}
