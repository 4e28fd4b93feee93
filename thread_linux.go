//go:build linux

package corun

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// linuxCPUSetBits is the capacity of unix.CPUSet.
const linuxCPUSetBits = 1024

// osThread is a worker pinned to one Linux thread, addressed by its
// thread id for priority and affinity calls. The worker retires under
// mu before its thread can exit, so a tid used while holding mu with
// gone unset still names this thread.
type osThread struct {
	done chan struct{}
	err  error
	tid  int

	mu   sync.Mutex
	gone bool
	dtor DtorAction
}

func newOSThread() *osThread {
	return &osThread{done: make(chan struct{})}
}

// bind runs on the locked thread before the worker function.
func (t *osThread) bind(attr Attributes) error {
	t.tid = unix.Gettid()
	t.dtor = attr.DtorAction

	if attr.Priority != PriorityInherit {
		if err := t.SetPriority(attr.Priority); err != nil {
			return err
		}
	}
	if attr.Affinity != nil {
		if err := t.SetAffinity(attr.Affinity); err != nil {
			return err
		}
	}
	return nil
}

func (t *osThread) Join() error {
	<-t.done
	return t.err
}

// retire runs on the locked thread after the worker function.
func (t *osThread) retire() {
	t.mu.Lock()
	t.gone = true
	t.mu.Unlock()
}

// live runs fn while the thread is guaranteed to be alive.
func (t *osThread) live(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gone {
		return ErrThreadExited
	}
	return fn()
}

func (t *osThread) Priority() Priority {
	nice, err := t.NativePriority()
	if err != nil {
		return PriorityInherit
	}
	return priorityOf(nice)
}

func (t *osThread) SetPriority(p Priority) error {
	if p == PriorityInherit {
		return nil
	}
	return t.SetNativePriority(niceOf(p))
}

// NativePriority returns the thread's nice value.
func (t *osThread) NativePriority() (nice int, err error) {
	err = t.live(func() error {
		// The raw syscall reports 20 - nice.
		prio, err := unix.Getpriority(unix.PRIO_PROCESS, t.tid)
		if err != nil {
			return fmt.Errorf("corun: getpriority tid %d: %w", t.tid, err)
		}
		nice = 20 - prio
		return nil
	})
	return nice, err
}

// SetNativePriority sets the thread's nice value. Lowering it below the
// current value needs CAP_SYS_NICE.
func (t *osThread) SetNativePriority(nice int) error {
	return t.live(func() error {
		if err := unix.Setpriority(unix.PRIO_PROCESS, t.tid, nice); err != nil {
			return fmt.Errorf("corun: setpriority tid %d nice %d: %w", t.tid, nice, err)
		}
		return nil
	})
}

func (t *osThread) Affinity() (cpus CPUSet, err error) {
	var set unix.CPUSet
	err = t.live(func() error {
		if err := unix.SchedGetaffinity(t.tid, &set); err != nil {
			return fmt.Errorf("corun: sched_getaffinity tid %d: %w", t.tid, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := 0; i < linuxCPUSetBits; i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}

func (t *osThread) SetAffinity(cpus CPUSet) error {
	var set unix.CPUSet
	set.Zero()
	for _, c := range cpus {
		if c < 0 || c >= linuxCPUSetBits {
			return fmt.Errorf("corun: cpu %d out of range", c)
		}
		set.Set(c)
	}
	return t.live(func() error {
		if err := unix.SchedSetaffinity(t.tid, &set); err != nil {
			return fmt.Errorf("corun: sched_setaffinity tid %d: %w", t.tid, err)
		}
		return nil
	})
}

func (t *osThread) DtorAction() DtorAction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dtor
}

func (t *osThread) SetDtorAction(a DtorAction) {
	t.mu.Lock()
	t.dtor = a
	t.mu.Unlock()
}
