package corun

// Mutex provides mutual exclusion for tasks. Only one task holds the
// lock at a time; the others are suspended, not blocked, until it is
// handed to them in arrival order. A Mutex may be unlocked by a task
// other than the one that locked it.
type Mutex struct {
	sema sema // Holds at most one permit
}

// Lock acquires the mutex for the task y belongs to. If the mutex is
// already locked, the task is suspended until the mutex is available.
func (m *Mutex) Lock(y Yield) {
	m.sema.acquire(y, 1)
}

// TryLock acquires the mutex if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	return m.sema.tryAcquire(1)
}

// Unlock releases the mutex. If tasks are waiting to acquire it, the
// first of them is resumed holding it.
func (m *Mutex) Unlock() {
	m.sema.release()
}

// WaitCount returns the number of tasks waiting to acquire the mutex.
func (m *Mutex) WaitCount() int {
	return m.sema.waiting()
}
