package corun

import (
	"fmt"
	"sync"
)

const (
	// DefaultStackSize is the size used by WithStack when the allocator
	// is given no explicit size.
	DefaultStackSize = 64 << 10
)

// Stack is the task-owned memory block obtained from a StackAllocator.
// Goroutine stacks are managed by the Go runtime, so the block serves
// as scratch storage private to the task, reachable through
// Yield.Stack for as long as the task runs.
type Stack struct {
	Mem []byte
}

// StackAllocator provides the per-task block. Deallocate is called
// exactly once for every successful Allocate, when the task
// terminates.
type StackAllocator interface {
	Allocate(size int) (Stack, error)
	Deallocate(Stack)
}

// PooledStacks recycles fixed-size blocks through a sync.Pool.
type PooledStacks struct {
	size int
	pool sync.Pool
}

// NewPooledStacks creates an allocator serving blocks of exactly size
// bytes.
func NewPooledStacks(size int) *PooledStacks {
	p := &PooledStacks{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Allocate returns a block of the pool's size. A size of zero selects
// the pool's size; any other mismatch is an error.
func (p *PooledStacks) Allocate(size int) (Stack, error) {
	if size == 0 {
		size = p.size
	}
	if size != p.size || size <= 0 {
		return Stack{}, fmt.Errorf("%w: %d (pool serves %d)", ErrStackSize, size, p.size)
	}
	b := p.pool.Get().(*[]byte)
	return Stack{Mem: *b}, nil
}

// Deallocate returns the block to the pool.
func (p *PooledStacks) Deallocate(s Stack) {
	if cap(s.Mem) != p.size {
		return
	}
	b := s.Mem[:p.size]
	clear(b)
	p.pool.Put(&b)
}

var (
	stackPoolsMu sync.Mutex
	stackPools   = map[int]*PooledStacks{}
)

// pooledStacks returns the process-wide pool for size.
func pooledStacks(size int) *PooledStacks {
	stackPoolsMu.Lock()
	defer stackPoolsMu.Unlock()
	p, ok := stackPools[size]
	if !ok {
		p = NewPooledStacks(size)
		stackPools[size] = p
	}
	return p
}
