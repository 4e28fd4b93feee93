package corun

import (
	"context"
	"sync"
)

// Group runs a set of child tasks on the executor of the task that
// created it and collects the first error any of them returns.
type Group struct {
	parent Yield                   // The task that created the group
	ctx    context.Context         // Context shared by all children
	cancel context.CancelCauseFunc // Cancels ctx with the first error
	wg     WaitGroup               // Tracks running children
	mu     sync.Mutex              // Guards err
	err    error                   // The first error encountered
}

// NewGroup creates a group whose children are spawned from y. Their
// Yield contexts derive from a context that is cancelled, with the
// error as cause, as soon as one child fails.
func NewGroup(y Yield) *Group {
	ctx, cancel := context.WithCancelCause(y.Context())
	return &Group{parent: y.plain(), ctx: ctx, cancel: cancel}
}

// Context returns the context shared by the group's children.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go spawns fn as a child task.
func (g *Group) Go(fn func(Yield) error) {
	g.wg.Add(1)
	Spawn(g.parent, fn, func(err error) {
		defer g.wg.Done()
		if err == nil {
			return
		}
		g.mu.Lock()
		if g.err == nil {
			g.err = err
			g.cancel(err)
		}
		g.mu.Unlock()
	}, WithContext(g.ctx))
}

// Wait suspends the calling task until every child has finished and
// returns the first error, or nil.
func (g *Group) Wait(y Yield) error {
	g.wg.Wait(y)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancel(g.err)
	return g.err
}
