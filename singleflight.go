package corun

import "sync"

// singleFlightCall represents an in-flight function call that may be
// shared among multiple tasks. It tracks the result of the call and
// the number of duplicated requests.
type singleFlightCall struct {
	wg   WaitGroup // Suspended duplicates wait on this
	val  any       // The result value of the call
	err  error     // Any error from the call
	dups int       // Number of duplicate calls
}

// SingleFlight deduplicates concurrent calls with the same key: the
// first task runs the function and the others are suspended until it
// returns, then share its result.
type SingleFlight struct {
	mu sync.Mutex                // Guards m and dups
	m  map[any]*singleFlightCall // Map of in-flight calls by key
}

// Do executes fn for key in the calling task, unless a call for key is
// already in flight, in which case the task waits for it. It returns
// the result, the error, and whether the result was shared.
func (g *SingleFlight) Do(y Yield, key any, fn func() (any, error)) (v any, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[any]*singleFlightCall)
	}

	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		c.wg.Wait(y)
		return c.val, c.err, true
	}

	c := new(singleFlightCall)
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	g.doCall(c, key, fn)

	g.mu.Lock()
	shared = c.dups > 0
	g.mu.Unlock()
	return c.val, c.err, shared
}

// doCall executes fn and stores the result in c. It removes the map
// entry and resumes the duplicates when the call is complete.
func (g *SingleFlight) doCall(c *singleFlightCall, key any, fn func() (any, error)) {
	defer func() {
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
		c.wg.Done()
	}()

	c.val, c.err = fn()
}
