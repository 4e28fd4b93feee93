// Package netop adapts blocking net calls into operations a corun task
// can await. Each call runs on a goroutine of its own while the task is
// parked, and is aborted when the task's context is done.
//
// Errors follow the Yield: they are raised at the call site unless the
// Yield carries a redirect slot.
package netop

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/webriots/corun"
)

// do awaits fn, calling abort if the task's context ends first.
func do[T any](y corun.Yield, abort func(), fn func() (T, error)) T {
	ctx := y.Context()
	return corun.Await(y, func(h corun.Handler[T]) {
		stop := context.AfterFunc(ctx, abort)
		go func() {
			v, err := fn()
			stop()
			if err != nil && ctx.Err() != nil {
				err = context.Cause(ctx)
			}
			h(err, v)
		}()
	})
}

// Accept waits for the next connection on l. Ending the task's context
// closes l.
func Accept(y corun.Yield, l net.Listener) net.Conn {
	return do(y, func() { _ = l.Close() }, l.Accept)
}

// Read reads at most len(p) bytes from c.
func Read(y corun.Yield, c net.Conn, p []byte) int {
	return do(y, expire(c), func() (int, error) { return c.Read(p) })
}

// ReadFull reads exactly len(p) bytes from c.
func ReadFull(y corun.Yield, c net.Conn, p []byte) int {
	return do(y, expire(c), func() (int, error) { return io.ReadFull(c, p) })
}

// Write writes all of p to c.
func Write(y corun.Yield, c net.Conn, p []byte) int {
	return do(y, expire(c), func() (int, error) { return c.Write(p) })
}

// Dial connects to address on the named network.
func Dial(y corun.Yield, network, address string) net.Conn {
	var d net.Dialer
	ctx := y.Context()
	return do(y, func() {}, func() (net.Conn, error) {
		return d.DialContext(ctx, network, address)
	})
}

// expire unblocks pending I/O on c.
func expire(c net.Conn) func() {
	return func() { _ = c.SetDeadline(time.Now()) }
}
