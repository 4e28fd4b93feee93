package corun

import (
	"context"
)

// yieldContextKey is a unique type used as a key for storing Yield
// values in a context.
type yieldContextKey struct{}

// withYieldContext creates a new context with y stored in it.
func withYieldContext(ctx context.Context, y Yield) context.Context {
	return context.WithValue(ctx, yieldContextKey{}, y)
}

// YieldFromContext retrieves the Yield of the task a context belongs
// to. The returned Yield never carries a redirect slot.
func YieldFromContext(ctx context.Context) (Yield, bool) {
	val, ok := ctx.Value(yieldContextKey{}).(Yield)
	return val, ok
}

// MustYieldFromContext retrieves the Yield from a context, panicking
// if there is none. Code reached only from task bodies uses it to
// avoid threading the Yield by hand.
func MustYieldFromContext(ctx context.Context) Yield {
	val, ok := YieldFromContext(ctx)
	if !ok {
		panic("corun: yield not found in context")
	}
	return val
}
