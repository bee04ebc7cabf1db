package capability

import "context"

// Handler is one capability method invocation: an opaque payload in, an
// opaque response out.
type Handler func(ctx context.Context, method string, payload []byte) ([]byte, error)

// Middleware wraps a Handler to add cross-cutting behavior around capability
// invocations. Middleware executes in FIFO order (first installed wraps
// first, onion model).
//
// Example:
//
//	timing := func(next capability.Handler) capability.Handler {
//	    return func(ctx context.Context, method string, payload []byte) ([]byte, error) {
//	        start := time.Now()
//	        defer func() { log.Printf("%s took %s", method, time.Since(start)) }()
//	        return next(ctx, method, payload)
//	    }
//	}
type Middleware func(next Handler) Handler

// Chain applies middleware to a handler in FIFO order.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
