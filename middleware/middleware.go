package middleware

import (
	"context"
	"time"

	"github.com/xraph/waypoint/id"
)

// Call describes one node execution.
type Call struct {
	ThreadID id.ThreadID
	Node     string
	// Sequence is the sequence of the checkpoint the node runs against.
	Sequence int64
	// Timeout is the node's execution deadline. Zero means none.
	Timeout time.Duration
}

// Handler is the terminal function that executes the node.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the call being executed, and the
// next handler to call.
type Middleware func(ctx context.Context, c *Call, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → node
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, c, prev)
			}
		}
		return h(ctx)
	}
}
