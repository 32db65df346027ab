package middleware

import (
	"context"
	"log/slog"
)

// Timeout returns middleware that enforces a per-node execution deadline.
// If the call has a non-zero Timeout, a context.WithTimeout wraps the
// node. Nodes are expected to honour ctx and return its error.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		if c.Timeout > 0 {
			logger.Debug("node timeout set",
				slog.String("thread_id", c.ThreadID.String()),
				slog.String("node", c.Node),
				slog.Duration("timeout", c.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
