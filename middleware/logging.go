package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs node start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		logger.Debug("node started",
			slog.String("thread_id", c.ThreadID.String()),
			slog.String("node", c.Node),
			slog.Int64("sequence", c.Sequence),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("node failed",
				slog.String("thread_id", c.ThreadID.String()),
				slog.String("node", c.Node),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("node completed",
				slog.String("thread_id", c.ThreadID.String()),
				slog.String("node", c.Node),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
