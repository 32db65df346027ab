package worker

import (
	"context"

	"github.com/xraph/waypoint/id"
)

// Inline is a Scheduler that runs the thread on the caller's goroutine
// before Schedule returns. It suits tests and single-shot CLIs where
// deterministic completion matters more than latency.
type Inline RunFunc

// Schedule runs the thread synchronously and returns its error.
func (f Inline) Schedule(ctx context.Context, threadID id.ThreadID) error {
	return f(ctx, threadID)
}
