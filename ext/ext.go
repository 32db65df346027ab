package ext

import (
	"context"
	"time"

	"github.com/xraph/waypoint/checkpoint"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Thread lifecycle hooks
// ──────────────────────────────────────────────────

// ThreadStarted is called after the initial checkpoint of a thread is saved.
type ThreadStarted interface {
	OnThreadStarted(ctx context.Context, cp *checkpoint.Checkpoint) error
}

// GateReached is called when a thread pauses in front of a gated node.
// cp.NextNode names the gate.
type GateReached interface {
	OnGateReached(ctx context.Context, cp *checkpoint.Checkpoint) error
}

// ThreadApproved is called after an approval decision is persisted.
type ThreadApproved interface {
	OnThreadApproved(ctx context.Context, cp *checkpoint.Checkpoint) error
}

// ThreadRejected is called after a rejection decision is persisted.
type ThreadRejected interface {
	OnThreadRejected(ctx context.Context, cp *checkpoint.Checkpoint) error
}

// ThreadCompleted is called when the last node of a thread finishes.
type ThreadCompleted interface {
	OnThreadCompleted(ctx context.Context, cp *checkpoint.Checkpoint) error
}

// ThreadFailed is called when a thread enters the failed status.
type ThreadFailed interface {
	OnThreadFailed(ctx context.Context, cp *checkpoint.Checkpoint, err error) error
}

// ──────────────────────────────────────────────────
// Node lifecycle hooks
// ──────────────────────────────────────────────────

// NodeCompleted is called after a node finishes and its checkpoint is saved.
type NodeCompleted interface {
	OnNodeCompleted(ctx context.Context, cp *checkpoint.Checkpoint, node string, elapsed time.Duration) error
}

// NodeFailed is called when a node returns an error.
type NodeFailed interface {
	OnNodeFailed(ctx context.Context, cp *checkpoint.Checkpoint, node string, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
