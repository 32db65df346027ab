package checkpoint

import (
	"context"

	"github.com/xraph/waypoint/id"
)

// ListOpts controls pagination for checkpoint list queries.
type ListOpts struct {
	// Limit is the maximum number of checkpoints to return. Zero means no limit.
	Limit int
	// Offset is the number of checkpoints to skip.
	Offset int
	// Status filters by status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for checkpoints.
type Store interface {
	// Load retrieves the latest checkpoint for a thread. Returns
	// waypoint.ErrThreadNotFound if none exists.
	Load(ctx context.Context, threadID id.ThreadID) (*Checkpoint, error)

	// Save atomically replaces the thread's checkpoint. A thread without a
	// document accepts only Sequence 0; otherwise cp.Sequence must be the
	// stored sequence plus one. Any other sequence fails with
	// waypoint.ErrStaleCheckpoint and leaves the stored document unchanged.
	Save(ctx context.Context, cp *Checkpoint) error

	// List returns checkpoints matching opts ordered by creation time.
	List(ctx context.Context, opts ListOpts) ([]*Checkpoint, error)
}

// HistoryStore is implemented by backends that retain every persisted
// revision of a thread.
type HistoryStore interface {
	// History returns all revisions of a thread in sequence order.
	History(ctx context.Context, threadID id.ThreadID) ([]*Checkpoint, error)
}
