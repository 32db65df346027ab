package checkpoint

import (
	"time"

	"github.com/xraph/waypoint/id"
)

// Checkpoint is the atomic unit of durability for one thread.
type Checkpoint struct {
	ThreadID id.ThreadID `json:"thread_id"`
	State    State       `json:"state"`

	// NextNode is the node scheduled to run next; empty once the run has
	// nothing left to execute.
	NextNode string `json:"next_node,omitempty"`

	// LastNode is the most recently completed node.
	LastNode string `json:"last_node,omitempty"`

	Status Status `json:"status"`

	// Sequence increases by exactly one on every persisted write.
	Sequence int64 `json:"sequence"`

	// ApprovedNode names the gated node an approver released. It is
	// cleared once that node executes.
	ApprovedNode string `json:"approved_node,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns the initial checkpoint of a thread: sequence 0, running,
// positioned at firstNode.
func New(threadID id.ThreadID, firstNode string, state State) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		ThreadID:  threadID,
		State:     state.Clone(),
		NextNode:  firstNode,
		Status:    StatusRunning,
		Sequence:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of c.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.State = c.State.Clone()
	return &out
}

// HasNext reports whether a node is still scheduled.
func (c *Checkpoint) HasNext() bool { return c.NextNode != "" }
