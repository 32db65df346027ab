package session

import (
	"fmt"
	"math"
	"time"

	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/node"
)

// Progress counts completed nodes out of the registry length.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Status is the externally visible view of a thread.
type Status struct {
	ThreadID    string            `json:"thread_id"`
	Status      checkpoint.Status `json:"status"`
	Message     string            `json:"message"`
	CurrentNode string            `json:"current_node"`
	LastNode    string            `json:"last_node,omitempty"`
	// NextNode is nil once nothing is left to run.
	NextNode *string          `json:"next_node"`
	Progress Progress         `json:"progress"`
	Data     checkpoint.State `json:"data"`
	// RequiresApproval is true exactly when Status is waiting_approval.
	RequiresApproval bool `json:"requires_approval"`
	// RetryAfter is the suggested poll interval in seconds; nil once the
	// thread is terminal.
	RetryAfter *int  `json:"retry_after"`
	Sequence   int64 `json:"sequence"`
}

// Describe builds the status payload for cp.
func Describe(reg *node.Registry, cp *checkpoint.Checkpoint, pollInterval time.Duration) *Status {
	s := &Status{
		ThreadID:         cp.ThreadID.String(),
		Status:           cp.Status,
		Message:          message(cp),
		CurrentNode:      currentNode(cp),
		LastNode:         cp.LastNode,
		Progress:         Progress{Current: reg.Completed(cp.LastNode), Total: reg.Len()},
		Data:             cp.State.Clone(),
		RequiresApproval: cp.Status == checkpoint.StatusWaitingApproval,
		Sequence:         cp.Sequence,
	}
	if cp.HasNext() {
		next := cp.NextNode
		s.NextNode = &next
	}
	if !cp.Status.Terminal() {
		secs := max(int(math.Ceil(pollInterval.Seconds())), 1)
		s.RetryAfter = &secs
	}
	return s
}

func currentNode(cp *checkpoint.Checkpoint) string {
	switch {
	case cp.Status == checkpoint.StatusFailed && cp.State.Error != nil:
		return cp.State.Error.Node
	case cp.HasNext():
		return cp.NextNode
	default:
		return cp.LastNode
	}
}

func message(cp *checkpoint.Checkpoint) string {
	switch cp.Status {
	case checkpoint.StatusRunning:
		if !cp.HasNext() {
			return "Finishing workflow…"
		}
		return fmt.Sprintf("Running %s…", cp.NextNode)
	case checkpoint.StatusWaitingApproval:
		return fmt.Sprintf("Approval required before %s", cp.NextNode)
	case checkpoint.StatusCompleted:
		if cp.State.Output != "" {
			return cp.State.Output
		}
		return "Workflow completed"
	case checkpoint.StatusFailed:
		f := cp.State.Error
		switch {
		case f == nil:
			return "Workflow failed"
		case f.Kind == checkpoint.FailureRejected:
			return fmt.Sprintf("Rejected before %s", f.Node)
		default:
			return f.Message
		}
	default:
		return string(cp.Status)
	}
}
