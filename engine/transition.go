package engine

import (
	"fmt"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
)

// transition mutates a private copy of the current checkpoint into its
// successor. It validates its own preconditions so it can be re-applied
// safely to a freshly loaded checkpoint.
type transition func(cp *checkpoint.Checkpoint) error

func (e *Engine) advance(executed string, out checkpoint.State) transition {
	return func(cp *checkpoint.Checkpoint) error {
		if cp.Status != checkpoint.StatusRunning || cp.NextNode != executed {
			return fmt.Errorf("%w: advance past %q from %s at %q",
				waypoint.ErrInvalidTransition, executed, cp.Status, cp.NextNode)
		}
		next, _ := e.registry.Next(executed)
		cp.State = out.Clone()
		cp.LastNode = executed
		cp.NextNode = next
		if cp.ApprovedNode == executed {
			cp.ApprovedNode = ""
		}
		return nil
	}
}

func complete(cp *checkpoint.Checkpoint) error {
	if cp.Status != checkpoint.StatusRunning || cp.HasNext() {
		return fmt.Errorf("%w: complete from %s at %q",
			waypoint.ErrInvalidTransition, cp.Status, cp.NextNode)
	}
	cp.Status = checkpoint.StatusCompleted
	return nil
}

func (e *Engine) pause(gated string) transition {
	return func(cp *checkpoint.Checkpoint) error {
		if cp.NextNode != gated || !e.gates.Blocks(cp) {
			return fmt.Errorf("%w: pause at %q from %s at %q",
				waypoint.ErrInvalidTransition, gated, cp.Status, cp.NextNode)
		}
		cp.Status = checkpoint.StatusWaitingApproval
		return nil
	}
}

func failNode(nodeName string, cause error) transition {
	return func(cp *checkpoint.Checkpoint) error {
		if cp.Status != checkpoint.StatusRunning || cp.NextNode != nodeName {
			return fmt.Errorf("%w: fail %q from %s at %q",
				waypoint.ErrInvalidTransition, nodeName, cp.Status, cp.NextNode)
		}
		cp.Status = checkpoint.StatusFailed
		cp.State.Error = &checkpoint.Failure{
			Node:    nodeName,
			Kind:    checkpoint.FailureNode,
			Message: cause.Error(),
		}
		return nil
	}
}

func checkWaiting(cp *checkpoint.Checkpoint) error {
	if cp.Status != checkpoint.StatusWaitingApproval {
		return fmt.Errorf("%w: thread %s is %s", waypoint.ErrNotWaitingForApproval, cp.ThreadID, cp.Status)
	}
	return nil
}

func approve(cp *checkpoint.Checkpoint) error {
	if err := checkWaiting(cp); err != nil {
		return err
	}
	cp.Status = checkpoint.StatusRunning
	cp.ApprovedNode = cp.NextNode
	return nil
}

func reject(cp *checkpoint.Checkpoint) error {
	if err := checkWaiting(cp); err != nil {
		return err
	}
	cp.Status = checkpoint.StatusFailed
	cp.State.Error = &checkpoint.Failure{
		Node:    cp.NextNode,
		Kind:    checkpoint.FailureRejected,
		Message: fmt.Sprintf("rejected before %s", cp.NextNode),
	}
	return nil
}

// atSequence guards t so it only applies to the checkpoint at sequence.
// A reload after a stale save therefore cannot carry a decision onto a
// later gate.
func atSequence(sequence int64, t transition) transition {
	return func(cp *checkpoint.Checkpoint) error {
		if cp.Sequence != sequence {
			return fmt.Errorf("%w: thread %s moved from sequence %d to %d",
				waypoint.ErrNotWaitingForApproval, cp.ThreadID, sequence, cp.Sequence)
		}
		return t(cp)
	}
}
