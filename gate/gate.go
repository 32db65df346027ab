// Package gate defines the approval gate set: the nodes that must not run
// until an external approval arrives.
//
// Gating is evaluated strictly before a node executes. [Set.Blocks] is the
// single decision point the engine consults on every loop iteration.
package gate

import (
	"fmt"
	"slices"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/node"
)

// Set is an immutable set of gated node names.
type Set struct {
	names map[string]struct{}
}

// NewSet builds a gate set. Every name must be registered in reg.
func NewSet(reg *node.Registry, names ...string) (Set, error) {
	s := Set{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if !reg.Contains(n) {
			return Set{}, fmt.Errorf("%w: gate %q", waypoint.ErrUnknownNode, n)
		}
		s.names[n] = struct{}{}
	}
	return s, nil
}

// Contains reports whether name is gated.
func (s Set) Contains(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len returns the number of gates.
func (s Set) Len() int { return len(s.names) }

// Names returns the gated node names, sorted.
func (s Set) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Blocks reports whether cp must stop before executing its next node: the
// thread is running, the next node is gated, and that node has not been
// released by an approval.
func (s Set) Blocks(cp *checkpoint.Checkpoint) bool {
	if cp.Status != checkpoint.StatusRunning || !cp.HasNext() {
		return false
	}
	if !s.Contains(cp.NextNode) {
		return false
	}
	return cp.ApprovedNode != cp.NextNode
}
