package gate_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/gate"
	"github.com/xraph/waypoint/id"
	"github.com/xraph/waypoint/node"
)

func registry() *node.Registry {
	fn := func(_ context.Context, s checkpoint.State) (checkpoint.State, error) { return s, nil }
	return node.MustRegistry(
		node.Spec{Name: "A", Func: fn},
		node.Spec{Name: "B", Func: fn},
		node.Spec{Name: "C", Func: fn},
	)
}

func TestNewSet_UnknownNode(t *testing.T) {
	_, err := gate.NewSet(registry(), "B", "Z")
	if !errors.Is(err, waypoint.ErrUnknownNode) {
		t.Fatalf("err = %v, want ErrUnknownNode", err)
	}
}

func TestSet_Names(t *testing.T) {
	s, err := gate.NewSet(registry(), "C", "A")
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if got := s.Names(); !slices.Equal(got, []string{"A", "C"}) {
		t.Errorf("Names = %v", got)
	}
	if s.Len() != 2 || !s.Contains("A") || s.Contains("B") {
		t.Error("Contains/Len mismatch")
	}
}

func TestSet_Blocks(t *testing.T) {
	s, err := gate.NewSet(registry(), "B")
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	tests := []struct {
		name     string
		next     string
		status   checkpoint.Status
		approved string
		want     bool
	}{
		{"ungated next", "A", checkpoint.StatusRunning, "", false},
		{"gated next", "B", checkpoint.StatusRunning, "", true},
		{"gated next approved", "B", checkpoint.StatusRunning, "B", false},
		{"approval for other node", "B", checkpoint.StatusRunning, "A", true},
		{"already waiting", "B", checkpoint.StatusWaitingApproval, "", false},
		{"failed", "B", checkpoint.StatusFailed, "", false},
		{"no next", "", checkpoint.StatusRunning, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := checkpoint.New(id.NewThreadID(), tt.next, checkpoint.State{})
			cp.Status = tt.status
			cp.ApprovedNode = tt.approved
			if got := s.Blocks(cp); got != tt.want {
				t.Errorf("Blocks = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZeroSet(t *testing.T) {
	var s gate.Set
	if s.Contains("A") || s.Len() != 0 {
		t.Error("zero set should be empty")
	}
	cp := checkpoint.New(id.NewThreadID(), "A", checkpoint.State{})
	if s.Blocks(cp) {
		t.Error("zero set should never block")
	}
}
