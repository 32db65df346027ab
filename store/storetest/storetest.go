// Package storetest provides a conformance suite that every checkpoint
// store backend runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
	"github.com/xraph/waypoint/store"
)

// Factory returns an empty, migrated store. The suite closes nothing; the
// factory registers its own cleanup.
type Factory func(t *testing.T) store.Store

// Backends round timestamps to their native precision.
var approxTime = cmpopts.EquateApproxTime(time.Millisecond)

// Run exercises the checkpoint contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("SaveLoad", func(t *testing.T) { testSaveLoad(t, newStore(t)) })
	t.Run("LoadMissing", func(t *testing.T) { testLoadMissing(t, newStore(t)) })
	t.Run("SequenceRules", func(t *testing.T) { testSequenceRules(t, newStore(t)) })
	t.Run("StaleSaveLeavesDocument", func(t *testing.T) { testStaleSaveLeavesDocument(t, newStore(t)) })
	t.Run("ConcurrentWriters", func(t *testing.T) { testConcurrentWriters(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, newStore(t)) })
}

// Sample returns a populated initial checkpoint.
func Sample() *checkpoint.Checkpoint {
	state := checkpoint.State{Input: "quarterly revenue"}
	_ = state.SetResult("orchestrator", map[string]string{"intent": "reports"})
	_ = state.SetExtra("locale", "en-GB")
	return checkpoint.New(id.NewThreadID(), "orchestrator", state)
}

// Next returns the successor of cp with the sequence advanced by one.
func Next(cp *checkpoint.Checkpoint, mutate func(*checkpoint.Checkpoint)) *checkpoint.Checkpoint {
	n := cp.Clone()
	n.Sequence++
	n.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(n)
	}
	return n
}

func mustSave(t *testing.T, s store.Store, cp *checkpoint.Checkpoint) {
	t.Helper()
	if err := s.Save(context.Background(), cp); err != nil {
		t.Fatalf("Save(seq %d): %v", cp.Sequence, err)
	}
}

func testSaveLoad(t *testing.T, s store.Store) {
	ctx := context.Background()
	cp := Sample()
	mustSave(t, s, cp)

	got, err := s.Load(ctx, cp.ThreadID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(cp, got, approxTime); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	next := Next(cp, func(c *checkpoint.Checkpoint) {
		c.Status = checkpoint.StatusWaitingApproval
		c.LastNode = "orchestrator"
		c.NextNode = "report_identifier"
		c.State.Error = &checkpoint.Failure{Node: "x", Kind: checkpoint.FailureNode, Message: "m"}
	})
	mustSave(t, s, next)

	got, err = s.Load(ctx, cp.ThreadID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(next, got, approxTime); diff != "" {
		t.Errorf("updated mismatch (-want +got):\n%s", diff)
	}
}

func testLoadMissing(t *testing.T, s store.Store) {
	_, err := s.Load(context.Background(), id.NewThreadID())
	if !errors.Is(err, waypoint.ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
}

func testSequenceRules(t *testing.T, s store.Store) {
	cp := Sample()

	missing := cp.Clone()
	missing.Sequence = 1
	if err := s.Save(context.Background(), missing); !errors.Is(err, waypoint.ErrStaleCheckpoint) {
		t.Fatalf("seq 1 on empty thread: expected ErrStaleCheckpoint, got %v", err)
	}

	mustSave(t, s, cp)

	tests := []struct {
		name string
		seq  int64
	}{
		{"recreate", 0},
		{"skip ahead", 2},
		{"far ahead", 10},
		{"negative", -1},
	}
	for _, tt := range tests {
		bad := cp.Clone()
		bad.Sequence = tt.seq
		if err := s.Save(context.Background(), bad); !errors.Is(err, waypoint.ErrStaleCheckpoint) {
			t.Errorf("%s: expected ErrStaleCheckpoint, got %v", tt.name, err)
		}
	}

	mustSave(t, s, Next(cp, nil))
}

func testStaleSaveLeavesDocument(t *testing.T, s store.Store) {
	ctx := context.Background()
	cp := Sample()
	mustSave(t, s, cp)
	one := Next(cp, func(c *checkpoint.Checkpoint) { c.NextNode = "report_identifier" })
	mustSave(t, s, one)

	stale := Next(cp, func(c *checkpoint.Checkpoint) { c.NextNode = "summary_agent" })
	if err := s.Save(ctx, stale); !errors.Is(err, waypoint.ErrStaleCheckpoint) {
		t.Fatalf("expected ErrStaleCheckpoint, got %v", err)
	}

	got, err := s.Load(ctx, cp.ThreadID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.NextNode != "report_identifier" || got.Sequence != 1 {
		t.Fatalf("stale save modified document: next=%q seq=%d", got.NextNode, got.Sequence)
	}
}

func testConcurrentWriters(t *testing.T, s store.Store) {
	cp := Sample()
	mustSave(t, s, cp)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := Next(cp, func(c *checkpoint.Checkpoint) {
				c.State.Output = string(rune('a' + i))
			})
			err := s.Save(context.Background(), next)
			switch {
			case err == nil:
				mu.Lock()
				wins++
				mu.Unlock()
			case !errors.Is(err, waypoint.ErrStaleCheckpoint):
				t.Errorf("writer %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winning writer, got %d", wins)
	}
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	var running []*checkpoint.Checkpoint
	for i := range 5 {
		cp := Sample()
		cp.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		cp.UpdatedAt = cp.CreatedAt
		mustSave(t, s, cp)
		if i%2 == 0 {
			running = append(running, cp)
			continue
		}
		mustSave(t, s, Next(cp, func(c *checkpoint.Checkpoint) { c.Status = checkpoint.StatusWaitingApproval }))
	}

	all, err := s.List(ctx, checkpoint.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("List all = %d, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Fatal("List not ordered by creation time")
		}
	}

	got, err := s.List(ctx, checkpoint.ListOpts{Status: checkpoint.StatusRunning})
	if err != nil {
		t.Fatalf("List running: %v", err)
	}
	if len(got) != len(running) {
		t.Fatalf("List running = %d, want %d", len(got), len(running))
	}
	for i, cp := range got {
		if !cp.ThreadID.Equal(running[i].ThreadID) {
			t.Errorf("running[%d] = %s, want %s", i, cp.ThreadID, running[i].ThreadID)
		}
	}

	page, err := s.List(ctx, checkpoint.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if len(page) != 2 || !page[0].ThreadID.Equal(all[1].ThreadID) {
		t.Fatalf("unexpected page: %d items", len(page))
	}

	past, err := s.List(ctx, checkpoint.ListOpts{Offset: 10})
	if err != nil {
		t.Fatalf("List past end: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("List past end = %d, want 0", len(past))
	}
}

func testHistory(t *testing.T, s store.Store) {
	hs, ok := s.(checkpoint.HistoryStore)
	if !ok {
		t.Skip("backend keeps no history")
	}
	ctx := context.Background()

	cp := Sample()
	mustSave(t, s, cp)
	prev := cp
	for range 3 {
		prev = Next(prev, nil)
		mustSave(t, s, prev)
	}

	revs, err := hs.History(ctx, cp.ThreadID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(revs) != 4 {
		t.Fatalf("History = %d revisions, want 4", len(revs))
	}
	for i, rev := range revs {
		if rev.Sequence != int64(i) {
			t.Errorf("revision %d has sequence %d", i, rev.Sequence)
		}
	}

	if _, err := hs.History(ctx, id.NewThreadID()); !errors.Is(err, waypoint.ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}
}
