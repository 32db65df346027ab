package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/engine"
	"github.com/xraph/waypoint/gate"
	"github.com/xraph/waypoint/id"
	"github.com/xraph/waypoint/middleware"
	"github.com/xraph/waypoint/node"
	"github.com/xraph/waypoint/store/memory"
)

// ──────────────────────────────────────────────────
// Test harness
// ──────────────────────────────────────────────────

// recorder counts node executions.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// appendNode records its execution and appends its name to Output.
func appendNode(rec *recorder, name string) node.Spec {
	return node.Spec{
		Name: name,
		Func: func(_ context.Context, s checkpoint.State) (checkpoint.State, error) {
			rec.record(name)
			s.Output += name
			return s, nil
		},
	}
}

func failingNode(rec *recorder, name string, err error) node.Spec {
	return node.Spec{
		Name: name,
		Func: func(_ context.Context, s checkpoint.State) (checkpoint.State, error) {
			rec.record(name)
			return s, err
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	eng   *engine.Engine
	store *memory.Store
	rec   *recorder
}

func newHarness(t *testing.T, specs []node.Spec, gated []string, opts ...engine.Option) *harness {
	t.Helper()
	reg, err := node.NewRegistry(specs...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	gates, err := gate.NewSet(reg, gated...)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	s := memory.New()
	opts = append([]engine.Option{engine.WithInlineScheduler(), engine.WithLogger(discardLogger())}, opts...)
	eng, err := engine.New(reg, gates, s, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return &harness{eng: eng, store: s}
}

// abc builds the [A, B, C] registry used by the end-to-end scenarios.
func abc(t *testing.T, gated []string, opts ...engine.Option) *harness {
	t.Helper()
	rec := &recorder{}
	h := newHarness(t, []node.Spec{
		appendNode(rec, "A"),
		appendNode(rec, "B"),
		appendNode(rec, "C"),
	}, gated, opts...)
	h.rec = rec
	return h
}

func (h *harness) poll(t *testing.T, threadID id.ThreadID) *checkpoint.Checkpoint {
	t.Helper()
	cp, err := h.eng.Poll(context.Background(), threadID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	return cp
}

func (h *harness) start(t *testing.T) *checkpoint.Checkpoint {
	t.Helper()
	cp, err := h.eng.StartThread(context.Background(), id.NewThreadID(), checkpoint.State{Input: "go"})
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}
	return cp
}

func assertStatus(t *testing.T, cp *checkpoint.Checkpoint, status checkpoint.Status, next string) {
	t.Helper()
	if cp.Status != status {
		t.Errorf("status = %q, want %q", cp.Status, status)
	}
	if cp.NextNode != next {
		t.Errorf("next node = %q, want %q", cp.NextNode, next)
	}
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestNew_RequiresStore(t *testing.T) {
	reg := node.MustRegistry(appendNode(&recorder{}, "A"))
	_, err := engine.New(reg, gate.Set{}, nil)
	if !errors.Is(err, waypoint.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := engine.New(nil, gate.Set{}, memory.New())
	if !errors.Is(err, waypoint.ErrInvalidRegistry) {
		t.Fatalf("expected ErrInvalidRegistry, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// End-to-end scenarios
// ──────────────────────────────────────────────────

func TestEngine_ABC_ApproveCompletes(t *testing.T) {
	h := abc(t, []string{"B"})
	ctx := context.Background()

	initial := h.start(t)
	assertStatus(t, initial, checkpoint.StatusRunning, "A")
	if initial.Sequence != 0 {
		t.Errorf("initial sequence = %d, want 0", initial.Sequence)
	}

	paused := h.poll(t, initial.ThreadID)
	assertStatus(t, paused, checkpoint.StatusWaitingApproval, "B")
	if paused.LastNode != "A" {
		t.Errorf("last node = %q, want A", paused.LastNode)
	}
	if h.rec.count("B") != 0 {
		t.Fatal("gated node executed before approval")
	}

	done, err := h.eng.Decide(ctx, initial.ThreadID, true)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	assertStatus(t, done, checkpoint.StatusCompleted, "")
	if done.LastNode != "C" {
		t.Errorf("last node = %q, want C", done.LastNode)
	}
	if done.State.Output != "ABC" {
		t.Errorf("output = %q, want ABC", done.State.Output)
	}
	if done.ApprovedNode != "" {
		t.Errorf("approved node = %q, want cleared", done.ApprovedNode)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, h.rec.all()); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_ABC_RejectFails(t *testing.T) {
	h := abc(t, []string{"B"})
	ctx := context.Background()

	cp := h.start(t)
	rejected, err := h.eng.Decide(ctx, cp.ThreadID, false)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	assertStatus(t, rejected, checkpoint.StatusFailed, "B")
	if rejected.State.Error == nil || rejected.State.Error.Kind != checkpoint.FailureRejected {
		t.Fatalf("expected rejection marker, got %+v", rejected.State.Error)
	}
	if rejected.State.Error.Node != "B" {
		t.Errorf("failure node = %q, want B", rejected.State.Error.Node)
	}

	for _, approved := range []bool{true, false} {
		if _, err := h.eng.Decide(ctx, cp.ThreadID, approved); !errors.Is(err, waypoint.ErrNotWaitingForApproval) {
			t.Fatalf("second Decide(%v): expected ErrNotWaitingForApproval, got %v", approved, err)
		}
	}

	// Running a failed thread is a no-op.
	if err := h.eng.Run(ctx, cp.ThreadID); err != nil {
		t.Fatalf("Run on failed thread: %v", err)
	}
	final := h.poll(t, cp.ThreadID)
	assertStatus(t, final, checkpoint.StatusFailed, "B")
	if final.Sequence != rejected.Sequence {
		t.Errorf("failed thread was written again: seq %d -> %d", rejected.Sequence, final.Sequence)
	}
	if h.rec.count("B") != 0 || h.rec.count("C") != 0 {
		t.Fatalf("nodes after a rejected gate executed: %v", h.rec.all())
	}
}

func TestEngine_RejectAfterEarlierApproval(t *testing.T) {
	h := abc(t, []string{"A", "C"})
	ctx := context.Background()

	cp := h.start(t)
	assertStatus(t, h.poll(t, cp.ThreadID), checkpoint.StatusWaitingApproval, "A")

	paused, err := h.eng.Decide(ctx, cp.ThreadID, true)
	if err != nil {
		t.Fatalf("approve A: %v", err)
	}
	assertStatus(t, paused, checkpoint.StatusWaitingApproval, "C")

	rejected, err := h.eng.Decide(ctx, cp.ThreadID, false)
	if err != nil {
		t.Fatalf("reject C: %v", err)
	}
	assertStatus(t, rejected, checkpoint.StatusFailed, "C")

	if _, err := h.eng.Decide(ctx, cp.ThreadID, true); !errors.Is(err, waypoint.ErrNotWaitingForApproval) {
		t.Fatalf("expected ErrNotWaitingForApproval, got %v", err)
	}
	if h.rec.count("C") != 0 {
		t.Fatal("rejected gate executed")
	}
}

func TestEngine_ApproveThenLaterNodeFails(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("warehouse offline")
	h := newHarness(t, []node.Spec{
		appendNode(rec, "A"),
		appendNode(rec, "B"),
		failingNode(rec, "C", boom),
	}, []string{"B"})
	ctx := context.Background()

	cp := h.start(t)
	final, err := h.eng.Decide(ctx, cp.ThreadID, true)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	assertStatus(t, final, checkpoint.StatusFailed, "C")
	if final.LastNode != "B" {
		t.Errorf("last node = %q, want B", final.LastNode)
	}
	if final.State.Error == nil || final.State.Error.Kind != checkpoint.FailureNode {
		t.Fatalf("expected node failure, got %+v", final.State.Error)
	}
	if !strings.Contains(final.State.Error.Message, "warehouse offline") {
		t.Errorf("failure message = %q", final.State.Error.Message)
	}
}

func TestEngine_PollIdempotentAfterCompletion(t *testing.T) {
	h := abc(t, nil)
	cp := h.start(t)

	first := h.poll(t, cp.ThreadID)
	assertStatus(t, first, checkpoint.StatusCompleted, "")
	for range 5 {
		if diff := cmp.Diff(first, h.poll(t, cp.ThreadID)); diff != "" {
			t.Fatalf("poll not idempotent (-first +again):\n%s", diff)
		}
	}
}

func TestEngine_SequenceStrictlyIncreases(t *testing.T) {
	h := abc(t, []string{"B"})
	ctx := context.Background()

	cp := h.start(t)
	if _, err := h.eng.Decide(ctx, cp.ThreadID, true); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	revs, err := h.store.History(ctx, cp.ThreadID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// initial, A, pause at B, approve, B, C, complete
	if len(revs) != 7 {
		t.Fatalf("expected 7 revisions, got %d", len(revs))
	}
	for i, rev := range revs {
		if rev.Sequence != int64(i) {
			t.Errorf("revision %d has sequence %d", i, rev.Sequence)
		}
	}
}

func TestEngine_GateBiconditional(t *testing.T) {
	for _, gated := range []string{"A", "B", "C"} {
		t.Run("gate at "+gated, func(t *testing.T) {
			h := abc(t, []string{gated})
			ctx := context.Background()

			cp := h.start(t)
			paused := h.poll(t, cp.ThreadID)
			assertStatus(t, paused, checkpoint.StatusWaitingApproval, gated)
			if h.rec.count(gated) != 0 {
				t.Fatalf("gate %s executed before approval", gated)
			}
			if !h.eng.Gates().Contains(paused.NextNode) {
				t.Fatal("waiting thread is not in front of a gate")
			}

			done, err := h.eng.Decide(ctx, cp.ThreadID, true)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			assertStatus(t, done, checkpoint.StatusCompleted, "")
			if h.rec.count(gated) != 1 {
				t.Fatalf("gate %s executed %d times, want 1", gated, h.rec.count(gated))
			}

			// Every settled revision obeys the biconditional.
			revs, _ := h.store.History(ctx, cp.ThreadID)
			for _, rev := range revs {
				waiting := rev.Status == checkpoint.StatusWaitingApproval
				if waiting && (!h.eng.Gates().Contains(rev.NextNode) || rev.ApprovedNode == rev.NextNode) {
					t.Errorf("seq %d waiting but next node %q is not a pending gate", rev.Sequence, rev.NextNode)
				}
			}
		})
	}
}

func TestEngine_NoGatesCompletesImmediately(t *testing.T) {
	h := abc(t, nil)
	cp := h.start(t)
	done := h.poll(t, cp.ThreadID)
	assertStatus(t, done, checkpoint.StatusCompleted, "")
	if done.State.Output != "ABC" {
		t.Errorf("output = %q, want ABC", done.State.Output)
	}
}

// ──────────────────────────────────────────────────
// Boundaries
// ──────────────────────────────────────────────────

func TestEngine_UnknownThread(t *testing.T) {
	h := abc(t, nil)
	ctx := context.Background()
	missing := id.NewThreadID()

	if _, err := h.eng.Poll(ctx, missing); !errors.Is(err, waypoint.ErrThreadNotFound) {
		t.Errorf("Poll: expected ErrThreadNotFound, got %v", err)
	}
	if _, err := h.eng.Decide(ctx, missing, true); !errors.Is(err, waypoint.ErrThreadNotFound) {
		t.Errorf("Decide: expected ErrThreadNotFound, got %v", err)
	}
	if err := h.eng.Run(ctx, missing); !errors.Is(err, waypoint.ErrThreadNotFound) {
		t.Errorf("Run: expected ErrThreadNotFound, got %v", err)
	}
}

func TestEngine_DecideWhileRunning(t *testing.T) {
	h := abc(t, []string{"C"})
	ctx := context.Background()

	// A thread persisted but not yet advanced is mid-execution.
	cp := checkpoint.New(id.NewThreadID(), "A", checkpoint.State{Input: "go"})
	if err := h.store.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := h.eng.Decide(ctx, cp.ThreadID, true); !errors.Is(err, waypoint.ErrNotWaitingForApproval) {
		t.Fatalf("expected ErrNotWaitingForApproval, got %v", err)
	}
}

func TestEngine_DecideDuringNodeExecution(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, []node.Spec{
		{
			Name: "A",
			Func: func(_ context.Context, s checkpoint.State) (checkpoint.State, error) {
				rec.record("A")
				close(entered)
				<-release
				return s, nil
			},
		},
		appendNode(rec, "B"),
		appendNode(rec, "C"),
	}, []string{"B"})
	ctx := context.Background()

	threadID := id.NewThreadID()
	if err := h.store.Save(ctx, checkpoint.New(threadID, "A", checkpoint.State{})); err != nil {
		t.Fatalf("Save: %v", err)
	}
	runDone := make(chan error, 1)
	go func() { runDone <- h.eng.Run(ctx, threadID) }()
	<-entered

	assertStatus(t, h.poll(t, threadID), checkpoint.StatusRunning, "A")

	decided := make(chan error, 1)
	go func() {
		_, err := h.eng.Decide(ctx, threadID, true)
		decided <- err
	}()
	select {
	case err := <-decided:
		if !errors.Is(err, waypoint.ErrNotWaitingForApproval) {
			t.Fatalf("expected ErrNotWaitingForApproval, got %v", err)
		}
	case <-time.After(time.Second):
		close(release)
		t.Fatal("Decide blocked behind the executing node")
	}

	close(release)
	if err := <-runDone; err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertStatus(t, h.poll(t, threadID), checkpoint.StatusWaitingApproval, "B")
	if got := rec.count("B"); got != 0 {
		t.Fatalf("gate B executed %d times without approval", got)
	}
}

func TestEngine_DecideAtStaleSequence(t *testing.T) {
	h := abc(t, []string{"B", "C"})
	ctx := context.Background()

	cp := h.poll(t, h.start(t).ThreadID)
	assertStatus(t, cp, checkpoint.StatusWaitingApproval, "B")
	if _, err := h.eng.Decide(ctx, cp.ThreadID, true); err != nil {
		t.Fatalf("approve B: %v", err)
	}
	atC := h.poll(t, cp.ThreadID)
	assertStatus(t, atC, checkpoint.StatusWaitingApproval, "C")

	// A decision made against the checkpoint at B must not land on C.
	for _, approved := range []bool{true, false} {
		if _, err := h.eng.DecideAt(ctx, cp.ThreadID, approved, cp.Sequence); !errors.Is(err, waypoint.ErrNotWaitingForApproval) {
			t.Fatalf("DecideAt(%v): expected ErrNotWaitingForApproval, got %v", approved, err)
		}
	}
	latest := h.poll(t, cp.ThreadID)
	assertStatus(t, latest, checkpoint.StatusWaitingApproval, "C")
	if latest.Sequence != atC.Sequence {
		t.Errorf("sequence moved from %d to %d", atC.Sequence, latest.Sequence)
	}

	if _, err := h.eng.DecideAt(ctx, cp.ThreadID, true, atC.Sequence); err != nil {
		t.Fatalf("DecideAt at current sequence: %v", err)
	}
	assertStatus(t, h.poll(t, cp.ThreadID), checkpoint.StatusCompleted, "")
}

func TestEngine_DecideAfterCompletion(t *testing.T) {
	h := abc(t, nil)
	cp := h.start(t)
	if _, err := h.eng.Decide(context.Background(), cp.ThreadID, true); !errors.Is(err, waypoint.ErrNotWaitingForApproval) {
		t.Fatalf("expected ErrNotWaitingForApproval, got %v", err)
	}
}

func TestEngine_StartThreadTwice(t *testing.T) {
	h := abc(t, []string{"A"})
	ctx := context.Background()
	threadID := id.NewThreadID()

	if _, err := h.eng.StartThread(ctx, threadID, checkpoint.State{}); err != nil {
		t.Fatalf("first StartThread: %v", err)
	}
	_, err := h.eng.StartThread(ctx, threadID, checkpoint.State{})
	if !errors.Is(err, waypoint.ErrThreadAlreadyExists) {
		t.Fatalf("expected ErrThreadAlreadyExists, got %v", err)
	}
}

func TestEngine_StartThreadNilIDGeneratesOne(t *testing.T) {
	h := abc(t, []string{"A"})
	cp, err := h.eng.StartThread(context.Background(), id.Nil, checkpoint.State{})
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}
	if cp.ThreadID.IsNil() || cp.ThreadID.Prefix() != id.PrefixThread {
		t.Fatalf("expected generated thread id, got %q", cp.ThreadID)
	}
}

// ──────────────────────────────────────────────────
// Concurrency
// ──────────────────────────────────────────────────

func TestEngine_ConcurrentRunsSerialize(t *testing.T) {
	rec := &recorder{}
	slow := func(name string) node.Spec {
		return node.Spec{
			Name: name,
			Func: func(_ context.Context, s checkpoint.State) (checkpoint.State, error) {
				rec.record(name)
				time.Sleep(2 * time.Millisecond)
				s.Output += name
				return s, nil
			},
		}
	}
	h := newHarness(t, []node.Spec{slow("A"), slow("B"), slow("C"), slow("D")}, nil)
	ctx := context.Background()

	cp := checkpoint.New(id.NewThreadID(), "A", checkpoint.State{})
	if err := h.store.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const runners = 16
	var wg sync.WaitGroup
	errs := make(chan error, runners)
	for range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.eng.Run(ctx, cp.ThreadID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	for _, name := range []string{"A", "B", "C", "D"} {
		if got := rec.count(name); got != 1 {
			t.Errorf("node %s executed %d times, want 1", name, got)
		}
	}

	revs, _ := h.store.History(ctx, cp.ThreadID)
	seen := map[int64]bool{}
	for i, rev := range revs {
		if seen[rev.Sequence] {
			t.Fatalf("duplicate sequence %d", rev.Sequence)
		}
		seen[rev.Sequence] = true
		if rev.Sequence != int64(i) {
			t.Errorf("revision %d has sequence %d", i, rev.Sequence)
		}
	}
	// initial + 4 nodes + completion
	if len(revs) != 6 {
		t.Errorf("expected 6 revisions, got %d", len(revs))
	}
}

func TestEngine_ConcurrentDecisionsOneWins(t *testing.T) {
	h := abc(t, []string{"B"})
	ctx := context.Background()
	cp := h.start(t)

	const deciders = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := range deciders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.eng.Decide(ctx, cp.ThreadID, i%2 == 0)
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, waypoint.ErrNotWaitingForApproval):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one decision to win, got %d", got)
	}
	if got := h.rec.count("B"); got > 1 {
		t.Fatalf("gate executed %d times", got)
	}
}

// ──────────────────────────────────────────────────
// Stale checkpoint handling
// ──────────────────────────────────────────────────

// flakyStore rejects the first staleFor saves with ErrStaleCheckpoint
// without writing.
type flakyStore struct {
	*memory.Store
	staleFor atomic.Int32
	saves    atomic.Int32
}

func (f *flakyStore) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	f.saves.Add(1)
	if cp.Sequence > 0 && f.staleFor.Add(-1) >= 0 {
		return waypoint.ErrStaleCheckpoint
	}
	return f.Store.Save(ctx, cp)
}

func newFlakyEngine(t *testing.T, staleFor int32) (*engine.Engine, *flakyStore, *recorder) {
	t.Helper()
	rec := &recorder{}
	reg := node.MustRegistry(appendNode(rec, "A"), appendNode(rec, "B"))
	fs := &flakyStore{Store: memory.New()}
	fs.staleFor.Store(staleFor)
	eng, err := engine.New(reg, gate.Set{}, fs, engine.WithInlineScheduler(), engine.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng, fs, rec
}

func TestEngine_StaleCheckpointRetriedOnce(t *testing.T) {
	eng, fs, _ := newFlakyEngine(t, 1)
	ctx := context.Background()

	cp, err := eng.StartThread(ctx, id.NewThreadID(), checkpoint.State{})
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}
	final, err := eng.Poll(ctx, cp.ThreadID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	assertStatus(t, final, checkpoint.StatusCompleted, "")
	if final.Sequence != 3 {
		t.Errorf("sequence = %d, want 3", final.Sequence)
	}
	// initial + A (stale, retried) + B + complete
	if got := fs.saves.Load(); got != 5 {
		t.Errorf("saves = %d, want 5", got)
	}
}

func TestEngine_PersistentStaleCheckpointSurfaces(t *testing.T) {
	eng, fs, _ := newFlakyEngine(t, 1000)
	ctx := context.Background()

	threadID := id.NewThreadID()
	if err := fs.Store.Save(ctx, checkpoint.New(threadID, "A", checkpoint.State{})); err != nil {
		t.Fatalf("Save: %v", err)
	}
	fs.saves.Store(0)

	err := eng.Run(ctx, threadID)
	if !errors.Is(err, waypoint.ErrStaleCheckpoint) {
		t.Fatalf("expected ErrStaleCheckpoint, got %v", err)
	}
	if got := fs.saves.Load(); got != 2 {
		t.Errorf("saves = %d, want exactly one retry", got)
	}
	cp, _ := eng.Poll(ctx, threadID)
	assertStatus(t, cp, checkpoint.StatusRunning, "A")
}

// ──────────────────────────────────────────────────
// Node failures
// ──────────────────────────────────────────────────

func TestEngine_NodePanicFailsThread(t *testing.T) {
	h := newHarness(t, []node.Spec{{
		Name: "explode",
		Func: func(context.Context, checkpoint.State) (checkpoint.State, error) {
			panic("nil report")
		},
	}}, nil)

	cp := h.start(t)
	final := h.poll(t, cp.ThreadID)
	assertStatus(t, final, checkpoint.StatusFailed, "explode")
	if final.State.Error == nil || !strings.Contains(final.State.Error.Message, "nil report") {
		t.Fatalf("expected panic message in failure, got %+v", final.State.Error)
	}
}

func TestEngine_NodeTimeoutFailsThread(t *testing.T) {
	h := newHarness(t, []node.Spec{{
		Name:    "hang",
		Timeout: 10 * time.Millisecond,
		Func: func(ctx context.Context, s checkpoint.State) (checkpoint.State, error) {
			<-ctx.Done()
			return s, ctx.Err()
		},
	}}, nil)

	cp := h.start(t)
	final := h.poll(t, cp.ThreadID)
	assertStatus(t, final, checkpoint.StatusFailed, "hang")
	if !strings.Contains(final.State.Error.Message, context.DeadlineExceeded.Error()) {
		t.Errorf("failure message = %q", final.State.Error.Message)
	}
}

func TestEngine_CancelledRunLeavesThreadRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, []node.Spec{{
		Name: "slow",
		Func: func(ctx context.Context, s checkpoint.State) (checkpoint.State, error) {
			cancel()
			<-ctx.Done()
			return s, ctx.Err()
		},
	}}, nil)

	threadID := id.NewThreadID()
	if err := h.store.Save(context.Background(), checkpoint.New(threadID, "slow", checkpoint.State{})); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := h.eng.Run(ctx, threadID); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	cp := h.poll(t, threadID)
	assertStatus(t, cp, checkpoint.StatusRunning, "slow")
	if cp.Sequence != 0 {
		t.Errorf("sequence = %d, want 0", cp.Sequence)
	}
}

func TestEngine_NodeReceivesPrivateState(t *testing.T) {
	h := newHarness(t, []node.Spec{
		{
			Name: "mutate",
			Func: func(_ context.Context, s checkpoint.State) (checkpoint.State, error) {
				if err := s.SetResult("mutate", map[string]int{"rows": 3}); err != nil {
					return s, err
				}
				return s, errors.New("discard me")
			},
		},
	}, nil)

	cp := h.start(t)
	final := h.poll(t, cp.ThreadID)
	if _, ok := final.State.Results["mutate"]; ok {
		t.Fatal("failed node leaked a partial result into the checkpoint")
	}
}

// ──────────────────────────────────────────────────
// Extensions & middleware
// ──────────────────────────────────────────────────

type eventExt struct {
	mu     sync.Mutex
	events []string
}

func (e *eventExt) Name() string { return "events" }

func (e *eventExt) add(ev string) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventExt) OnThreadStarted(context.Context, *checkpoint.Checkpoint) error {
	e.add("started")
	return nil
}

func (e *eventExt) OnGateReached(_ context.Context, cp *checkpoint.Checkpoint) error {
	e.add("gate:" + cp.NextNode)
	return nil
}

func (e *eventExt) OnThreadApproved(context.Context, *checkpoint.Checkpoint) error {
	e.add("approved")
	return nil
}

func (e *eventExt) OnNodeCompleted(_ context.Context, _ *checkpoint.Checkpoint, name string, _ time.Duration) error {
	e.add("node:" + name)
	return nil
}

func (e *eventExt) OnThreadCompleted(context.Context, *checkpoint.Checkpoint) error {
	e.add("completed")
	return nil
}

func TestEngine_EmitsLifecycleEvents(t *testing.T) {
	events := &eventExt{}
	h := abc(t, []string{"B"}, engine.WithExtension(events))

	cp := h.start(t)
	if _, err := h.eng.Decide(context.Background(), cp.ThreadID, true); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	want := []string{"started", "node:A", "gate:B", "approved", "node:B", "node:C", "completed"}
	if diff := cmp.Diff(want, events.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_CustomMiddlewareSeesCalls(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(ctx context.Context, c *middleware.Call, next middleware.Handler) error {
		mu.Lock()
		calls = append(calls, c.Node)
		mu.Unlock()
		return next(ctx)
	}
	h := abc(t, nil, engine.WithMiddleware(record))
	h.start(t)

	if diff := cmp.Diff([]string{"A", "B", "C"}, calls); diff != "" {
		t.Errorf("middleware calls mismatch (-want +got):\n%s", diff)
	}
}

// ──────────────────────────────────────────────────
// Lifecycle with the worker pool
// ──────────────────────────────────────────────────

func waitForStatus(t *testing.T, eng *engine.Engine, threadID id.ThreadID, status checkpoint.Status) *checkpoint.Checkpoint {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		cp, err := eng.Poll(context.Background(), threadID)
		if err == nil && cp.Status == status {
			return cp
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("thread %s never reached %s", threadID, status)
	return nil
}

func TestEngine_PoolEndToEnd(t *testing.T) {
	rec := &recorder{}
	reg := node.MustRegistry(appendNode(rec, "A"), appendNode(rec, "B"), appendNode(rec, "C"))
	gates, _ := gate.NewSet(reg, "B")
	eng, err := engine.New(reg, gates, memory.New(),
		engine.WithConcurrency(4),
		engine.WithLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_ = eng.Stop(stopCtx)
	}()

	cp, err := eng.StartThread(ctx, id.NewThreadID(), checkpoint.State{Input: "go"})
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}
	assertStatus(t, cp, checkpoint.StatusRunning, "A")

	waitForStatus(t, eng, cp.ThreadID, checkpoint.StatusWaitingApproval)
	if _, err := eng.Decide(ctx, cp.ThreadID, true); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	done := waitForStatus(t, eng, cp.ThreadID, checkpoint.StatusCompleted)
	if done.State.Output != "ABC" {
		t.Errorf("output = %q, want ABC", done.State.Output)
	}
}

func TestEngine_StartResumesRunningThreads(t *testing.T) {
	h := abc(t, nil)
	ctx := context.Background()

	var ids []id.ThreadID
	for range 3 {
		cp := checkpoint.New(id.NewThreadID(), "A", checkpoint.State{})
		if err := h.store.Save(ctx, cp); err != nil {
			t.Fatalf("Save: %v", err)
		}
		ids = append(ids, cp.ThreadID)
	}

	if err := h.eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, threadID := range ids {
		assertStatus(t, h.poll(t, threadID), checkpoint.StatusCompleted, "")
	}
	if err := h.eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestEngine_ResumeAfterApprovalCrash(t *testing.T) {
	h := abc(t, []string{"B"})
	ctx := context.Background()

	// Approval persisted, but the process died before the run was scheduled.
	cp := checkpoint.New(id.NewThreadID(), "B", checkpoint.State{Output: "A"})
	cp.LastNode = "A"
	cp.ApprovedNode = "B"
	if err := h.store.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := h.eng.ResumeAll(ctx); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}
	done := h.poll(t, cp.ThreadID)
	assertStatus(t, done, checkpoint.StatusCompleted, "")
	if done.State.Output != "ABC" {
		t.Errorf("output = %q, want ABC", done.State.Output)
	}
}
