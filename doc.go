// Package waypoint provides a checkpointed step-execution engine with
// approval gating for poll-driven workflows.
//
// A client submits a task, the engine advances it through a fixed ordered
// list of nodes and persists a resumable checkpoint after every node.
// Nodes listed in the approval gate set do not run until an external actor
// approves them; until then the thread rests in the waiting_approval state
// and clients learn about it by polling.
//
// # Quick Start
//
//	reg, _ := node.NewRegistry(
//	    node.Spec{Name: "fetch", Func: fetch},
//	    node.Spec{Name: "publish", Func: publish},
//	)
//	gates, _ := gate.NewSet(reg, "publish")
//
//	eng, err := engine.New(reg, gates, memory.New(),
//	    engine.WithConcurrency(20),
//	)
//	_ = eng.Start(ctx)
//	cp, err := eng.StartThread(ctx, id.NewThreadID(), checkpoint.State{Input: "hello"})
//
// # Architecture
//
// The engine owns every write to a thread's checkpoint. Writes are
// serialized per thread in-process and guarded by an optimistic
// sequence check in the store, so concurrent writers from other
// processes are detected rather than silently overwritten.
//
// Thread IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers such as "thread_01h2xcejqtf2nbrexx3vqjhp41".
package waypoint
