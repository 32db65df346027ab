// Package checkpoint defines the durable snapshot of a thread's execution
// position, the workflow state carried between nodes, and the checkpoint
// store interface.
//
// Exactly one checkpoint document exists per thread. Every persisted write
// carries a Sequence one greater than the stored document; stores reject
// anything else with waypoint.ErrStaleCheckpoint, which gives writers
// optimistic concurrency without locks in the backend.
//
// # State Machine
//
// A [Checkpoint] moves through these statuses:
//
//	running → waiting_approval → running   (approved)
//	running → waiting_approval → failed    (rejected)
//	running → completed
//	running → failed
//
// completed and failed are terminal.
//
// # Key Types
//
//   - [Checkpoint]: the per-thread document
//   - [Status]: running, waiting_approval, completed or failed
//   - [State]: the workflow state passed to and returned by nodes
//   - [Store]: load / save / list persistence contract
package checkpoint
