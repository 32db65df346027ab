// Package ext defines the extension system for Waypoint.
//
// Extensions are notified of thread lifecycle events and can react to them
// by recording metrics, emitting webhooks or writing audit logs. Each
// lifecycle hook is a separate interface so extensions opt in only to the
// events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnThreadCompleted(ctx context.Context, cp *checkpoint.Checkpoint) error {
//	    log.Printf("thread %s completed at seq %d", cp.ThreadID, cp.Sequence)
//	    return nil
//	}
//
// # Thread Lifecycle Hooks
//
//   - [ThreadStarted]: the first checkpoint was persisted
//   - [GateReached]: the thread paused in front of an approval gate
//   - [ThreadApproved]: a pending gate was approved
//   - [ThreadRejected]: a pending gate was rejected
//   - [ThreadCompleted]: the last node finished
//   - [ThreadFailed]: the thread entered the failed status
//
// # Node Lifecycle Hooks
//
//   - [NodeCompleted]: a node finished and its checkpoint was saved
//   - [NodeFailed]: a node returned an error
//
// # Other Hooks
//
//   - [Shutdown]: the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hooks observe checkpoints
// after they are persisted; they never influence control flow.
package ext
