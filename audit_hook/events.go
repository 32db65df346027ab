package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionThreadStarted   = "thread.started"
	ActionGateReached     = "thread.gate_reached"
	ActionThreadApproved  = "thread.approved"
	ActionThreadRejected  = "thread.rejected"
	ActionThreadCompleted = "thread.completed"
	ActionThreadFailed    = "thread.failed"
	ActionNodeCompleted   = "node.completed"
	ActionNodeFailed      = "node.failed"
)

// Audit event categories group related actions.
const (
	CategoryThread   = "waypoint.thread"
	CategoryApproval = "waypoint.approval"
	CategoryNode     = "waypoint.node"
)

// ResourceThread is the Resource field of every event.
const ResourceThread = "thread"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionThreadStarted,
		ActionGateReached,
		ActionThreadApproved,
		ActionThreadRejected,
		ActionThreadCompleted,
		ActionThreadFailed,
		ActionNodeCompleted,
		ActionNodeFailed,
	}
}
