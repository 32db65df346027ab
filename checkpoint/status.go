package checkpoint

// Status represents the lifecycle state of a thread's checkpoint.
type Status string

const (
	// StatusRunning means the thread has work left and is not gated.
	StatusRunning Status = "running"
	// StatusWaitingApproval means the next node is gated and has not run.
	StatusWaitingApproval Status = "waiting_approval"
	// StatusCompleted means every node ran successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means a node failed or the gate was rejected.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further node may ever execute.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the four defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusWaitingApproval, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}
