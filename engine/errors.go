package engine

import "fmt"

// NodeError is a node executor failure. It is recorded in the failed
// checkpoint rather than returned from Run.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
