// Package node defines workflow nodes and the immutable registry that
// orders them.
//
// A registry is built once at process start and passed to the engine. It
// defines a single linear successor function: every node but the last has
// exactly one successor.
package node

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
)

// Func is a node executor. It receives a private copy of the current state
// and returns the updated state. A Func may be re-invoked if the process
// crashes after it returns but before its checkpoint is persisted, so side
// effects must be idempotent.
type Func func(ctx context.Context, s checkpoint.State) (checkpoint.State, error)

// Spec names a node and its executor.
type Spec struct {
	// Name is the unique identifier of the node.
	Name string

	// Description is a human-readable summary shown to polling clients.
	Description string

	// Func executes the node.
	Func Func

	// Timeout bounds a single execution. Zero means no deadline.
	Timeout time.Duration
}

// Registry is an ordered, read-only list of nodes. It is safe for
// concurrent use because it never changes after construction.
type Registry struct {
	specs []Spec
	index map[string]int
}

// NewRegistry builds a registry from specs in execution order. It rejects
// empty registries, blank names, nil executors and duplicate names.
func NewRegistry(specs ...Spec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no nodes", waypoint.ErrInvalidRegistry)
	}

	r := &Registry{
		specs: slices.Clone(specs),
		index: make(map[string]int, len(specs)),
	}
	for i, s := range r.specs {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: node %d has no name", waypoint.ErrInvalidRegistry, i)
		}
		if s.Func == nil {
			return nil, fmt.Errorf("%w: node %q has no func", waypoint.ErrInvalidRegistry, s.Name)
		}
		if _, dup := r.index[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate node %q", waypoint.ErrInvalidRegistry, s.Name)
		}
		r.index[s.Name] = i
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(specs ...Spec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// First returns the name of the first node.
func (r *Registry) First() string { return r.specs[0].Name }

// Next returns the successor of name. It returns "" when name is the last
// node, and false when name is not registered.
func (r *Registry) Next(name string) (string, bool) {
	i, ok := r.index[name]
	if !ok {
		return "", false
	}
	if i+1 >= len(r.specs) {
		return "", true
	}
	return r.specs[i+1].Name, true
}

// Index returns the zero-based position of name, or -1.
func (r *Registry) Index(name string) int {
	i, ok := r.index[name]
	if !ok {
		return -1
	}
	return i
}

// Get returns the spec registered under name.
func (r *Registry) Get(name string) (Spec, bool) {
	i, ok := r.index[name]
	if !ok {
		return Spec{}, false
	}
	return r.specs[i], true
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Len returns the number of nodes.
func (r *Registry) Len() int { return len(r.specs) }

// Names returns node names in execution order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}

// Specs returns a copy of the node specs in execution order.
func (r *Registry) Specs() []Spec { return slices.Clone(r.specs) }

// Completed returns how many nodes have finished when lastNode is the most
// recently completed one.
func (r *Registry) Completed(lastNode string) int {
	if lastNode == "" {
		return 0
	}
	return r.Index(lastNode) + 1
}
