package checkpoint

import (
	"encoding/json"
	"fmt"
	"maps"
)

// FailureKind classifies why a thread failed.
type FailureKind string

const (
	// FailureNode means a node function returned an error or panicked.
	FailureNode FailureKind = "node_error"
	// FailureRejected means an approver rejected the gated node.
	FailureRejected FailureKind = "rejected"
)

// Failure is the error summary recorded in State when a thread fails.
type Failure struct {
	Node    string      `json:"node"    msgpack:"node"    bson:"node"`
	Kind    FailureKind `json:"kind"    msgpack:"kind"    bson:"kind"`
	Message string      `json:"message" msgpack:"message" bson:"message"`
}

// State is the workflow state produced and consumed by nodes. It has a
// stable core (input, per-node results, output, error) and an open
// extension map for node-specific fields.
//
// Results and Extra hold JSON documents so that every store backend
// round-trips them byte for byte.
type State struct {
	Input   string                     `json:"input"             msgpack:"input"`
	Output  string                     `json:"output,omitempty"  msgpack:"output,omitempty"`
	Results map[string]json.RawMessage `json:"results,omitempty" msgpack:"results,omitempty"`
	Error   *Failure                   `json:"error,omitempty"   msgpack:"error,omitempty"`
	Extra   map[string]json.RawMessage `json:"extra,omitempty"   msgpack:"extra,omitempty"`
}

// SetResult stores v, JSON-encoded, as the result for key (usually the
// node name).
func (s *State) SetResult(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("checkpoint: encode result %q: %w", key, err)
	}
	if s.Results == nil {
		s.Results = make(map[string]json.RawMessage)
	}
	s.Results[key] = data
	return nil
}

// Result decodes the result stored under key into out. It reports false
// when no result exists for key.
func (s State) Result(key string, out any) (bool, error) {
	data, ok := s.Results[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("checkpoint: decode result %q: %w", key, err)
	}
	return true, nil
}

// SetExtra stores v, JSON-encoded, in the extension map.
func (s *State) SetExtra(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("checkpoint: encode extra %q: %w", key, err)
	}
	if s.Extra == nil {
		s.Extra = make(map[string]json.RawMessage)
	}
	s.Extra[key] = data
	return nil
}

// ExtraValue decodes the extension field stored under key into out.
func (s State) ExtraValue(key string, out any) (bool, error) {
	data, ok := s.Extra[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("checkpoint: decode extra %q: %w", key, err)
	}
	return true, nil
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Results = cloneRaw(s.Results)
	out.Extra = cloneRaw(s.Extra)
	if s.Error != nil {
		f := *s.Error
		out.Error = &f
	}
	return out
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
