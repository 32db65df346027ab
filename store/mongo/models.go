package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
)

// checkpointModel is the stored document. State is kept as its JSON text
// so raw node results survive unchanged.
type checkpointModel struct {
	ThreadID     string    `bson:"_id"`
	Sequence     int64     `bson:"sequence"`
	Status       string    `bson:"status"`
	NextNode     string    `bson:"next_node"`
	LastNode     string    `bson:"last_node"`
	ApprovedNode string    `bson:"approved_node"`
	State        string    `bson:"state"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toCheckpointModel(cp *checkpoint.Checkpoint) (*checkpointModel, error) {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	m := &checkpointModel{
		ThreadID:     cp.ThreadID.String(),
		Sequence:     cp.Sequence,
		Status:       string(cp.Status),
		NextNode:     cp.NextNode,
		LastNode:     cp.LastNode,
		ApprovedNode: cp.ApprovedNode,
		State:        string(state),
		CreatedAt:    cp.CreatedAt,
		UpdatedAt:    cp.UpdatedAt,
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now()
	}
	return m, nil
}

func fromCheckpointModel(m *checkpointModel) (*checkpoint.Checkpoint, error) {
	threadID, err := id.ParseThreadID(m.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("parse thread id %q: %w", m.ThreadID, err)
	}
	cp := &checkpoint.Checkpoint{
		ThreadID:     threadID,
		NextNode:     m.NextNode,
		LastNode:     m.LastNode,
		Status:       checkpoint.Status(m.Status),
		Sequence:     m.Sequence,
		ApprovedNode: m.ApprovedNode,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(m.State), &cp.State); err != nil {
		return nil, fmt.Errorf("decode state of %s: %w", m.ThreadID, err)
	}
	return cp, nil
}
