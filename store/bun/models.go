package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
)

type checkpointModel struct {
	bun.BaseModel `bun:"table:waypoint_checkpoints"`

	ThreadID     string    `bun:"thread_id,pk"`
	Sequence     int64     `bun:"sequence,notnull"`
	Status       string    `bun:"status,notnull"`
	NextNode     string    `bun:"next_node,notnull,default:''"`
	LastNode     string    `bun:"last_node,notnull,default:''"`
	ApprovedNode string    `bun:"approved_node,notnull,default:''"`
	State        string    `bun:"state,type:json,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toCheckpointModel(cp *checkpoint.Checkpoint) (*checkpointModel, error) {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	now := time.Now().UTC()
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
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
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
