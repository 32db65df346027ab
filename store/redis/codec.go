package redis

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
)

// document is the msgpack form of a checkpoint.
type document struct {
	ThreadID     string           `msgpack:"thread_id"`
	Sequence     int64            `msgpack:"sequence"`
	Status       string           `msgpack:"status"`
	NextNode     string           `msgpack:"next_node,omitempty"`
	LastNode     string           `msgpack:"last_node,omitempty"`
	ApprovedNode string           `msgpack:"approved_node,omitempty"`
	State        checkpoint.State `msgpack:"state"`
	CreatedAt    time.Time        `msgpack:"created_at"`
	UpdatedAt    time.Time        `msgpack:"updated_at"`
}

func encode(cp *checkpoint.Checkpoint) ([]byte, error) {
	now := time.Now().UTC()
	doc := document{
		ThreadID:     cp.ThreadID.String(),
		Sequence:     cp.Sequence,
		Status:       string(cp.Status),
		NextNode:     cp.NextNode,
		LastNode:     cp.LastNode,
		ApprovedNode: cp.ApprovedNode,
		State:        cp.State,
		CreatedAt:    cp.CreatedAt,
		UpdatedAt:    cp.UpdatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	return msgpack.Marshal(&doc)
}

func decode(data []byte) (*checkpoint.Checkpoint, error) {
	var doc document
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	threadID, err := id.ParseThreadID(doc.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("parse thread id %q: %w", doc.ThreadID, err)
	}
	return &checkpoint.Checkpoint{
		ThreadID:     threadID,
		State:        doc.State,
		NextNode:     doc.NextNode,
		LastNode:     doc.LastNode,
		Status:       checkpoint.Status(doc.Status),
		Sequence:     doc.Sequence,
		ApprovedNode: doc.ApprovedNode,
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}, nil
}
