package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

const checkpointColumns = `thread_id, sequence, status, next_node, last_node,
	approved_node, state, created_at, updated_at`

// scanCheckpoint decodes one row selected with checkpointColumns.
func scanCheckpoint(row pgx.Row) (*checkpoint.Checkpoint, error) {
	var (
		threadID string
		status   string
		state    []byte
		cp       checkpoint.Checkpoint
	)
	err := row.Scan(&threadID, &cp.Sequence, &status, &cp.NextNode, &cp.LastNode,
		&cp.ApprovedNode, &state, &cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return nil, err
	}

	tid, err := id.ParseThreadID(threadID)
	if err != nil {
		return nil, fmt.Errorf("parse thread id %q: %w", threadID, err)
	}
	cp.ThreadID = tid
	cp.Status = checkpoint.Status(status)
	if err := json.Unmarshal(state, &cp.State); err != nil {
		return nil, fmt.Errorf("decode state of %s: %w", threadID, err)
	}
	cp.CreatedAt = cp.CreatedAt.UTC()
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	return &cp, nil
}

// encodeState returns the payload for the state column. The column is json
// rather than jsonb so raw node results keep their exact bytes.
func encodeState(cp *checkpoint.Checkpoint) ([]byte, error) {
	return json.Marshal(cp.State)
}

func timestamps(cp *checkpoint.Checkpoint) (created, updated time.Time) {
	now := time.Now().UTC()
	created, updated = cp.CreatedAt, cp.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}
	return created, updated
}
