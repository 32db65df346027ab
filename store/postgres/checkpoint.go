package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
)

// Load retrieves the latest checkpoint for threadID.
func (s *Store) Load(ctx context.Context, threadID id.ThreadID) (*checkpoint.Checkpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+checkpointColumns+` FROM waypoint_checkpoints WHERE thread_id = $1`,
		threadID.String(),
	)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if isNoRows(err) {
			return nil, waypoint.ErrThreadNotFound
		}
		return nil, fmt.Errorf("waypoint/postgres: load %s: %w", threadID, err)
	}
	return cp, nil
}

// Save writes cp as the thread's latest revision and appends it to the
// history table, both in one transaction. Sequence 0 inserts; any other
// sequence updates only the row at cp.Sequence-1.
func (s *Store) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	state, err := encodeState(cp)
	if err != nil {
		return fmt.Errorf("waypoint/postgres: encode state: %w", err)
	}
	created, updated := timestamps(cp)
	key := cp.ThreadID.String()

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if cp.Sequence == 0 {
			tag, insErr := tx.Exec(ctx, `
				INSERT INTO waypoint_checkpoints (`+checkpointColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (thread_id) DO NOTHING`,
				key, cp.Sequence, string(cp.Status), cp.NextNode, cp.LastNode,
				cp.ApprovedNode, state, created, updated,
			)
			if insErr != nil {
				return insErr
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: thread %s already exists", waypoint.ErrStaleCheckpoint, key)
			}
		} else {
			tag, updErr := tx.Exec(ctx, `
				UPDATE waypoint_checkpoints
				SET sequence = $2, status = $3, next_node = $4, last_node = $5,
				    approved_node = $6, state = $7, updated_at = $8
				WHERE thread_id = $1 AND sequence = $9`,
				key, cp.Sequence, string(cp.Status), cp.NextNode, cp.LastNode,
				cp.ApprovedNode, state, updated, cp.Sequence-1,
			)
			if updErr != nil {
				return updErr
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: thread %s is not at sequence %d",
					waypoint.ErrStaleCheckpoint, key, cp.Sequence-1)
			}
		}

		_, histErr := tx.Exec(ctx, `
			INSERT INTO waypoint_checkpoint_history (`+checkpointColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			key, cp.Sequence, string(cp.Status), cp.NextNode, cp.LastNode,
			cp.ApprovedNode, state, created, updated,
		)
		if histErr != nil && isDuplicateKey(histErr) {
			return fmt.Errorf("%w: revision %d of %s already recorded",
				waypoint.ErrStaleCheckpoint, cp.Sequence, key)
		}
		return histErr
	})
	if err != nil {
		if errors.Is(err, waypoint.ErrStaleCheckpoint) {
			return err
		}
		return fmt.Errorf("waypoint/postgres: save %s: %w", key, err)
	}
	return nil
}

// List returns the latest checkpoints matching opts, oldest first.
func (s *Store) List(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT ` + checkpointColumns + ` FROM waypoint_checkpoints`)
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		fmt.Fprintf(&b, ` WHERE status = $%d`, len(args))
	}
	b.WriteString(` ORDER BY created_at ASC, thread_id ASC`)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, ` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("waypoint/postgres: list: %w", err)
	}
	return collect(rows, "list")
}

// History returns every persisted revision of threadID in sequence order.
func (s *Store) History(ctx context.Context, threadID id.ThreadID) ([]*checkpoint.Checkpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+checkpointColumns+` FROM waypoint_checkpoint_history
		 WHERE thread_id = $1 ORDER BY sequence ASC`,
		threadID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("waypoint/postgres: history %s: %w", threadID, err)
	}
	revs, err := collect(rows, "history")
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, waypoint.ErrThreadNotFound
	}
	return revs, nil
}

func collect(rows pgx.Rows, op string) ([]*checkpoint.Checkpoint, error) {
	defer rows.Close()

	var out []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("waypoint/postgres: %s scan: %w", op, err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("waypoint/postgres: %s: %w", op, err)
	}
	return out, nil
}
