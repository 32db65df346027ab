package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
	"github.com/xraph/waypoint/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a Bun ORM implementation of store.Store using PostgreSQL dialect.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle; the Store
// will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates the checkpoint table and its status index.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*checkpointModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create checkpoints table: %w", waypoint.ErrMigrationFailed, err)
	}

	if _, err := s.db.NewCreateIndex().
		Model((*checkpointModel)(nil)).
		Index("idx_waypoint_checkpoints_status").
		Column("status", "created_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create status index: %w", waypoint.ErrMigrationFailed, err)
	}

	s.logger.Info("checkpoint schema ready", slog.String("table", "waypoint_checkpoints"))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

// Load retrieves the latest checkpoint for threadID.
func (s *Store) Load(ctx context.Context, threadID id.ThreadID) (*checkpoint.Checkpoint, error) {
	m := new(checkpointModel)
	err := s.db.NewSelect().
		Model(m).
		Where("thread_id = ?", threadID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, waypoint.ErrThreadNotFound
		}
		return nil, fmt.Errorf("waypoint/bun: load %s: %w", threadID, err)
	}
	return fromCheckpointModel(m)
}

// Save inserts sequence 0 and otherwise updates only the row still at
// cp.Sequence-1.
func (s *Store) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	m, err := toCheckpointModel(cp)
	if err != nil {
		return fmt.Errorf("waypoint/bun: %w", err)
	}

	if cp.Sequence == 0 {
		res, insErr := s.db.NewInsert().
			Model(m).
			On("CONFLICT (thread_id) DO NOTHING").
			Exec(ctx)
		if insErr != nil {
			return fmt.Errorf("waypoint/bun: insert %s: %w", m.ThreadID, insErr)
		}
		if rows, _ := res.RowsAffected(); rows == 0 { //nolint:errcheck // driver always returns nil
			return fmt.Errorf("%w: thread %s already exists", waypoint.ErrStaleCheckpoint, m.ThreadID)
		}
		return nil
	}

	res, err := s.db.NewUpdate().
		Model(m).
		Column("sequence", "status", "next_node", "last_node", "approved_node", "state", "updated_at").
		Where("thread_id = ?", m.ThreadID).
		Where("sequence = ?", cp.Sequence-1).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("waypoint/bun: update %s: %w", m.ThreadID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 { //nolint:errcheck // driver always returns nil
		return fmt.Errorf("%w: thread %s is not at sequence %d",
			waypoint.ErrStaleCheckpoint, m.ThreadID, cp.Sequence-1)
	}
	return nil
}

// List returns the latest checkpoints matching opts, oldest first.
func (s *Store) List(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	var models []checkpointModel
	q := s.db.NewSelect().Model(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	q = q.OrderExpr("created_at ASC, thread_id ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("waypoint/bun: list: %w", err)
	}

	out := make([]*checkpoint.Checkpoint, 0, len(models))
	for i := range models {
		cp, err := fromCheckpointModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("waypoint/bun: list convert: %w", err)
		}
		out = append(out, cp)
	}
	return out, nil
}
