package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
	"github.com/xraph/waypoint/store"
)

// colCheckpoints is the checkpoint collection name.
const colCheckpoints = "waypoint_checkpoints"

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store.
// The caller owns the client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	col    *mongod.Collection
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

// New creates a new MongoDB store over db.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		col:    db.Collection(colCheckpoints),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates the status index used by List.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongod.IndexModel{
		Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "created_at", Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %s indexes: %w", waypoint.ErrMigrationFailed, colCheckpoints, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// Load retrieves the latest checkpoint for threadID.
func (s *Store) Load(ctx context.Context, threadID id.ThreadID) (*checkpoint.Checkpoint, error) {
	var m checkpointModel
	err := s.col.FindOne(ctx, bson.M{"_id": threadID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, waypoint.ErrThreadNotFound
		}
		return nil, fmt.Errorf("waypoint/mongo: load %s: %w", threadID, err)
	}
	return fromCheckpointModel(&m)
}

// Save inserts sequence 0 and otherwise replaces the document only while
// it is still at cp.Sequence-1.
func (s *Store) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	m, err := toCheckpointModel(cp)
	if err != nil {
		return fmt.Errorf("waypoint/mongo: %w", err)
	}

	if cp.Sequence == 0 {
		if _, insErr := s.col.InsertOne(ctx, m); insErr != nil {
			if mongod.IsDuplicateKeyError(insErr) {
				return fmt.Errorf("%w: thread %s already exists", waypoint.ErrStaleCheckpoint, m.ThreadID)
			}
			return fmt.Errorf("waypoint/mongo: insert %s: %w", m.ThreadID, insErr)
		}
		return nil
	}

	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": m.ThreadID, "sequence": cp.Sequence - 1}, m)
	if err != nil {
		return fmt.Errorf("waypoint/mongo: replace %s: %w", m.ThreadID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: thread %s is not at sequence %d",
			waypoint.ErrStaleCheckpoint, m.ThreadID, cp.Sequence-1)
	}
	return nil
}

// List returns the latest checkpoints matching opts, oldest first.
func (s *Store) List(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("waypoint/mongo: list: %w", err)
	}
	defer cursor.Close(ctx)

	var models []checkpointModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("waypoint/mongo: list decode: %w", err)
	}

	out := make([]*checkpoint.Checkpoint, 0, len(models))
	for i := range models {
		cp, convErr := fromCheckpointModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("waypoint/mongo: list convert: %w", convErr)
		}
		out = append(out, cp)
	}
	return out, nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}
