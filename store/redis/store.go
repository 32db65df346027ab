package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
	"github.com/xraph/waypoint/store"
)

// Compile-time interface checks.
var (
	_ store.Store             = (*Store)(nil)
	_ checkpoint.HistoryStore = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// Load retrieves the latest checkpoint for threadID.
func (s *Store) Load(ctx context.Context, threadID id.ThreadID) (*checkpoint.Checkpoint, error) {
	data, err := s.client.Get(ctx, threadKey(threadID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, waypoint.ErrThreadNotFound
		}
		return nil, fmt.Errorf("waypoint/redis: load %s: %w", threadID, err)
	}
	cp, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("waypoint/redis: load %s: %w", threadID, err)
	}
	return cp, nil
}

// Save writes cp under WATCH so a concurrent writer aborts the
// transaction. A lost race is reported as waypoint.ErrStaleCheckpoint.
func (s *Store) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	tid := cp.ThreadID.String()
	key := threadKey(tid)

	data, err := encode(cp)
	if err != nil {
		return fmt.Errorf("waypoint/redis: encode %s: %w", tid, err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, getErr := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(getErr, redis.Nil):
			if cp.Sequence != 0 {
				return fmt.Errorf("%w: thread %s has no checkpoint, got sequence %d",
					waypoint.ErrStaleCheckpoint, tid, cp.Sequence)
			}
		case getErr != nil:
			return getErr
		default:
			current, decErr := decode(raw)
			if decErr != nil {
				return decErr
			}
			if cp.Sequence != current.Sequence+1 {
				return fmt.Errorf("%w: thread %s at sequence %d, got %d",
					waypoint.ErrStaleCheckpoint, tid, current.Sequence, cp.Sequence)
			}
		}

		_, pipeErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.RPush(ctx, historyKey(tid), data)
			pipe.SAdd(ctx, threadsKey, tid)
			return nil
		})
		return pipeErr
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, waypoint.ErrStaleCheckpoint):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: thread %s changed during save", waypoint.ErrStaleCheckpoint, tid)
	default:
		return fmt.Errorf("waypoint/redis: save %s: %w", tid, err)
	}
}

// List returns the latest checkpoints matching opts, oldest first.
func (s *Store) List(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	ids, err := s.client.SMembers(ctx, threadsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("waypoint/redis: list smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, tid := range ids {
		keys[i] = threadKey(tid)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("waypoint/redis: list mget: %w", err)
	}

	out := make([]*checkpoint.Checkpoint, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		cp, decErr := decode([]byte(raw))
		if decErr != nil {
			s.logger.Warn("skipping undecodable checkpoint",
				slog.String("thread_id", ids[i]),
				slog.String("error", decErr.Error()),
			)
			continue
		}
		if opts.Status != "" && cp.Status != opts.Status {
			continue
		}
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ThreadID.String() < out[j].ThreadID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// History returns every persisted revision of threadID in sequence order.
func (s *Store) History(ctx context.Context, threadID id.ThreadID) ([]*checkpoint.Checkpoint, error) {
	vals, err := s.client.LRange(ctx, historyKey(threadID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("waypoint/redis: history %s: %w", threadID, err)
	}
	if len(vals) == 0 {
		return nil, waypoint.ErrThreadNotFound
	}
	out := make([]*checkpoint.Checkpoint, 0, len(vals))
	for _, raw := range vals {
		cp, decErr := decode([]byte(raw))
		if decErr != nil {
			return nil, fmt.Errorf("waypoint/redis: history %s: %w", threadID, decErr)
		}
		out = append(out, cp)
	}
	return out, nil
}
