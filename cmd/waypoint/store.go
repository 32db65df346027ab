package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/waypoint/backoff"
	"github.com/xraph/waypoint/internal/config"
	"github.com/xraph/waypoint/store"
	bunstore "github.com/xraph/waypoint/store/bun"
	"github.com/xraph/waypoint/store/memory"
	mongostore "github.com/xraph/waypoint/store/mongo"
	"github.com/xraph/waypoint/store/postgres"
	redisstore "github.com/xraph/waypoint/store/redis"
)

// pingAttempts bounds how long start-up waits for the store to come up.
const pingAttempts = 5

// openStore connects the configured backend and waits until it answers a
// ping. The returned close func releases every connection openStore made.
func openStore(ctx context.Context, cfg config.Store, logger *slog.Logger) (store.Store, func() error, error) {
	st, closeFn, err := dial(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	err = backoff.Retry(ctx, backoff.DefaultStrategy(), pingAttempts, nil, func(ctx context.Context) error {
		if pingErr := st.Ping(ctx); pingErr != nil {
			logger.Warn("store not ready", slog.String("error", pingErr.Error()))
			return pingErr
		}
		return nil
	})
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("ping %s store: %w", cfg.Driver, err), closeFn())
	}
	return st, closeFn, nil
}

func dial(ctx context.Context, cfg config.Store, logger *slog.Logger) (store.Store, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		st := memory.New()
		return st, st.Close, nil

	case config.DriverPostgres:
		st, err := postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil

	case config.DriverBun:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), db.Close, nil

	case config.DriverRedis:
		opts, err := redis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		return redisstore.New(client, redisstore.WithLogger(logger)), client.Close, nil

	case config.DriverMongo:
		client, err := mongod.Connect(options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		closeFn := func() error { return client.Disconnect(context.Background()) }
		return mongostore.New(client.Database(cfg.Database), mongostore.WithLogger(logger)), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
