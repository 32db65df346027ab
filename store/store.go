// Package store defines the aggregate persistence interface. Backends:
// Memory, Postgres, Bun, Redis and Mongo.
package store

import (
	"context"

	"github.com/xraph/waypoint/checkpoint"
)

// Store is the aggregate persistence interface. A backend satisfies the
// checkpoint contract and owns its connection lifecycle.
type Store interface {
	checkpoint.Store

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
