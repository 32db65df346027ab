// Package bunstore implements store.Store using the Bun ORM with the
// PostgreSQL dialect, for services that already run Bun.
//
// The caller owns the *bun.DB lifecycle; bunstore never closes it:
//
//	import (
//	    "github.com/uptrace/bun"
//	    "github.com/uptrace/bun/dialect/pgdialect"
//	    "github.com/uptrace/bun/driver/pgdriver"
//	    bunstore "github.com/xraph/waypoint/store/bun"
//	)
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	s := bunstore.New(db)
//	s.Migrate(ctx)
//
// Bun keeps only the latest revision of each thread.
package bunstore
