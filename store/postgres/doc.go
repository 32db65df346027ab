// Package postgres implements a checkpoint store on PostgreSQL using
// pgx/v5.
//
// The latest revision of each thread lives in waypoint_checkpoints; every
// persisted revision is appended to waypoint_checkpoint_history in the same
// transaction. Save is an optimistic compare-and-swap on the sequence
// column:
//
//	UPDATE waypoint_checkpoints SET ... WHERE thread_id = $1 AND sequence = $2
//
// A zero-row update means another writer got there first and the save
// fails with waypoint.ErrStaleCheckpoint.
package postgres
