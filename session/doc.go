// Package session translates engine checkpoints into the status payload
// polling clients see, and routes client requests to engine operations.
//
// The controller never mutates a checkpoint itself: every change goes
// through the engine's StartThread or Decide. It may optionally run an
// approval-timeout sweeper that rejects threads left waiting too long.
package session
