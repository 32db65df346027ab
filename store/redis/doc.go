// Package redis implements store.Store on Redis.
//
// Each thread's latest checkpoint is a msgpack document under
// waypoint:thread:{id}; the set waypoint:threads enumerates threads and the
// list waypoint:thread:{id}:history keeps every revision. Save runs inside
// WATCH/MULTI so the sequence check and the write are atomic.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
//
// The caller owns the client lifecycle.
package redis
