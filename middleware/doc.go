// Package middleware provides composable middleware for node execution.
//
// A [Middleware] wraps the call of one node function. Middleware are
// composed into a chain using [Chain] and applied each time the engine
// executes a node. They are applied right-to-left: the first middleware
// in the slice is the outermost wrapper.
//
//	// logging → recover → node
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs thread, node, duration, and outcome
//   - [Recover]: converts panics in node code into errors
//   - [Timeout]: cancels the node context after the node's timeout
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-node duration and outcome counters
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
