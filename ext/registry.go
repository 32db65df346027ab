package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/waypoint/checkpoint"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type threadStartedEntry struct {
	name string
	hook ThreadStarted
}

type gateReachedEntry struct {
	name string
	hook GateReached
}

type threadApprovedEntry struct {
	name string
	hook ThreadApproved
}

type threadRejectedEntry struct {
	name string
	hook ThreadRejected
}

type threadCompletedEntry struct {
	name string
	hook ThreadCompleted
}

type threadFailedEntry struct {
	name string
	hook ThreadFailed
}

type nodeCompletedEntry struct {
	name string
	hook NodeCompleted
}

type nodeFailedEntry struct {
	name string
	hook NodeFailed
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register is not safe to call concurrently with the emit methods; register
// every extension before the engine starts.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	threadStarted   []threadStartedEntry
	gateReached     []gateReachedEntry
	threadApproved  []threadApprovedEntry
	threadRejected  []threadRejectedEntry
	threadCompleted []threadCompletedEntry
	threadFailed    []threadFailedEntry
	nodeCompleted   []nodeCompletedEntry
	nodeFailed      []nodeFailedEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(ThreadStarted); ok {
		r.threadStarted = append(r.threadStarted, threadStartedEntry{name, h})
	}
	if h, ok := e.(GateReached); ok {
		r.gateReached = append(r.gateReached, gateReachedEntry{name, h})
	}
	if h, ok := e.(ThreadApproved); ok {
		r.threadApproved = append(r.threadApproved, threadApprovedEntry{name, h})
	}
	if h, ok := e.(ThreadRejected); ok {
		r.threadRejected = append(r.threadRejected, threadRejectedEntry{name, h})
	}
	if h, ok := e.(ThreadCompleted); ok {
		r.threadCompleted = append(r.threadCompleted, threadCompletedEntry{name, h})
	}
	if h, ok := e.(ThreadFailed); ok {
		r.threadFailed = append(r.threadFailed, threadFailedEntry{name, h})
	}
	if h, ok := e.(NodeCompleted); ok {
		r.nodeCompleted = append(r.nodeCompleted, nodeCompletedEntry{name, h})
	}
	if h, ok := e.(NodeFailed); ok {
		r.nodeFailed = append(r.nodeFailed, nodeFailedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Thread event emitters
// ──────────────────────────────────────────────────

// EmitThreadStarted notifies all extensions that implement ThreadStarted.
func (r *Registry) EmitThreadStarted(ctx context.Context, cp *checkpoint.Checkpoint) {
	for _, e := range r.threadStarted {
		if err := e.hook.OnThreadStarted(ctx, cp); err != nil {
			r.logHookError("OnThreadStarted", e.name, err)
		}
	}
}

// EmitGateReached notifies all extensions that implement GateReached.
func (r *Registry) EmitGateReached(ctx context.Context, cp *checkpoint.Checkpoint) {
	for _, e := range r.gateReached {
		if err := e.hook.OnGateReached(ctx, cp); err != nil {
			r.logHookError("OnGateReached", e.name, err)
		}
	}
}

// EmitThreadApproved notifies all extensions that implement ThreadApproved.
func (r *Registry) EmitThreadApproved(ctx context.Context, cp *checkpoint.Checkpoint) {
	for _, e := range r.threadApproved {
		if err := e.hook.OnThreadApproved(ctx, cp); err != nil {
			r.logHookError("OnThreadApproved", e.name, err)
		}
	}
}

// EmitThreadRejected notifies all extensions that implement ThreadRejected.
func (r *Registry) EmitThreadRejected(ctx context.Context, cp *checkpoint.Checkpoint) {
	for _, e := range r.threadRejected {
		if err := e.hook.OnThreadRejected(ctx, cp); err != nil {
			r.logHookError("OnThreadRejected", e.name, err)
		}
	}
}

// EmitThreadCompleted notifies all extensions that implement ThreadCompleted.
func (r *Registry) EmitThreadCompleted(ctx context.Context, cp *checkpoint.Checkpoint) {
	for _, e := range r.threadCompleted {
		if err := e.hook.OnThreadCompleted(ctx, cp); err != nil {
			r.logHookError("OnThreadCompleted", e.name, err)
		}
	}
}

// EmitThreadFailed notifies all extensions that implement ThreadFailed.
func (r *Registry) EmitThreadFailed(ctx context.Context, cp *checkpoint.Checkpoint, threadErr error) {
	for _, e := range r.threadFailed {
		if err := e.hook.OnThreadFailed(ctx, cp, threadErr); err != nil {
			r.logHookError("OnThreadFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Node event emitters
// ──────────────────────────────────────────────────

// EmitNodeCompleted notifies all extensions that implement NodeCompleted.
func (r *Registry) EmitNodeCompleted(ctx context.Context, cp *checkpoint.Checkpoint, node string, elapsed time.Duration) {
	for _, e := range r.nodeCompleted {
		if err := e.hook.OnNodeCompleted(ctx, cp, node, elapsed); err != nil {
			r.logHookError("OnNodeCompleted", e.name, err)
		}
	}
}

// EmitNodeFailed notifies all extensions that implement NodeFailed.
func (r *Registry) EmitNodeFailed(ctx context.Context, cp *checkpoint.Checkpoint, node string, nodeErr error) {
	for _, e := range r.nodeFailed {
		if err := e.hook.OnNodeFailed(ctx, cp, node, nodeErr); err != nil {
			r.logHookError("OnNodeFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
