package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/backoff"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/ext"
	"github.com/xraph/waypoint/gate"
	"github.com/xraph/waypoint/id"
	mw "github.com/xraph/waypoint/middleware"
	"github.com/xraph/waypoint/node"
	"github.com/xraph/waypoint/observability"
	"github.com/xraph/waypoint/worker"
)

const instrumentationName = "github.com/xraph/waypoint"

// resumePageSize is the page size ResumeAll lists running threads with.
const resumePageSize = 100

// Engine advances threads through the node registry.
type Engine struct {
	registry   *node.Registry
	gates      gate.Set
	store      checkpoint.Store
	extensions *ext.Registry
	config     waypoint.Config
	logger     *slog.Logger

	mws   []mw.Middleware
	chain mw.Middleware
	bo    backoff.Strategy
	locks *threadLocks

	inline    bool
	pool      *worker.Pool
	scheduler worker.Scheduler

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// pending holds extensions added by options until the registry exists.
	pending []ext.Extension
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig replaces the engine configuration.
func WithConfig(cfg waypoint.Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithConcurrency sets how many threads the worker pool advances at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.config.Concurrency = n }
}

// WithInlineScheduler makes StartThread, Decide and ResumeAll run threads
// on the caller's goroutine instead of the worker pool.
func WithInlineScheduler() Option {
	return func(e *Engine) { e.inline = true }
}

// WithExtension registers a lifecycle extension.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.pending = append(e.pending, x) }
}

// WithMiddleware appends a middleware to the node execution chain. It runs
// inside the built-in recover, tracing, metrics, logging and timeout
// middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithBackoff sets the delay strategy between attempts of a failed run.
func WithBackoff(b backoff.Strategy) Option {
	return func(e *Engine) { e.bo = b }
}

// WithTracerProvider sets a custom OTel TracerProvider for node spans.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware and the observability extension.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New creates an engine over an immutable registry and gate set.
func New(reg *node.Registry, gates gate.Set, store checkpoint.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, waypoint.ErrNoStore
	}
	if reg == nil || reg.Len() == 0 {
		return nil, fmt.Errorf("%w: nil registry", waypoint.ErrInvalidRegistry)
	}

	e := &Engine{
		registry: reg,
		gates:    gates,
		store:    store,
		config:   waypoint.DefaultConfig(),
		logger:   slog.Default(),
		locks:    newThreadLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bo == nil {
		e.bo = backoff.DefaultStrategy()
	}

	e.extensions = ext.NewRegistry(e.logger)

	var obsExt *observability.MetricsExtension
	if e.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(e.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	e.extensions.Register(obsExt)
	for _, x := range e.pending {
		e.extensions.Register(x)
	}
	e.pending = nil

	e.chain = e.buildChain()

	if e.inline {
		e.scheduler = worker.Inline(e.Run)
	} else {
		e.pool = worker.NewPool(e.Run, e.logger,
			worker.WithPoolConcurrency(e.config.Concurrency),
			worker.WithMailboxSize(e.config.MailboxSize),
			worker.WithMaxAttempts(e.config.MaxRunAttempts),
			worker.WithBackoff(e.bo),
			worker.WithRetryable(isTransient),
		)
		e.scheduler = e.pool
	}

	return e, nil
}

// buildChain assembles recover → tracing → metrics → logging → timeout,
// followed by user middleware.
func (e *Engine) buildChain() mw.Middleware {
	var tracingMw mw.Middleware
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	all := []mw.Middleware{
		mw.Recover(e.logger),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
		mw.Timeout(e.logger),
	}
	all = append(all, e.mws...)
	return mw.Chain(all...)
}

// isTransient reports whether a failed run is worth another attempt.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, waypoint.ErrThreadNotFound),
		errors.Is(err, waypoint.ErrInvalidTransition),
		errors.Is(err, waypoint.ErrStoreClosed),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the worker pool and resumes every thread left running
// by a previous process.
func (e *Engine) Start(ctx context.Context) error {
	if e.pool != nil {
		if err := e.pool.Start(ctx); err != nil {
			return fmt.Errorf("start worker pool: %w", err)
		}
	}

	// Best-effort, non-fatal.
	if err := e.ResumeAll(ctx); err != nil {
		e.logger.Warn("failed to resume threads", slog.String("error", err.Error()))
	}
	return nil
}

// Stop notifies extensions and drains the worker pool. Runs still in
// flight when ctx ends are cancelled; their checkpoints stay running.
func (e *Engine) Stop(ctx context.Context) error {
	e.extensions.EmitShutdown(ctx)
	if e.pool != nil {
		return e.pool.Stop(ctx)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Registry returns the node registry.
func (e *Engine) Registry() *node.Registry { return e.registry }

// Gates returns the approval gate set.
func (e *Engine) Gates() gate.Set { return e.gates }

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Config returns the engine configuration.
func (e *Engine) Config() waypoint.Config { return e.config }

// ──────────────────────────────────────────────────
// Thread operations
// ──────────────────────────────────────────────────

// StartThread persists the initial checkpoint for threadID and schedules
// the thread. A nil threadID gets a fresh one. It returns the initial
// checkpoint, or waypoint.ErrThreadAlreadyExists.
func (e *Engine) StartThread(ctx context.Context, threadID id.ThreadID, state checkpoint.State) (*checkpoint.Checkpoint, error) {
	if threadID.IsNil() {
		threadID = id.NewThreadID()
	}

	unlock := e.locks.lock(threadID.String())
	cp := checkpoint.New(threadID, e.registry.First(), state)
	err := e.store.Save(ctx, cp)
	unlock()

	if err != nil {
		if errors.Is(err, waypoint.ErrStaleCheckpoint) {
			return nil, fmt.Errorf("%w: %s", waypoint.ErrThreadAlreadyExists, threadID)
		}
		return nil, fmt.Errorf("start thread %s: %w", threadID, err)
	}

	e.logger.Info("thread started",
		slog.String("thread_id", threadID.String()),
		slog.String("next_node", cp.NextNode),
	)
	e.extensions.EmitThreadStarted(ctx, cp)
	e.schedule(ctx, threadID)

	return cp.Clone(), nil
}

// Poll returns the latest checkpoint of a thread. It never mutates state.
func (e *Engine) Poll(ctx context.Context, threadID id.ThreadID) (*checkpoint.Checkpoint, error) {
	return e.store.Load(ctx, threadID)
}

// List returns the latest checkpoints matching opts.
func (e *Engine) List(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	return e.store.List(ctx, opts)
}

// Decide records an approval decision for a thread waiting at a gate.
// Approval is persisted before the thread is rescheduled; rejection fails
// the thread permanently. Both return waypoint.ErrNotWaitingForApproval
// unless the thread is waiting. Decide never waits behind a node that is
// executing: the decision applies to the checkpoint it observed or not at
// all.
func (e *Engine) Decide(ctx context.Context, threadID id.ThreadID, approved bool) (*checkpoint.Checkpoint, error) {
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := checkWaiting(cp); err != nil {
		return nil, err
	}
	return e.decide(ctx, threadID, approved, cp.Sequence)
}

// DecideAt is Decide pinned to the checkpoint at sequence. If the thread
// has moved past sequence it returns waypoint.ErrNotWaitingForApproval and
// changes nothing.
func (e *Engine) DecideAt(ctx context.Context, threadID id.ThreadID, approved bool, sequence int64) (*checkpoint.Checkpoint, error) {
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := atSequence(sequence, checkWaiting)(cp); err != nil {
		return nil, err
	}
	return e.decide(ctx, threadID, approved, sequence)
}

// decide applies a decision under the thread lock. Callers check the
// unlocked checkpoint first so a decision never queues behind a running
// node.
func (e *Engine) decide(ctx context.Context, threadID id.ThreadID, approved bool, sequence int64) (*checkpoint.Checkpoint, error) {
	unlock := e.locks.lock(threadID.String())
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		unlock()
		return nil, err
	}

	if !approved {
		next, err := e.commit(ctx, cp, atSequence(sequence, reject))
		unlock()
		if err != nil {
			return nil, err
		}
		e.logger.Info("thread rejected",
			slog.String("thread_id", threadID.String()),
			slog.String("node", next.NextNode),
		)
		e.extensions.EmitThreadRejected(ctx, next)
		e.extensions.EmitThreadFailed(ctx, next, errors.New(next.State.Error.Message))
		return next, nil
	}

	next, err := e.commit(ctx, cp, atSequence(sequence, approve))
	unlock()
	if err != nil {
		return nil, err
	}
	e.logger.Info("thread approved",
		slog.String("thread_id", threadID.String()),
		slog.String("node", next.NextNode),
	)
	e.extensions.EmitThreadApproved(ctx, next)
	e.schedule(ctx, threadID)

	// With the inline scheduler this reflects the finished run.
	latest, err := e.store.Load(ctx, threadID)
	if err != nil {
		return next, nil //nolint:nilerr // the approval itself is persisted
	}
	return latest, nil
}

// ResumeAll schedules every thread whose checkpoint is running. Nodes may
// be re-entered for threads that crashed mid-node.
func (e *Engine) ResumeAll(ctx context.Context) error {
	var ids []id.ThreadID
	for offset := 0; ; offset += resumePageSize {
		page, err := e.store.List(ctx, checkpoint.ListOpts{
			Status: checkpoint.StatusRunning,
			Limit:  resumePageSize,
			Offset: offset,
		})
		if err != nil {
			return fmt.Errorf("list running threads: %w", err)
		}
		for _, cp := range page {
			ids = append(ids, cp.ThreadID)
		}
		if len(page) < resumePageSize {
			break
		}
	}

	if len(ids) == 0 {
		return nil
	}
	e.logger.Info("resuming threads", slog.Int("count", len(ids)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.config.Concurrency, 1))
	for _, threadID := range ids {
		g.Go(func() error {
			if err := e.scheduler.Schedule(gctx, threadID); err != nil {
				return fmt.Errorf("resume %s: %w", threadID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// schedule hands threadID to the scheduler. A failure leaves the thread
// running, so the next ResumeAll picks it up.
func (e *Engine) schedule(ctx context.Context, threadID id.ThreadID) {
	if err := e.scheduler.Schedule(ctx, threadID); err != nil {
		e.logger.Warn("failed to schedule thread",
			slog.String("thread_id", threadID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// ──────────────────────────────────────────────────
// Run loop
// ──────────────────────────────────────────────────

// Run advances a thread until it completes, fails or reaches a gate.
// Node failures are recorded in the checkpoint, not returned. Run returns
// an error only for missing threads, store failures and cancellation; in
// the last case the checkpoint stays running and no partial node result
// is persisted.
func (e *Engine) Run(ctx context.Context, threadID id.ThreadID) error {
	unlock := e.locks.lock(threadID.String())
	defer unlock()

	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return err
	}

	for cp.Status == checkpoint.StatusRunning {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch {
		case !cp.HasNext():
			if cp, err = e.commit(ctx, cp, complete); err != nil {
				return err
			}
			e.logger.Info("thread completed",
				slog.String("thread_id", threadID.String()),
				slog.Int64("sequence", cp.Sequence),
			)
			e.extensions.EmitThreadCompleted(ctx, cp)

		case e.gates.Blocks(cp):
			if cp, err = e.commit(ctx, cp, e.pause(cp.NextNode)); err != nil {
				return err
			}
			e.logger.Info("thread waiting for approval",
				slog.String("thread_id", threadID.String()),
				slog.String("node", cp.NextNode),
			)
			e.extensions.EmitGateReached(ctx, cp)

		default:
			if cp, err = e.step(ctx, cp); err != nil {
				return err
			}
		}
	}
	return nil
}

// step executes cp.NextNode and persists its outcome.
func (e *Engine) step(ctx context.Context, cp *checkpoint.Checkpoint) (*checkpoint.Checkpoint, error) {
	name := cp.NextNode
	spec, ok := e.registry.Get(name)
	if !ok {
		return e.fail(ctx, cp, name, fmt.Errorf("%w: %q", waypoint.ErrUnknownNode, name))
	}

	call := &mw.Call{
		ThreadID: cp.ThreadID,
		Node:     name,
		Sequence: cp.Sequence,
		Timeout:  spec.Timeout,
	}

	var out checkpoint.State
	start := time.Now()
	err := e.chain(ctx, call, func(ctx context.Context) error {
		var ferr error
		out, ferr = spec.Func(ctx, cp.State.Clone())
		return ferr
	})
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("node %s interrupted: %w", name, ctxErr)
		}
		return e.fail(ctx, cp, name, err)
	}

	next, err := e.commit(ctx, cp, e.advance(name, out))
	if err != nil {
		return nil, err
	}
	e.extensions.EmitNodeCompleted(ctx, next, name, elapsed)
	return next, nil
}

// fail persists a node failure and notifies extensions.
func (e *Engine) fail(ctx context.Context, cp *checkpoint.Checkpoint, name string, cause error) (*checkpoint.Checkpoint, error) {
	nodeErr := &NodeError{Node: name, Err: cause}
	e.extensions.EmitNodeFailed(ctx, cp, name, nodeErr)

	next, err := e.commit(ctx, cp, failNode(name, nodeErr))
	if err != nil {
		return nil, err
	}
	e.logger.Warn("thread failed",
		slog.String("thread_id", cp.ThreadID.String()),
		slog.String("node", name),
		slog.String("error", nodeErr.Error()),
	)
	e.extensions.EmitThreadFailed(ctx, next, nodeErr)
	return next, nil
}

// commit applies t to a copy of cp and saves it at the next sequence. On a
// stale save it reloads the thread and re-applies t exactly once.
func (e *Engine) commit(ctx context.Context, cp *checkpoint.Checkpoint, t transition) (*checkpoint.Checkpoint, error) {
	next, err := e.apply(ctx, cp, t)
	if err == nil || !errors.Is(err, waypoint.ErrStaleCheckpoint) {
		return next, err
	}

	e.logger.Warn("stale checkpoint, retrying against latest",
		slog.String("thread_id", cp.ThreadID.String()),
		slog.Int64("sequence", cp.Sequence),
	)
	fresh, lerr := e.store.Load(ctx, cp.ThreadID)
	if lerr != nil {
		return nil, fmt.Errorf("reload thread %s: %w", cp.ThreadID, lerr)
	}
	next, err = e.apply(ctx, fresh, t)
	if err != nil {
		return nil, fmt.Errorf("commit thread %s after reload: %w", cp.ThreadID, err)
	}
	return next, nil
}

func (e *Engine) apply(ctx context.Context, cp *checkpoint.Checkpoint, t transition) (*checkpoint.Checkpoint, error) {
	next := cp.Clone()
	if err := t(next); err != nil {
		return nil, err
	}
	next.Sequence = cp.Sequence + 1
	next.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}
