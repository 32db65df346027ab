// Package worker runs thread advancement asynchronously on a bounded pool
// of goroutines. Threads are submitted by ID through a mailbox; a thread
// that is already queued is not queued twice.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/backoff"
	"github.com/xraph/waypoint/id"
)

// RunFunc advances one thread as far as it can go.
type RunFunc func(ctx context.Context, threadID id.ThreadID) error

// Scheduler accepts threads for asynchronous advancement.
type Scheduler interface {
	// Schedule queues threadID to be run. It must not block on the run
	// itself; it may block until the mailbox has room or ctx ends.
	Schedule(ctx context.Context, threadID id.ThreadID) error
}

// Compile-time interface checks.
var (
	_ Scheduler = (*Pool)(nil)
	_ Scheduler = Inline(nil)
)

// Pool manages a set of goroutines that drain a mailbox of thread IDs and
// run each through RunFunc, retrying transient failures with backoff.
type Pool struct {
	run         RunFunc
	logger      *slog.Logger
	concurrency int
	mailboxSize int
	maxAttempts int
	strategy    backoff.Strategy
	retryable   func(error) bool

	mailbox chan id.ThreadID
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// pending holds IDs queued but not yet picked up.
	pending   map[string]struct{}
	pendingMu sync.Mutex

	// activeRuns is keyed per execution; one thread may have two runs
	// in flight when it is rescheduled mid-run.
	activeRuns map[uint64]activeRun
	activeMu   sync.Mutex
	runSeq     uint64
}

type activeRun struct {
	threadID string
	cancel   context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithMailboxSize sets the capacity of the submission channel.
func WithMailboxSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.mailboxSize = n
		}
	}
}

// WithMaxAttempts sets how many times a failing run is attempted.
func WithMaxAttempts(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay strategy between attempts.
func WithBackoff(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.strategy = s }
}

// WithRetryable sets the predicate that decides which run errors are
// worth another attempt. By default no error is retried.
func WithRetryable(fn func(error) bool) PoolOption {
	return func(p *Pool) { p.retryable = fn }
}

// NewPool creates a worker pool. Call Start before scheduling.
func NewPool(run RunFunc, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		run:         run,
		logger:      logger,
		concurrency: 10,
		mailboxSize: 256,
		maxAttempts: 1,
		strategy:    backoff.DefaultStrategy(),
		retryable:   func(error) bool { return false },
		pending:     make(map[string]struct{}),
		activeRuns:  make(map[uint64]activeRun),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.mailbox = make(chan id.ThreadID, p.mailboxSize)
	p.stopCh = make(chan struct{})

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Int("mailbox_size", p.mailboxSize),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.loop()
	}
	return nil
}

// Schedule queues threadID for a run. A thread already waiting in the
// mailbox is not queued again. It returns waypoint.ErrPoolStopped when the
// pool is not running.
func (p *Pool) Schedule(ctx context.Context, threadID id.ThreadID) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return waypoint.ErrPoolStopped
	}
	mailbox, stopCh := p.mailbox, p.stopCh
	p.mu.Unlock()

	key := threadID.String()
	p.pendingMu.Lock()
	if _, queued := p.pending[key]; queued {
		p.pendingMu.Unlock()
		return nil
	}
	p.pending[key] = struct{}{}
	p.pendingMu.Unlock()

	select {
	case mailbox <- threadID:
		return nil
	case <-stopCh:
		p.unpend(key)
		return waypoint.ErrPoolStopped
	case <-ctx.Done():
		p.unpend(key)
		return ctx.Err()
	}
}

// Pending returns the number of threads waiting in the mailbox.
func (p *Pool) Pending() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return len(p.pending)
}

// Active returns the number of runs currently executing.
func (p *Pool) Active() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.activeRuns)
}

// Stop signals all workers to stop and waits for in-flight runs to finish.
// Threads still in the mailbox are dropped; their checkpoints stay running
// and are picked up again on the next start. If ctx ends first, active
// runs are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active runs")
		p.cancelActiveRuns()
		<-done
	}

	p.pendingMu.Lock()
	clear(p.pending)
	p.pendingMu.Unlock()
	return nil
}

func (p *Pool) loop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case threadID := <-p.mailbox:
			p.execute(threadID)
		}
	}
}

func (p *Pool) execute(threadID id.ThreadID) {
	key := threadID.String()
	p.unpend(key)

	ctx, cancel := context.WithCancel(context.Background())
	token := p.trackRun(key, cancel)
	defer func() {
		p.untrackRun(token)
		cancel()
	}()

	attempt := 0
	err := backoff.Retry(ctx, p.strategy, p.maxAttempts, p.retryable, func(ctx context.Context) error {
		attempt++
		err := p.run(ctx, threadID)
		if err != nil && attempt < p.maxAttempts && p.retryable(err) {
			p.logger.Warn("thread run failed, retrying",
				slog.String("thread_id", key),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return err
	})
	if err != nil {
		p.logger.Error("thread run failed",
			slog.String("thread_id", key),
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) unpend(key string) {
	p.pendingMu.Lock()
	delete(p.pending, key)
	p.pendingMu.Unlock()
}

func (p *Pool) trackRun(key string, cancel context.CancelFunc) uint64 {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	p.runSeq++
	p.activeRuns[p.runSeq] = activeRun{threadID: key, cancel: cancel}
	return p.runSeq
}

func (p *Pool) untrackRun(token uint64) {
	p.activeMu.Lock()
	delete(p.activeRuns, token)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveRuns() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for _, run := range p.activeRuns {
		p.logger.Warn("cancelling active run", slog.String("thread_id", run.threadID))
		run.cancel()
	}
}
