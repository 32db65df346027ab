package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
)

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

const sweepPageSize = 100

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the structured logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = l }
}

// WithClock replaces the time source used to judge expiry and to compute
// the next sweep.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// Decider is the engine surface the sweeper drives. Decisions are pinned
// to the sequence the sweeper inspected.
type Decider interface {
	Poll(ctx context.Context, threadID id.ThreadID) (*checkpoint.Checkpoint, error)
	List(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error)
	DecideAt(ctx context.Context, threadID id.ThreadID, approved bool, sequence int64) (*checkpoint.Checkpoint, error)
}

// Sweeper rejects threads that have waited for approval longer than a
// timeout. It is a client of the engine like any other approver.
type Sweeper struct {
	eng      Decider
	timeout  time.Duration
	schedule cronlib.Schedule
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper builds a sweeper that runs on the cron expression spec and
// rejects threads idle at a gate for longer than timeout.
func NewSweeper(eng Decider, timeout time.Duration, spec string, opts ...SweeperOption) (*Sweeper, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("session: approval timeout must be positive, got %s", timeout)
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, fmt.Errorf("session: parse sweep schedule %q: %w", spec, err)
	}
	s := &Sweeper{
		eng:      eng,
		timeout:  timeout,
		schedule: sched,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the sweep loop.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.stopCh)
	s.logger.Info("approval sweeper started", slog.Duration("timeout", s.timeout))
	return nil
}

// Stop signals the loop to exit and waits for an in-flight sweep.
func (s *Sweeper) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("approval sweeper stopped")
	return nil
}

func (s *Sweeper) loop(stopCh <-chan struct{}) {
	defer s.wg.Done()

	for {
		now := s.now()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if n, err := s.Sweep(context.Background()); err != nil {
				s.logger.Warn("approval sweep failed",
					slog.Int("rejected", n),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Sweep rejects every expired waiting thread once and reports how many it
// rejected. Threads decided concurrently are skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.timeout)

	var expired []id.ThreadID
	for offset := 0; ; offset += sweepPageSize {
		page, err := s.eng.List(ctx, checkpoint.ListOpts{
			Status: checkpoint.StatusWaitingApproval,
			Limit:  sweepPageSize,
			Offset: offset,
		})
		if err != nil {
			return 0, fmt.Errorf("list waiting threads: %w", err)
		}
		for _, cp := range page {
			if cp.UpdatedAt.Before(cutoff) {
				expired = append(expired, cp.ThreadID)
			}
		}
		if len(page) < sweepPageSize {
			break
		}
	}

	var (
		rejected int
		errs     []error
	)
	for _, threadID := range expired {
		cp, err := s.eng.Poll(ctx, threadID)
		if err != nil {
			errs = append(errs, fmt.Errorf("poll %s: %w", threadID, err))
			continue
		}
		if cp.Status != checkpoint.StatusWaitingApproval || !cp.UpdatedAt.Before(cutoff) {
			continue
		}

		// Pinned to cp: a thread approved since the re-check is left alone.
		_, err = s.eng.DecideAt(ctx, threadID, false, cp.Sequence)
		switch {
		case err == nil:
			rejected++
			s.logger.Info("approval timed out",
				slog.String("thread_id", threadID.String()),
				slog.String("node", cp.NextNode),
			)
		case errors.Is(err, waypoint.ErrNotWaitingForApproval):
			// Decided meanwhile.
		default:
			errs = append(errs, fmt.Errorf("reject %s: %w", threadID, err))
		}
	}
	return rejected, errors.Join(errs...)
}
