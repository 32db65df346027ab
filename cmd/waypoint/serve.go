package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/waypoint/api"
	audithook "github.com/xraph/waypoint/audit_hook"
	"github.com/xraph/waypoint/engine"
	"github.com/xraph/waypoint/internal/logging"
	"github.com/xraph/waypoint/session"
)

func newServeCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and the HTTP API",
		Long: `Starts the worker pool, resumes threads left running by a previous
process and serves the chat API. With --approval-timeout set, threads
left waiting for approval longer than the timeout are rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", ":8000", "HTTP listen address")
	fl.IntVar(&f.concurrency, "concurrency", 10, "Threads advanced at once")
	fl.DurationVar(&f.approvalTimeout, "approval-timeout", 0, "Reject threads waiting for approval longer than this (0 disables)")
	fl.DurationVar(&f.latency, "latency", 0, "Simulated per-node work time for the report nodes")
	fl.Float64Var(&f.rateLimit, "rate-limit", 0, "Requests per second allowed per client (0 disables)")
	return cmd
}

func runServe(cmd *cobra.Command, f *flags) error {
	cfg, err := f.load(cmd)
	if err != nil {
		return err
	}
	logger := logging.New("serve")
	logStartup(logger, cfg)

	ctx := cmd.Context()

	st, closeStore, err := openStore(ctx, cfg.Store, logging.New("store"))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			logger.Warn("close store", slog.String("error", cerr.Error()))
		}
	}()

	if cfg.Store.Migrate {
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate %s store: %w", cfg.Store.Driver, err)
		}
	}

	reg, gates, err := buildWorkflow(cfg)
	if err != nil {
		return err
	}

	eng, err := engine.New(reg, gates, st,
		engine.WithLogger(logging.New("engine")),
		engine.WithConfig(cfg.Engine),
		engine.WithExtension(audithook.New(
			audithook.LogRecorder(logging.New("audit")),
			audithook.WithActions(
				audithook.ActionGateReached,
				audithook.ActionThreadApproved,
				audithook.ActionThreadRejected,
				audithook.ActionThreadCompleted,
				audithook.ActionThreadFailed,
			),
		)),
	)
	if err != nil {
		return err
	}

	var sweeper *session.Sweeper
	if cfg.Engine.ApprovalTimeout > 0 {
		sweeper, err = session.NewSweeper(eng, cfg.Engine.ApprovalTimeout, cfg.Engine.ApprovalSweep,
			session.WithSweeperLogger(logging.New("sweeper")),
		)
		if err != nil {
			return err
		}
	}

	ctrl := session.NewController(eng,
		session.WithLogger(logging.New("session")),
		session.WithPollInterval(cfg.Engine.PollInterval),
	)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.New(ctrl,
			api.WithLogger(logging.New("api")),
			api.WithRateLimit(cfg.Limit.RPS, cfg.Limit.Burst),
			api.WithHealthCheck(st.Ping),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	if sweeper != nil {
		if err := sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if sweeper != nil {
			if err := sweeper.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("stop sweeper: %w", err))
			}
		}
		if err := eng.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop engine: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
