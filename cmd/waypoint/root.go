package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/waypoint/internal/config"
	"github.com/xraph/waypoint/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// flags holds the persistent flags shared by every subcommand. A flag only
// overrides the config file when it was set explicitly.
type flags struct {
	configPath string

	logLevel  string
	logFormat string

	driver   string
	dsn      string
	database string

	addr            string
	gates           []string
	concurrency     int
	approvalTimeout time.Duration
	latency         time.Duration
	rateLimit       float64
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "waypoint",
		Short: "Checkpointed step execution with approval gates",
		Long: "waypoint runs an ordered list of nodes per thread, persisting a checkpoint\n" +
			"after every step and pausing before gated nodes until someone approves.",
		Version:      version,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Path to YAML config (default $"+config.EnvFile+")")
	pf.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&f.driver, "store", config.DriverMemory, "Store driver: memory, postgres, bun, redis, mongo")
	pf.StringVar(&f.dsn, "dsn", "", "Store connection string (postgres DSN, redis URL or mongo URI)")
	pf.StringVar(&f.database, "database", "waypoint", "Mongo database name")
	pf.StringSliceVar(&f.gates, "gates", nil, "Nodes that require approval (default report_runner)")

	root.AddCommand(newServeCmd(f))
	root.AddCommand(newMigrateCmd(f))
	root.AddCommand(newNodesCmd(f))
	return root
}

// load reads the config file and applies explicitly set flags on top.
func (f *flags) load(cmd *cobra.Command) (config.File, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.File{}, err
	}

	changed := cmd.Flags().Changed
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("store") {
		cfg.Store.Driver = f.driver
	}
	if changed("dsn") {
		cfg.Store.DSN = f.dsn
	}
	if changed("database") {
		cfg.Store.Database = f.database
	}
	if changed("gates") {
		cfg.Gates = append([]string{}, f.gates...)
	}
	if changed("addr") {
		cfg.Addr = f.addr
	}
	if changed("concurrency") {
		cfg.Engine.Concurrency = f.concurrency
	}
	if changed("approval-timeout") {
		cfg.Engine.ApprovalTimeout = f.approvalTimeout
	}
	if changed("latency") {
		cfg.Reports.Latency = f.latency
	}
	if changed("rate-limit") {
		cfg.Limit.RPS = f.rateLimit
	}

	if err := cfg.Validate(); err != nil {
		return config.File{}, fmt.Errorf("config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.File{}, err
	}
	logging.Init(level, cfg.Log.Format, cmd.ErrOrStderr())
	return cfg, nil
}

func logStartup(logger *slog.Logger, cfg config.File) {
	logger.Info("configuration loaded",
		slog.String("store", cfg.Store.Driver),
		slog.Any("gates", cfg.Gates),
		slog.Int("concurrency", cfg.Engine.Concurrency),
		slog.Duration("approval_timeout", cfg.Engine.ApprovalTimeout),
	)
}
