// Package config loads the waypoint binary's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/session"
)

// EnvFile names the environment variable holding the default config path.
const EnvFile = "WAYPOINT_CONFIG"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBun      = "bun"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// Drivers lists the supported store drivers.
var Drivers = []string{DriverMemory, DriverPostgres, DriverBun, DriverRedis, DriverMongo}

// File is the on-disk configuration.
type File struct {
	Addr    string          `yaml:"addr"`
	Store   Store           `yaml:"store"`
	Log     Log             `yaml:"log"`
	Gates   []string        `yaml:"gates"`
	Limit   RateLimit       `yaml:"rate_limit"`
	Engine  waypoint.Config `yaml:"engine"`
	Reports Reports         `yaml:"reports"`
}

// Store selects and addresses the checkpoint backend.
type Store struct {
	Driver string `yaml:"driver"`
	// DSN is a postgres connection string, a redis URL or a mongo URI.
	DSN string `yaml:"dsn"`
	// Database is the mongo database name.
	Database string `yaml:"database"`
	// Migrate runs schema migrations on serve start-up.
	Migrate bool `yaml:"migrate"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimit configures per-client HTTP rate limiting. Zero RPS disables it.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Reports configures the demo report nodes.
type Reports struct {
	Latency time.Duration `yaml:"latency"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	return File{
		Addr: ":8000",
		Store: Store{
			Driver:   DriverMemory,
			Database: "waypoint",
			Migrate:  true,
		},
		Log:    Log{Level: "info", Format: "text"},
		Engine: waypoint.DefaultConfig(),
	}
}

// Load reads path, falling back to $WAYPOINT_CONFIG. With neither set it
// returns Default. Values in the file override the defaults.
func Load(path string) (File, error) {
	if path == "" {
		path = os.Getenv(EnvFile)
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := Parse(data, &cfg); err != nil {
		return File{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping existing values for absent keys,
// and validates the result.
func Parse(data []byte, cfg *File) error {
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
	}
	return cfg.Validate()
}

// Validate checks the configuration for values the binary cannot use.
func (f File) Validate() error {
	var errs []error
	if !slices.Contains(Drivers, f.Store.Driver) {
		errs = append(errs, fmt.Errorf("store.driver %q must be one of %s", f.Store.Driver, strings.Join(Drivers, ", ")))
	}
	if f.Store.Driver != DriverMemory && f.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", f.Store.Driver))
	}
	if f.Store.Driver == DriverMongo && f.Store.Database == "" {
		errs = append(errs, errors.New("store.database is required for driver mongo"))
	}
	if f.Engine.Concurrency < 1 {
		errs = append(errs, errors.New("engine.concurrency must be at least 1"))
	}
	if f.Engine.ApprovalTimeout < 0 {
		errs = append(errs, errors.New("engine.approval_timeout must not be negative"))
	}
	if f.Engine.ApprovalTimeout > 0 {
		if _, err := session.ParseSchedule(f.Engine.ApprovalSweep); err != nil {
			errs = append(errs, fmt.Errorf("engine.approval_sweep: %w", err))
		}
	}
	if f.Limit.RPS < 0 {
		errs = append(errs, errors.New("rate_limit.rps must not be negative"))
	}
	return errors.Join(errs...)
}
