package waypoint

import "time"

// Config holds configuration shared by the engine, worker pool and
// session controller.
type Config struct {
	// Concurrency is the number of threads that may execute at once.
	Concurrency int `yaml:"concurrency"`

	// MailboxSize bounds how many thread runs may be queued for the
	// worker pool before Schedule blocks.
	MailboxSize int `yaml:"mailbox_size"`

	// PollInterval is the retry interval suggested to polling clients
	// while a thread is not terminal.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ShutdownTimeout is the maximum time to wait for in-flight nodes
	// during graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxRunAttempts is how many times the pool runs a thread when the
	// run fails with a transient (store) error.
	MaxRunAttempts int `yaml:"max_run_attempts"`

	// ApprovalTimeout rejects threads left waiting for approval longer
	// than this. Zero disables the policy.
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`

	// ApprovalSweep is the cron spec for the approval timeout sweeper.
	ApprovalSweep string `yaml:"approval_sweep"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		MailboxSize:     256,
		PollInterval:    2 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxRunAttempts:  3,
		ApprovalSweep:   "@every 30s",
	}
}
