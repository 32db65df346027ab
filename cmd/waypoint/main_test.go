package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xraph/waypoint/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvFile, "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func gatedLines(out string) []string {
	var gated []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[2] == "yes" {
			gated = append(gated, fields[1])
		}
	}
	return gated
}

func TestNodes_DefaultGate(t *testing.T) {
	out, err := execute(t, "nodes")
	if err != nil {
		t.Fatalf("nodes: %v", err)
	}
	for _, name := range []string{"orchestrator", "report_identifier", "report_runner", "summary_agent"} {
		if !strings.Contains(out, name) {
			t.Errorf("output missing %s:\n%s", name, out)
		}
	}
	if got := gatedLines(out); len(got) != 1 || got[0] != "report_runner" {
		t.Errorf("gated = %v, want [report_runner]", got)
	}
}

func TestNodes_GatesFlag(t *testing.T) {
	out, err := execute(t, "nodes", "--gates=orchestrator,summary_agent")
	if err != nil {
		t.Fatalf("nodes: %v", err)
	}
	got := gatedLines(out)
	if len(got) != 2 || got[0] != "orchestrator" || got[1] != "summary_agent" {
		t.Errorf("gated = %v, want [orchestrator summary_agent]", got)
	}

	out, err = execute(t, "nodes", "--gates=")
	if err != nil {
		t.Fatalf("nodes: %v", err)
	}
	if got := gatedLines(out); len(got) != 0 {
		t.Errorf("expected no gates, got %v", got)
	}
}

func TestNodes_UnknownGate(t *testing.T) {
	if _, err := execute(t, "nodes", "--gates=approve_everything"); err == nil {
		t.Fatal("expected error for unknown gate")
	}
}

func TestNodes_GatesFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	if err := os.WriteFile(path, []byte("gates: [report_identifier]\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, "nodes", "--config", path)
	if err != nil {
		t.Fatalf("nodes: %v", err)
	}
	if got := gatedLines(out); len(got) != 1 || got[0] != "report_identifier" {
		t.Errorf("gated = %v, want [report_identifier]", got)
	}

	// An explicit flag wins over the file.
	out, err = execute(t, "nodes", "--config", path, "--gates=summary_agent")
	if err != nil {
		t.Fatalf("nodes: %v", err)
	}
	if got := gatedLines(out); len(got) != 1 || got[0] != "summary_agent" {
		t.Errorf("gated = %v, want [summary_agent]", got)
	}
}

func TestMigrate_Memory(t *testing.T) {
	if _, err := execute(t, "migrate", "--store", "memory"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func TestMigrate_InvalidConfig(t *testing.T) {
	_, err := execute(t, "migrate", "--store", "sqlite")
	if err == nil || !strings.Contains(err.Error(), "store.driver") {
		t.Fatalf("expected store.driver error, got %v", err)
	}

	_, err = execute(t, "migrate", "--store", "redis")
	if err == nil || !strings.Contains(err.Error(), "store.dsn") {
		t.Fatalf("expected store.dsn error, got %v", err)
	}
}

func TestServe_RejectsBadLogLevel(t *testing.T) {
	_, err := execute(t, "serve", "--log-level", "chatty")
	if err == nil || !strings.Contains(err.Error(), "unknown level") {
		t.Fatalf("expected log level error, got %v", err)
	}
}

func TestOpenStore_Memory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, closeStore, err := openStore(context.Background(), config.Store{Driver: config.DriverMemory}, logger)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate: %v", err)
	}
	if err := closeStore(); err != nil {
		t.Errorf("close: %v", err)
	}
}
