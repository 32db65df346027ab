// Package reports implements the demo report-analysis workflow: an
// orchestrator, a keyword-driven report identifier, a runner that extracts
// mock metrics and a summary agent that turns them into insights.
package reports

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/waypoint/node"
)

// Node names in execution order.
const (
	NodeOrchestrator = "orchestrator"
	NodeIdentifier   = "report_identifier"
	NodeRunner       = "report_runner"
	NodeSummary      = "summary_agent"
)

// DefaultGate is the node that waits for approval by default: reports are
// identified but not processed until someone signs off.
const DefaultGate = NodeRunner

// Option configures the report nodes.
type Option func(*workflow)

// WithLogger sets the logger the nodes report progress on.
func WithLogger(l *slog.Logger) Option {
	return func(w *workflow) { w.logger = l }
}

// WithLatency makes each node sleep to simulate real work. The orchestrator
// takes half of d, the runner d per report and the summary agent 1.5×d.
func WithLatency(d time.Duration) Option {
	return func(w *workflow) { w.latency = d }
}

type workflow struct {
	logger  *slog.Logger
	latency time.Duration
}

// Nodes returns the report workflow in execution order.
func Nodes(opts ...Option) []node.Spec {
	w := &workflow{logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return []node.Spec{
		{Name: NodeOrchestrator, Description: "Initialise the run and record the query", Func: w.orchestrate},
		{Name: NodeIdentifier, Description: "Pick the reports relevant to the query", Func: w.identify},
		{Name: NodeRunner, Description: "Extract metrics from each identified report", Func: w.run},
		{Name: NodeSummary, Description: "Summarise the extracted metrics", Func: w.summarize},
	}
}

// Registry builds a node registry for the report workflow.
func Registry(opts ...Option) (*node.Registry, error) {
	return node.NewRegistry(Nodes(opts...)...)
}

// sleep waits for d scaled by factor, returning early if ctx is done.
func (w *workflow) sleep(ctx context.Context, factor float64) error {
	d := time.Duration(float64(w.latency) * factor)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
