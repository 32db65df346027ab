package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.ThreadStarted   = (*MetricsExtension)(nil)
	_ ext.GateReached     = (*MetricsExtension)(nil)
	_ ext.ThreadApproved  = (*MetricsExtension)(nil)
	_ ext.ThreadRejected  = (*MetricsExtension)(nil)
	_ ext.ThreadCompleted = (*MetricsExtension)(nil)
	_ ext.ThreadFailed    = (*MetricsExtension)(nil)
	_ ext.NodeCompleted   = (*MetricsExtension)(nil)
	_ ext.NodeFailed      = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/waypoint/observability"

// MetricsExtension records system-wide lifecycle metrics as OTel counters.
// Register it as a Waypoint extension to track thread starts, gate
// pauses, decisions and terminal outcomes.
type MetricsExtension struct {
	ThreadStarted   metric.Int64Counter
	GateReached     metric.Int64Counter
	ThreadApproved  metric.Int64Counter
	ThreadRejected  metric.Int64Counter
	ThreadCompleted metric.Int64Counter
	ThreadFailed    metric.Int64Counter
	NodeCompleted   metric.Int64Counter
	NodeFailed      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		// On error the OTel API hands back a noop instrument.
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	return &MetricsExtension{
		ThreadStarted:   counter("waypoint.thread.started", "Threads started"),
		GateReached:     counter("waypoint.gate.reached", "Threads paused at an approval gate"),
		ThreadApproved:  counter("waypoint.thread.approved", "Approval decisions"),
		ThreadRejected:  counter("waypoint.thread.rejected", "Rejection decisions"),
		ThreadCompleted: counter("waypoint.thread.completed", "Threads completed"),
		ThreadFailed:    counter("waypoint.thread.failed", "Threads failed"),
		NodeCompleted:   counter("waypoint.node.completed", "Node executions persisted"),
		NodeFailed:      counter("waypoint.node.failed", "Node executions that returned an error"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Thread lifecycle hooks ──────────────────────────

// OnThreadStarted implements ext.ThreadStarted.
func (m *MetricsExtension) OnThreadStarted(ctx context.Context, _ *checkpoint.Checkpoint) error {
	m.ThreadStarted.Add(ctx, 1)
	return nil
}

// OnGateReached implements ext.GateReached.
func (m *MetricsExtension) OnGateReached(ctx context.Context, cp *checkpoint.Checkpoint) error {
	m.GateReached.Add(ctx, 1, nodeAttr(cp.NextNode))
	return nil
}

// OnThreadApproved implements ext.ThreadApproved.
func (m *MetricsExtension) OnThreadApproved(ctx context.Context, cp *checkpoint.Checkpoint) error {
	m.ThreadApproved.Add(ctx, 1, nodeAttr(cp.NextNode))
	return nil
}

// OnThreadRejected implements ext.ThreadRejected.
func (m *MetricsExtension) OnThreadRejected(ctx context.Context, cp *checkpoint.Checkpoint) error {
	m.ThreadRejected.Add(ctx, 1, nodeAttr(cp.NextNode))
	return nil
}

// OnThreadCompleted implements ext.ThreadCompleted.
func (m *MetricsExtension) OnThreadCompleted(ctx context.Context, _ *checkpoint.Checkpoint) error {
	m.ThreadCompleted.Add(ctx, 1)
	return nil
}

// OnThreadFailed implements ext.ThreadFailed.
func (m *MetricsExtension) OnThreadFailed(ctx context.Context, _ *checkpoint.Checkpoint, _ error) error {
	m.ThreadFailed.Add(ctx, 1)
	return nil
}

// ── Node lifecycle hooks ────────────────────────────

// OnNodeCompleted implements ext.NodeCompleted.
func (m *MetricsExtension) OnNodeCompleted(ctx context.Context, _ *checkpoint.Checkpoint, node string, _ time.Duration) error {
	m.NodeCompleted.Add(ctx, 1, nodeAttr(node))
	return nil
}

// OnNodeFailed implements ext.NodeFailed.
func (m *MetricsExtension) OnNodeFailed(ctx context.Context, _ *checkpoint.Checkpoint, node string, _ error) error {
	m.NodeFailed.Add(ctx, 1, nodeAttr(node))
	return nil
}

func nodeAttr(node string) metric.AddOption {
	return metric.WithAttributes(attribute.String("node", node))
}
