package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/ext"
	"github.com/xraph/waypoint/id"
	"github.com/xraph/waypoint/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestCheckpoint() *checkpoint.Checkpoint {
	cp := checkpoint.New(id.NewThreadID(), "orchestrator", checkpoint.State{Input: "hi"})
	cp.NextNode = "report_runner"
	return cp
}

// counterValue sums every data point of the named counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		metric string
		fire   func(e *observability.MetricsExtension, cp *checkpoint.Checkpoint) error
	}{
		{"waypoint.thread.started", func(e *observability.MetricsExtension, cp *checkpoint.Checkpoint) error {
			return e.OnThreadStarted(ctx, cp)
		}},
		{"waypoint.gate.reached", func(e *observability.MetricsExtension, cp *checkpoint.Checkpoint) error {
			return e.OnGateReached(ctx, cp)
		}},
		{"waypoint.thread.approved", func(e *observability.MetricsExtension, cp *checkpoint.Checkpoint) error {
			return e.OnThreadApproved(ctx, cp)
		}},
		{"waypoint.thread.rejected", func(e *observability.MetricsExtension, cp *checkpoint.Checkpoint) error {
			return e.OnThreadRejected(ctx, cp)
		}},
		{"waypoint.thread.completed", func(e *observability.MetricsExtension, cp *checkpoint.Checkpoint) error {
			return e.OnThreadCompleted(ctx, cp)
		}},
		{"waypoint.thread.failed", func(e *observability.MetricsExtension, cp *checkpoint.Checkpoint) error {
			return e.OnThreadFailed(ctx, cp, errors.New("boom"))
		}},
		{"waypoint.node.completed", func(e *observability.MetricsExtension, cp *checkpoint.Checkpoint) error {
			return e.OnNodeCompleted(ctx, cp, "orchestrator", time.Millisecond)
		}},
		{"waypoint.node.failed", func(e *observability.MetricsExtension, cp *checkpoint.Checkpoint) error {
			return e.OnNodeFailed(ctx, cp, "report_runner", errors.New("boom"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.fire(e, newTestCheckpoint()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := counterValue(t, reader, tt.metric); got != 1 {
				t.Errorf("%s: want 1, got %d", tt.metric, got)
			}
		})
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	r := ext.NewRegistry(slog.Default())
	r.Register(e)

	ctx := context.Background()
	cp := newTestCheckpoint()
	r.EmitThreadStarted(ctx, cp)
	r.EmitNodeCompleted(ctx, cp, "orchestrator", time.Millisecond)
	r.EmitNodeCompleted(ctx, cp, "report_identifier", time.Millisecond)
	r.EmitGateReached(ctx, cp)

	if got := counterValue(t, reader, "waypoint.thread.started"); got != 1 {
		t.Errorf("thread.started: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "waypoint.node.completed"); got != 2 {
		t.Errorf("node.completed: want 2, got %d", got)
	}
	if got := counterValue(t, reader, "waypoint.gate.reached"); got != 1 {
		t.Errorf("gate.reached: want 1, got %d", got)
	}
}

func TestMetricsExtension_DefaultMeterSafe(t *testing.T) {
	e := observability.NewMetricsExtension()
	if err := e.OnThreadStarted(context.Background(), newTestCheckpoint()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
