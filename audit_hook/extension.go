package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.ThreadStarted   = (*Extension)(nil)
	_ ext.GateReached     = (*Extension)(nil)
	_ ext.ThreadApproved  = (*Extension)(nil)
	_ ext.ThreadRejected  = (*Extension)(nil)
	_ ext.ThreadCompleted = (*Extension)(nil)
	_ ext.ThreadFailed    = (*Extension)(nil)
	_ ext.NodeCompleted   = (*Extension)(nil)
	_ ext.NodeFailed      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes each event as one structured log line.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("category", evt.Category),
			slog.String("thread_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges waypoint lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Thread lifecycle hooks ──────────────────────────

// OnThreadStarted implements ext.ThreadStarted.
func (e *Extension) OnThreadStarted(ctx context.Context, cp *checkpoint.Checkpoint) error {
	return e.record(ctx, ActionThreadStarted, SeverityInfo, OutcomeSuccess,
		cp, CategoryThread, nil,
		"next_node", cp.NextNode,
	)
}

// OnGateReached implements ext.GateReached.
func (e *Extension) OnGateReached(ctx context.Context, cp *checkpoint.Checkpoint) error {
	return e.record(ctx, ActionGateReached, SeverityInfo, OutcomeSuccess,
		cp, CategoryApproval, nil,
		"gate", cp.NextNode,
		"last_node", cp.LastNode,
	)
}

// OnThreadApproved implements ext.ThreadApproved.
func (e *Extension) OnThreadApproved(ctx context.Context, cp *checkpoint.Checkpoint) error {
	return e.record(ctx, ActionThreadApproved, SeverityInfo, OutcomeSuccess,
		cp, CategoryApproval, nil,
		"gate", cp.ApprovedNode,
	)
}

// OnThreadRejected implements ext.ThreadRejected.
func (e *Extension) OnThreadRejected(ctx context.Context, cp *checkpoint.Checkpoint) error {
	gate := cp.NextNode
	if cp.State.Error != nil && cp.State.Error.Node != "" {
		gate = cp.State.Error.Node
	}
	return e.record(ctx, ActionThreadRejected, SeverityWarning, OutcomeFailure,
		cp, CategoryApproval, nil,
		"gate", gate,
	)
}

// OnThreadCompleted implements ext.ThreadCompleted.
func (e *Extension) OnThreadCompleted(ctx context.Context, cp *checkpoint.Checkpoint) error {
	return e.record(ctx, ActionThreadCompleted, SeverityInfo, OutcomeSuccess,
		cp, CategoryThread, nil,
		"elapsed_ms", cp.UpdatedAt.Sub(cp.CreatedAt).Milliseconds(),
	)
}

// OnThreadFailed implements ext.ThreadFailed.
func (e *Extension) OnThreadFailed(ctx context.Context, cp *checkpoint.Checkpoint, threadErr error) error {
	return e.record(ctx, ActionThreadFailed, SeverityCritical, OutcomeFailure,
		cp, CategoryThread, threadErr,
		"last_node", cp.LastNode,
	)
}

// ── Node lifecycle hooks ────────────────────────────

// OnNodeCompleted implements ext.NodeCompleted.
func (e *Extension) OnNodeCompleted(ctx context.Context, cp *checkpoint.Checkpoint, node string, elapsed time.Duration) error {
	return e.record(ctx, ActionNodeCompleted, SeverityInfo, OutcomeSuccess,
		cp, CategoryNode, nil,
		"node", node,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnNodeFailed implements ext.NodeFailed.
func (e *Extension) OnNodeFailed(ctx context.Context, cp *checkpoint.Checkpoint, node string, nodeErr error) error {
	return e.record(ctx, ActionNodeFailed, SeverityWarning, OutcomeFailure,
		cp, CategoryNode, nodeErr,
		"node", node,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	cp *checkpoint.Checkpoint,
	category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}
	meta["sequence"] = cp.Sequence

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	} else if cp.State.Error != nil {
		reason = cp.State.Error.Message
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceThread,
		Category:   category,
		ResourceID: cp.ThreadID.String(),
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", cp.ThreadID.String(),
			"error", recErr,
		)
	}
	return nil
}
