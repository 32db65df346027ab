package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/gate"
	"github.com/xraph/waypoint/id"
	"github.com/xraph/waypoint/node"
)

// ErrBadRequest reports a request the controller cannot route or parse.
var ErrBadRequest = errors.New("session: bad request")

// Engine is the engine surface the controller drives.
type Engine interface {
	StartThread(ctx context.Context, threadID id.ThreadID, state checkpoint.State) (*checkpoint.Checkpoint, error)
	Poll(ctx context.Context, threadID id.ThreadID) (*checkpoint.Checkpoint, error)
	Decide(ctx context.Context, threadID id.ThreadID, approved bool) (*checkpoint.Checkpoint, error)
	List(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error)
	Registry() *node.Registry
	Gates() gate.Set
}

// NodeInfo describes one registered node.
type NodeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Index       int    `json:"index"`
	Gated       bool   `json:"gated"`
}

// ChatRequest is the combined start/poll/decide request.
type ChatRequest struct {
	Message  string `json:"message,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	// Approved is set only when the client is deciding a gate.
	Approved *bool `json:"approved,omitempty"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithPollInterval sets the retry_after hint given to clients.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollInterval = d }
}

// Controller shapes engine state for clients.
type Controller struct {
	eng          Engine
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewController returns a controller over eng.
func NewController(eng Engine, opts ...Option) *Controller {
	c := &Controller{
		eng:          eng,
		logger:       slog.Default(),
		pollInterval: waypoint.DefaultConfig().PollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Describe builds the status payload for cp.
func (c *Controller) Describe(cp *checkpoint.Checkpoint) *Status {
	return Describe(c.eng.Registry(), cp, c.pollInterval)
}

// Nodes lists the registry in execution order.
func (c *Controller) Nodes() []NodeInfo {
	gates := c.eng.Gates()
	specs := c.eng.Registry().Specs()
	out := make([]NodeInfo, len(specs))
	for i, spec := range specs {
		out[i] = NodeInfo{
			Name:        spec.Name,
			Description: spec.Description,
			Index:       i,
			Gated:       gates.Contains(spec.Name),
		}
	}
	return out
}

// Start begins a new thread for message.
func (c *Controller) Start(ctx context.Context, message string) (*Status, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrBadRequest)
	}
	cp, err := c.eng.StartThread(ctx, id.Nil, checkpoint.State{Input: message})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("session started", slog.String("thread_id", cp.ThreadID.String()))
	return c.Describe(cp), nil
}

// Poll returns the current status of a thread.
func (c *Controller) Poll(ctx context.Context, threadID string) (*Status, error) {
	tid, err := parseThreadID(threadID)
	if err != nil {
		return nil, err
	}
	cp, err := c.eng.Poll(ctx, tid)
	if err != nil {
		return nil, err
	}
	return c.Describe(cp), nil
}

// Decide approves or rejects the gate a thread is waiting at.
func (c *Controller) Decide(ctx context.Context, threadID string, approved bool) (*Status, error) {
	tid, err := parseThreadID(threadID)
	if err != nil {
		return nil, err
	}
	cp, err := c.eng.Decide(ctx, tid, approved)
	if err != nil {
		return nil, err
	}
	return c.Describe(cp), nil
}

// List returns the status of threads, optionally filtered by status.
func (c *Controller) List(ctx context.Context, opts checkpoint.ListOpts) ([]*Status, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, opts.Status)
	}
	cps, err := c.eng.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*Status, len(cps))
	for i, cp := range cps {
		out[i] = c.Describe(cp)
	}
	return out, nil
}

// Chat routes the combined request: a thread id with a decision decides,
// a thread id alone polls, a message alone starts a thread.
func (c *Controller) Chat(ctx context.Context, req ChatRequest) (*Status, error) {
	switch {
	case req.ThreadID != "" && req.Approved != nil:
		return c.Decide(ctx, req.ThreadID, *req.Approved)
	case req.ThreadID != "":
		return c.Poll(ctx, req.ThreadID)
	case strings.TrimSpace(req.Message) != "":
		return c.Start(ctx, req.Message)
	default:
		return nil, fmt.Errorf("%w: either message or thread_id must be provided", ErrBadRequest)
	}
}

func parseThreadID(s string) (id.ThreadID, error) {
	tid, err := id.ParseThreadID(s)
	if err != nil {
		return id.Nil, fmt.Errorf("%w: invalid thread id %q: %w", ErrBadRequest, s, err)
	}
	return tid, nil
}
