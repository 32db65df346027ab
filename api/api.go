package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/waypoint/session"
)

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger used for request logs.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithRateLimit limits each client to rps requests per second with the
// given burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(a *API) {
		if rps <= 0 {
			a.limiter = nil
			return
		}
		a.limiter = newClientLimiter(rps, burst)
	}
}

// WithHealthCheck sets a probe run by GET /health, typically the store's
// Ping.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(a *API) { a.health = fn }
}

// API wires the HTTP handlers to a session controller.
type API struct {
	ctrl    *session.Controller
	logger  *slog.Logger
	limiter *clientLimiter
	health  func(ctx context.Context) error
}

// New creates an API over ctrl.
func New(ctrl *session.Controller, opts ...Option) *API {
	a := &API{
		ctrl:   ctrl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a gin engine with every route registered.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.logger))
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes on r.
func (a *API) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", a.healthCheck)

	limited := r.Group("")
	if a.limiter != nil {
		limited.Use(a.limiter.middleware())
	}
	limited.POST("/chat", a.chat)

	v1 := limited.Group("/v1")
	{
		v1.POST("/threads", a.startThread)
		v1.GET("/threads", a.listThreads)
		v1.GET("/threads/:threadId", a.getThread)
		v1.POST("/threads/:threadId/decision", a.decide)
		v1.GET("/nodes", a.listNodes)
	}
}
