package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxClients bounds the limiter table. Idle clients are evicted first,
// then the least recently seen one.
const maxClients = 4096

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientState
	now     func() time.Time
}

type clientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientState),
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cs, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxClients {
			l.evict(now)
		}
		cs = &clientState{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = cs
	}
	cs.lastSeen = now
	return cs.limiter.AllowN(now, 1)
}

// evict drops clients whose bucket has refilled completely. If none has,
// it drops the least recently seen client. Must hold mu.
func (l *clientLimiter) evict(now time.Time) {
	idle := time.Duration(float64(l.burst) / float64(l.rps) * float64(time.Second))
	var (
		oldest     string
		oldestSeen time.Time
	)
	for k, cs := range l.clients {
		if now.Sub(cs.lastSeen) > idle {
			delete(l.clients, k)
			continue
		}
		if oldest == "" || cs.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = k, cs.lastSeen
		}
	}
	if len(l.clients) >= maxClients {
		delete(l.clients, oldest)
	}
}

func (l *clientLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.Last().Error()))
		}
		logger.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}
