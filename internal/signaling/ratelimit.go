package signaling

import (
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"voxhub/pkg/config"
)

// connLimiter enforces RateLimiting.WebSocket on a single connection: a
// token bucket over inbound messages, plus a hard cap on individual
// message size.
type connLimiter struct {
	enabled        bool
	messages       *rate.Limiter
	maxMessageSize int64
}

func newConnLimiter(cfg config.RateLimitingConfig) *connLimiter {
	if !cfg.Enabled {
		return &connLimiter{enabled: false}
	}
	return &connLimiter{
		enabled:        true,
		messages:       rate.NewLimiter(rate.Limit(cfg.WebSocket.MessagesPerSecond), cfg.WebSocket.Burst),
		maxMessageSize: cfg.WebSocket.MaxMessageSizeBytes,
	}
}

// AllowMessage reports whether one more inbound message may be processed
// right now.
func (l *connLimiter) AllowMessage() bool {
	if !l.enabled {
		return true
	}
	return l.messages.Allow()
}

// MaxMessageSize returns the configured per-message byte cap, or 0 if
// unbounded.
func (l *connLimiter) MaxMessageSize() int64 {
	if !l.enabled {
		return 0
	}
	return l.maxMessageSize
}

// connectLimiter throttles new connection attempts per remote address
// (RateLimiting.WebSocket.ConnectionsPerMinute), independent of any one
// connection's message rate.
type connectLimiter struct {
	enabled bool
	perMin  float64
	burst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newConnectLimiter(cfg config.RateLimitingConfig) *connectLimiter {
	if !cfg.Enabled || cfg.WebSocket.ConnectionsPerMinute <= 0 {
		return &connectLimiter{enabled: false}
	}
	return &connectLimiter{
		enabled:  true,
		perMin:   float64(cfg.WebSocket.ConnectionsPerMinute) / 60.0,
		burst:    cfg.WebSocket.ConnectionsPerMinute,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a new connection from r's remote address may be
// accepted right now.
func (c *connectLimiter) Allow(r *http.Request) bool {
	if !c.enabled {
		return true
	}
	key := remoteHost(r)
	c.mu.Lock()
	lim, ok := c.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.perMin), c.burst)
		c.limiters[key] = lim
	}
	c.mu.Unlock()
	return lim.Allow()
}

func remoteHost(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}
