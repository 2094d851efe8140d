package signaling

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"voxhub/pkg/config"
)

func TestConnLimiter_DisabledAlwaysAllows(t *testing.T) {
	l := newConnLimiter(config.RateLimitingConfig{Enabled: false})
	for i := 0; i < 1000; i++ {
		assert.True(t, l.AllowMessage())
	}
	assert.Equal(t, int64(0), l.MaxMessageSize())
}

func TestConnLimiter_EnforcesBurstAndReportsSizeCap(t *testing.T) {
	l := newConnLimiter(config.RateLimitingConfig{
		Enabled: true,
		WebSocket: config.WebSocketRateLimitConfig{
			MessagesPerSecond:   1,
			Burst:               2,
			MaxMessageSizeBytes: 1024,
		},
	})
	assert.True(t, l.AllowMessage())
	assert.True(t, l.AllowMessage())
	assert.False(t, l.AllowMessage())
	assert.Equal(t, int64(1024), l.MaxMessageSize())
}

func TestConnectLimiter_DisabledAlwaysAllows(t *testing.T) {
	l := newConnectLimiter(config.RateLimitingConfig{Enabled: false})
	req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow(req))
	}
}

func TestConnectLimiter_EnforcesPerAddressBurst(t *testing.T) {
	l := newConnectLimiter(config.RateLimitingConfig{
		Enabled: true,
		WebSocket: config.WebSocketRateLimitConfig{
			ConnectionsPerMinute: 2,
		},
	})
	req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "203.0.113.5:1234"

	assert.True(t, l.Allow(req))
	assert.True(t, l.Allow(req))
	assert.False(t, l.Allow(req))

	other, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	other.RemoteAddr = "203.0.113.9:1234"
	assert.True(t, l.Allow(other))
}
