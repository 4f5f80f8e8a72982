package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(t *testing.T, maxRequests int, window time.Duration) (*Limiter, *clock) {
	t.Helper()
	l := NewLimiter(maxRequests, window)
	t.Cleanup(l.Stop)
	c := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	l.now = c.now
	return l, c
}

func TestLimiter_AllowsUpToMax(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Hour)

	for i := 0; i < 3; i++ {
		allowed, wait := l.Allow("10.0.0.1")
		assert.True(t, allowed, "request %d", i)
		assert.Zero(t, wait)
	}

	allowed, wait := l.Allow("10.0.0.1")
	assert.False(t, allowed)
	assert.Equal(t, time.Hour, wait)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Hour)

	allowed, _ := l.Allow("a")
	require.True(t, allowed)
	allowed, _ = l.Allow("a")
	require.False(t, allowed)

	allowed, _ = l.Allow("b")
	assert.True(t, allowed)
}

func TestLimiter_BlockedUntilWindowEnds(t *testing.T) {
	l, c := newTestLimiter(t, 1, 10*time.Minute)

	l.Allow("a")
	l.Allow("a")

	c.t = c.t.Add(4 * time.Minute)
	allowed, wait := l.Allow("a")
	assert.False(t, allowed)
	assert.Equal(t, 6*time.Minute, wait)

	c.t = c.t.Add(6 * time.Minute)
	allowed, _ = l.Allow("a")
	assert.True(t, allowed)
}

func TestLimiter_Evict(t *testing.T) {
	l, c := newTestLimiter(t, 1, time.Minute)
	l.Allow("a")

	c.t = c.t.Add(2 * time.Minute)
	l.evict()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.clients)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name        string
		remoteAddr  string
		forwarded   string
		behindProxy bool
		want        string
	}{
		{name: "remote addr", remoteAddr: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "forwarded ignored without proxy", remoteAddr: "192.0.2.1:5555", forwarded: "203.0.113.9", want: "192.0.2.1"},
		{name: "forwarded first hop behind proxy", remoteAddr: "10.0.0.2:80", forwarded: "203.0.113.9, 10.0.0.2", behindProxy: true, want: "203.0.113.9"},
		{name: "no forwarded header behind proxy", remoteAddr: "10.0.0.2:80", behindProxy: true, want: "10.0.0.2"},
		{name: "addr without port", remoteAddr: "unix", want: "unix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/transcripts", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.behindProxy))
		})
	}
}
