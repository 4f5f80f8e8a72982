// Package ratelimit bounds how often one client may submit transcription
// jobs. Each accepted upload fans out into many speech-to-text calls.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type window struct {
	count        int
	start        time.Time
	blockedUntil time.Time
}

// Limiter allows at most maxRequests per client within a window; a client
// over the limit is blocked until the window ends.
type Limiter struct {
	mu          sync.Mutex
	clients     map[string]*window
	maxRequests int
	windowSize  time.Duration
	now         func() time.Time
	stop        chan struct{}
	stopOnce    sync.Once
}

func NewLimiter(maxRequests int, windowSize time.Duration) *Limiter {
	l := &Limiter{
		clients:     make(map[string]*window),
		maxRequests: maxRequests,
		windowSize:  windowSize,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow records a request from clientID and reports whether it may proceed.
// When it may not, the returned duration is how long to wait.
func (l *Limiter) Allow(clientID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[clientID]
	if !ok || now.Sub(w.start) >= l.windowSize {
		w = &window{start: now}
		l.clients[clientID] = w
	}

	if now.Before(w.blockedUntil) {
		return false, w.blockedUntil.Sub(now)
	}

	w.count++
	if w.count > l.maxRequests {
		w.blockedUntil = w.start.Add(l.windowSize)
		return false, w.blockedUntil.Sub(now)
	}
	return true, 0
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

func (l *Limiter) evict() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, w := range l.clients {
		if now.Sub(w.start) >= l.windowSize && now.After(w.blockedUntil) {
			delete(l.clients, id)
		}
	}
}

// ClientIP identifies the caller. X-Forwarded-For is honored only when
// behindProxy is set.
func ClientIP(r *http.Request, behindProxy bool) string {
	if behindProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
