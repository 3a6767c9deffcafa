package http

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultWritePerMinute = 60

	limiterWindow   = time.Minute
	janitorInterval = 5 * time.Minute
	idleEvictAfter  = 10 * time.Minute
)

// writeLimiter caps write requests per client IP over a fixed one-minute
// window. Reads are never limited; the middleware only consults it for POST.
type writeLimiter struct {
	mu        sync.Mutex
	perMinute int
	now       func() time.Time

	windows  map[string]*ipWindow
	done     chan struct{}
	stopOnce sync.Once
}

// ipWindow counts requests since the window opened for one client IP.
type ipWindow struct {
	start time.Time
	seen  int
}

// newWriteLimiter builds a limiter allowing perMinute write requests per IP.
// Non-positive values fall back to the default of 60.
func newWriteLimiter(perMinute int) *writeLimiter {
	if perMinute <= 0 {
		perMinute = defaultWritePerMinute
	}
	wl := &writeLimiter{
		perMinute: perMinute,
		now:       time.Now,
		windows:   make(map[string]*ipWindow),
		done:      make(chan struct{}),
	}
	go wl.janitor()
	return wl
}

// allow reports whether another write from clientIP fits the current window,
// counting the request either way. Denials bump the security metrics.
func (wl *writeLimiter) allow(clientIP string, metrics *securityMetrics) bool {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	now := wl.now()
	w, ok := wl.windows[clientIP]
	if !ok || now.Sub(w.start) >= limiterWindow {
		wl.windows[clientIP] = &ipWindow{start: now, seen: 1}
		return true
	}

	w.seen++
	if w.seen > wl.perMinute {
		if metrics != nil {
			atomic.AddInt64(&metrics.rateLimitHits, 1)
		}
		return false
	}
	return true
}

// janitor evicts windows for IPs that have gone quiet, bounding memory on
// long-running servers.
func (wl *writeLimiter) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			wl.evictIdle()
		case <-wl.done:
			return
		}
	}
}

func (wl *writeLimiter) evictIdle() {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	cutoff := wl.now().Add(-idleEvictAfter)
	for ip, w := range wl.windows {
		if w.start.Before(cutoff) {
			delete(wl.windows, ip)
		}
	}
}

// stop shuts down the janitor goroutine. Safe to call more than once.
func (wl *writeLimiter) stop() {
	wl.stopOnce.Do(func() { close(wl.done) })
}
