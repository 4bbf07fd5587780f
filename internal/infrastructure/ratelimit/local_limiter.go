// Package ratelimit gates signed order lookups by IP, user and order id
// before any call leaves the process, so abuse never consumes the
// storefront's own rate budget.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/convo/backend/internal/domain/orders"
)

// Thresholds holds the per-scope request ceilings within one window
type Thresholds struct {
	IPLimit    int
	UserLimit  int
	OrderLimit int
	Window     time.Duration
}

// DefaultThresholds returns the limits used when none are configured
func DefaultThresholds() Thresholds {
	return Thresholds{
		IPLimit:    10,
		UserLimit:  6,
		OrderLimit: 4,
		Window:     time.Minute,
	}
}

type counter struct {
	count     int
	windowEnd time.Time
}

// LocalLimiter is an in-memory fixed-window limiter suitable for
// single-instance deployments. Scopes are consulted in order ip, user,
// order; the first exhausted scope blocks and later scopes are not charged.
type LocalLimiter struct {
	mu         sync.Mutex
	counters   map[string]*counter
	thresholds Thresholds
	stopChan   chan struct{}
	closeOnce  sync.Once
}

// NewLocalLimiter creates a limiter and starts its cleanup goroutine
func NewLocalLimiter(t Thresholds) *LocalLimiter {
	l := &LocalLimiter{
		counters:   make(map[string]*counter),
		thresholds: t,
		stopChan:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Consume charges one lookup attempt against every applicable scope
func (l *LocalLimiter) Consume(ctx context.Context, ip, userID string, orderID int64) orders.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if ip != "" && !l.take("ip:"+ip, l.thresholds.IPLimit, now) {
		return orders.Decision{Allowed: false, BlockedBy: orders.ScopeIP}
	}
	if userID != "" && !l.take("user:"+userID, l.thresholds.UserLimit, now) {
		return orders.Decision{Allowed: false, BlockedBy: orders.ScopeUser}
	}
	if orderID > 0 && !l.take("order:"+strconv.FormatInt(orderID, 10), l.thresholds.OrderLimit, now) {
		return orders.Decision{Allowed: false, BlockedBy: orders.ScopeOrder}
	}

	return orders.Decision{Allowed: true}
}

func (l *LocalLimiter) take(key string, limit int, now time.Time) bool {
	if limit <= 0 {
		return true
	}

	c, ok := l.counters[key]
	if !ok || now.After(c.windowEnd) {
		l.counters[key] = &counter{count: 1, windowEnd: now.Add(l.thresholds.Window)}
		return true
	}

	if c.count >= limit {
		return false
	}
	c.count++
	return true
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *LocalLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
	})
	return nil
}

func (l *LocalLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.thresholds.Window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *LocalLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, c := range l.counters {
		if now.After(c.windowEnd) {
			delete(l.counters, key)
		}
	}
}

var _ orders.RateLimiter = (*LocalLimiter)(nil)
