// Package ratelimit provides internal per-client rate limiting.
// This package is internal and should not be imported by external projects.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// 🚦 入站限流器
// =============================================================================

// Limiter 按客户端 IP 维护令牌桶。闲置桶定期回收，避免 map 无界增长。
type Limiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// idleTTL 闲置桶的回收阈值。
const idleTTL = 10 * time.Minute

// NewLimiter 创建限流器并启动后台回收。
func NewLimiter(rps float64, burst int) *Limiter {
	l := &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
	go l.cleanupLoop()
	return l
}

// Allow 判断该客户端当前是否放行。
func (l *Limiter) Allow(clientIP string) bool {
	l.mu.Lock()
	b, ok := l.buckets[clientIP]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[clientIP] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	return b.limiter.Allow()
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-idleTTL)
		l.mu.Lock()
		for ip, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, ip)
			}
		}
		l.mu.Unlock()
	}
}
