package http

import (
	"sync"
	"time"
)

// rateLimiter implements a simple in-memory rate limiter per client IP.
// Stale entries are pruned inline on each check, so no cleanup goroutine runs.
type rateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientInfo
	lastPrune time.Time
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		clients:   make(map[string]*clientInfo),
		lastPrune: time.Now(),
	}
}

// allow checks if a request from the given IP should be allowed.
// Returns false if rate limit (60 requests per minute) is exceeded.
func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.pruneStaleEntries(now)

	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// pruneStaleEntries removes client entries older than 10 minutes.
// Runs at most once every 5 minutes. Caller must hold rl.mu.
func (rl *rateLimiter) pruneStaleEntries(now time.Time) {
	if now.Sub(rl.lastPrune) < 5*time.Minute {
		return
	}
	rl.lastPrune = now

	cutoff := now.Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}
