package sshpool

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a host has exceeded its per-minute or
// per-hour command budget.
var ErrRateLimited = errors.New("sshpool: rate limit exceeded for host")

// RateLimiter enforces a dual sliding-window command budget per host: one
// cap over any trailing minute, a second over any trailing hour.
type RateLimiter struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	minuteLog map[string][]time.Time
	hourLog   map[string][]time.Time
}

// NewRateLimiter builds a limiter allowing perMinute commands in any
// trailing 60s window and perHour commands in any trailing 3600s window,
// per host.
func NewRateLimiter(perMinute, perHour int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		minuteLog: make(map[string][]time.Time),
		hourLog:   make(map[string][]time.Time),
	}
}

// Allow records an attempt for host at now and reports whether it falls
// within both budgets. Call exactly once per dispatched command, before
// issuing it.
func (r *RateLimiter) Allow(host string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.minuteLog[host] = prune(r.minuteLog[host], now, time.Minute)
	r.hourLog[host] = prune(r.hourLog[host], now, time.Hour)

	if len(r.minuteLog[host]) >= r.perMinute || len(r.hourLog[host]) >= r.perHour {
		return false
	}

	r.minuteLog[host] = append(r.minuteLog[host], now)
	r.hourLog[host] = append(r.hourLog[host], now)
	return true
}

func prune(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
