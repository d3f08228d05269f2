package sshpool

import (
	"testing"
	"time"
)

func TestRateLimiterPerMinuteBudget(t *testing.T) {
	rl := NewRateLimiter(2, 100)
	now := time.Now()

	if !rl.Allow("host1", now) {
		t.Fatal("expected first request to be allowed")
	}
	if !rl.Allow("host1", now) {
		t.Fatal("expected second request to be allowed")
	}
	if rl.Allow("host1", now) {
		t.Fatal("expected third request within the same minute to be denied")
	}

	later := now.Add(61 * time.Second)
	if !rl.Allow("host1", later) {
		t.Fatal("expected request to be allowed after the minute window rolls over")
	}
}

func TestRateLimiterPerHourBudget(t *testing.T) {
	rl := NewRateLimiter(1000, 2)
	now := time.Now()

	for i := 0; i < 2; i++ {
		at := now.Add(time.Duration(i) * time.Second)
		if !rl.Allow("host1", at) {
			t.Fatalf("unexpected denial on request %d within hourly budget", i)
		}
	}
	if rl.Allow("host1", now.Add(3*time.Second)) {
		t.Fatal("expected denial once hourly budget is exhausted")
	}
}

func TestRateLimiterIsolatesHosts(t *testing.T) {
	rl := NewRateLimiter(1, 100)
	now := time.Now()

	if !rl.Allow("host1", now) {
		t.Fatal("expected host1 first request allowed")
	}
	if !rl.Allow("host2", now) {
		t.Fatal("expected host2 to have its own independent budget")
	}
	if rl.Allow("host1", now) {
		t.Fatal("expected host1 second request denied")
	}
}
