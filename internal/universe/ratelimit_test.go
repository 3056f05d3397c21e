package universe

import (
	"testing"
	"time"
)

func TestRateLimiterDegradesAfterTwoConsecutive429s(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	var degraded bool
	rl.OnDegrade = func(backoff time.Duration) { degraded = true }

	rl.RecordRateLimited()
	if degraded {
		t.Fatal("should not degrade after a single 429")
	}
	rl.RecordRateLimited()
	if !degraded {
		t.Fatal("expected degraded mode after 2 consecutive 429s")
	}
	if !rl.Degraded() {
		t.Fatal("expected Degraded() to report true")
	}
}

func TestRateLimiterAllowsWithinCapacity(t *testing.T) {
	rl := NewRateLimiter(2, 0.001)
	if !rl.Allow() {
		t.Fatal("expected first token to be available")
	}
	if !rl.Allow() {
		t.Fatal("expected second token to be available")
	}
	if rl.Allow() {
		t.Fatal("expected third immediate call to be rate limited")
	}
}
