package ratelimit

import (
	"testing"
	"time"
)

func newTestPerKeyLimiter(maxTokens, refillRate float64) *PerKeyLimiter {
	return NewPerKeyLimiter(PerKeyLimiterConfig{
		MaxTokens:     maxTokens,
		RefillRate:    refillRate,
		CleanupPeriod: time.Hour, // never fires during tests
	})
}

func TestPerKeyIsolation(t *testing.T) {
	pkl := newTestPerKeyLimiter(1, 0)
	defer pkl.Stop()

	if !pkl.Allow("10.0.0.1") {
		t.Fatal("first request for key should be allowed")
	}
	if pkl.Allow("10.0.0.1") {
		t.Error("second request for same key should be rejected")
	}
	if !pkl.Allow("10.0.0.2") {
		t.Error("other keys must not share the exhausted bucket")
	}
}

func TestEmptyKeyAlwaysAllowed(t *testing.T) {
	pkl := newTestPerKeyLimiter(1, 0)
	defer pkl.Stop()

	for i := 0; i < 5; i++ {
		if !pkl.Allow("") {
			t.Fatal("empty key should never be limited")
		}
	}
	if pkl.GetActiveCount() != 0 {
		t.Error("empty key should not create a limiter")
	}
}

func TestOnDropCallback(t *testing.T) {
	pkl := newTestPerKeyLimiter(1, 0)
	defer pkl.Stop()

	drops := 0
	pkl.OnDrop(func() { drops++ })

	pkl.Allow("client")
	pkl.Allow("client")
	pkl.Allow("client")

	if drops != 2 {
		t.Errorf("drops = %d, want 2", drops)
	}
}

func TestGetActiveCount(t *testing.T) {
	pkl := newTestPerKeyLimiter(5, 1)
	defer pkl.Stop()

	pkl.Allow("a")
	pkl.Allow("b")
	pkl.Allow("a")

	if got := pkl.GetActiveCount(); got != 2 {
		t.Errorf("GetActiveCount() = %d, want 2", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	pkl := newTestPerKeyLimiter(1, 1)

	pkl.Stop()
	pkl.Stop() // must not panic
}
