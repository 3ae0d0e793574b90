package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestAllowConsumesTokens(t *testing.T) {
	limiter := New(3, 1)

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}

	if limiter.Allow() {
		t.Error("request beyond burst capacity should be rejected")
	}
}

func TestRefillRestoresTokens(t *testing.T) {
	limiter := New(1, 100) // fast refill to keep the test quick

	if !limiter.Allow() {
		t.Fatal("first request should be allowed")
	}
	if limiter.Allow() {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(20 * time.Millisecond)

	if !limiter.Allow() {
		t.Error("request after refill should be allowed")
	}
}

func TestRefillCapsAtMaxTokens(t *testing.T) {
	limiter := New(2, 1000)

	time.Sleep(10 * time.Millisecond)

	if got := limiter.Available(); got > 2 {
		t.Errorf("Available() = %v, want at most 2", got)
	}
}

func TestIsFull(t *testing.T) {
	limiter := New(1, 1000)

	if !limiter.IsFull() {
		t.Error("fresh limiter should be full")
	}

	limiter.Allow()
	if limiter.IsFull() {
		t.Error("limiter should not be full right after consuming")
	}

	time.Sleep(10 * time.Millisecond)
	if !limiter.IsFull() {
		t.Error("limiter should refill back to full")
	}
}

func TestConcurrentAllow(t *testing.T) {
	limiter := New(50, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly 50", allowed)
	}
}
