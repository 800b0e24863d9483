package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket_AllowAndRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 5, 5) // 5 tokens capacity, 5 tokens/sec.

	if !b.Allow(5) {
		t.Fatalf("expected initial burst to succeed")
	}
	if b.Allow(1) {
		t.Fatalf("expected bucket to be empty")
	}

	clk.Advance(200 * time.Millisecond) // 1 token at 5/sec.
	if !b.Allow(1) {
		t.Fatalf("expected refill after time advance")
	}
	if b.Allow(1) {
		t.Fatalf("expected only one token to be refilled")
	}
}

func TestTokenBucket_DoesNotExceedCapacity(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 1, 1)

	if !b.Allow(1) {
		t.Fatalf("expected initial token")
	}

	clk.Advance(10 * time.Second)
	if !b.Allow(1) {
		t.Fatalf("expected refill up to capacity")
	}
	if b.Allow(1) {
		t.Fatalf("expected capacity clamp (only 1 token available)")
	}
}

func TestTokenBucket_ClockBackwards(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clk, 1, 1)
	if !b.Allow(1) {
		t.Fatalf("expected initial token")
	}

	clk.Advance(-time.Hour)
	if b.Allow(1) {
		t.Fatalf("backwards clock must not refill")
	}
	clk.Advance(time.Hour + time.Second)
	if !b.Allow(1) {
		t.Fatalf("expected refill once the clock passes the last refill")
	}
}

func TestTokenBucket_ZeroAndHugeCosts(t *testing.T) {
	b := NewTokenBucket(&fakeClock{now: time.Unix(0, 0)}, 2, 0)
	if !b.Allow(0) || !b.Allow(-3) {
		t.Fatalf("non-positive costs must always succeed")
	}
	if b.Allow(1 << 62) {
		t.Fatalf("huge cost must not succeed")
	}
	if !b.Allow(2) {
		t.Fatalf("failed Allow must not consume tokens")
	}
}

func TestSocketLimiter(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}

	t.Run("messages", func(t *testing.T) {
		l := NewSocketLimiter(clk, 2, 0)
		if !l.AllowMessage(1<<20) || !l.AllowMessage(1<<20) {
			t.Fatalf("expected burst of 2 messages")
		}
		if l.AllowMessage(1) {
			t.Fatalf("expected third message to be limited")
		}
		clk.Advance(500 * time.Millisecond)
		if !l.AllowMessage(1) {
			t.Fatalf("expected one message after refill")
		}
	})

	t.Run("bytes", func(t *testing.T) {
		l := NewSocketLimiter(clk, 100, 10)
		if !l.AllowMessage(8) {
			t.Fatalf("expected 8 bytes to fit")
		}
		if l.AllowMessage(8) {
			t.Fatalf("expected byte budget to be exhausted")
		}
	})
}
