package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) *RateLimiter {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	client := &Client{rdb: rdb, logger: zap.NewNop()}
	return NewRateLimiter(client, zap.NewNop(), RateLimitConfig{Limit: limit, Window: window})
}

func TestAllow_UpToLimit(t *testing.T) {
	limiter := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "tenant:a")
		if err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("check %d should be allowed", i)
		}
		if want := 2 - i; result.Remaining != want {
			t.Errorf("check %d: expected remaining %d, got %d", i, want, result.Remaining)
		}
	}

	result, err := limiter.Allow(ctx, "tenant:a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Error("fourth request should be rejected")
	}
	if result.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", result.Remaining)
	}
	if result.ResetAt.Before(time.Now()) {
		t.Error("reset time should be in the future")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	limiter := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if result, _ := limiter.Allow(ctx, "tenant:a"); !result.Allowed {
		t.Fatal("first tenant:a request should be allowed")
	}
	if result, _ := limiter.Allow(ctx, "tenant:a"); result.Allowed {
		t.Fatal("second tenant:a request should be rejected")
	}
	if result, _ := limiter.Allow(ctx, "tenant:b"); !result.Allowed {
		t.Fatal("tenant:b has its own window")
	}
}

func TestAllowN_AllOrNothing(t *testing.T) {
	limiter := newTestLimiter(t, 10, time.Minute)
	ctx := context.Background()

	result, err := limiter.AllowN(ctx, "tenant:a", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed || result.Remaining != 3 {
		t.Fatalf("expected 7 admitted with 3 remaining, got %+v", result)
	}

	// 4 more would overflow, so none are admitted.
	result, err = limiter.AllowN(ctx, "tenant:a", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Fatal("overflowing batch should be rejected whole")
	}

	// The rejected batch must not have consumed anything.
	result, err = limiter.AllowN(ctx, "tenant:a", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Fatal("remaining capacity should still admit 3")
	}
}

func TestAllow_WindowSlides(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	client := &Client{rdb: rdb, logger: zap.NewNop()}
	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{Limit: 1, Window: 50 * time.Millisecond})

	ctx := context.Background()

	if result, _ := limiter.Allow(ctx, "tenant:a"); !result.Allowed {
		t.Fatal("first request should be allowed")
	}
	if result, _ := limiter.Allow(ctx, "tenant:a"); result.Allowed {
		t.Fatal("second request inside the window should be rejected")
	}

	time.Sleep(60 * time.Millisecond)

	if result, _ := limiter.Allow(ctx, "tenant:a"); !result.Allowed {
		t.Fatal("request after the window slid should be allowed")
	}
}
