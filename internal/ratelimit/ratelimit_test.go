package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fakeStore replays scripted counter values without a live redis.
type fakeStore struct {
	count   int64
	incrErr error
	ttl     time.Duration
	expired int
}

func (f *fakeStore) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.incrErr != nil {
		cmd := redis.NewIntCmd(ctx)
		cmd.SetErr(f.incrErr)
		return cmd
	}
	f.count++
	return redis.NewIntResult(f.count, nil)
}

func (f *fakeStore) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expired++
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) TTL(ctx context.Context, key string) *redis.DurationCmd {
	return redis.NewDurationResult(f.ttl, nil)
}

func TestCheck_AllowsUnderLimit(t *testing.T) {
	store := &fakeStore{}
	checker := New(store, map[Capability]int{CapabilityChat: 3}, time.Minute)
	user := uuid.New()

	for i := 0; i < 3; i++ {
		denial, err := checker.Check(context.Background(), user, CapabilityChat)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if denial != nil {
			t.Fatalf("request %d should be allowed, got denial %+v", i+1, denial)
		}
	}
	if store.expired != 1 {
		t.Errorf("expected expire on first increment only, got %d", store.expired)
	}
}

func TestCheck_DeniesOverLimit(t *testing.T) {
	store := &fakeStore{count: 3, ttl: 42 * time.Second}
	checker := New(store, map[Capability]int{CapabilityChat: 3}, time.Minute)

	denial, err := checker.Check(context.Background(), uuid.New(), CapabilityChat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if denial == nil {
		t.Fatal("expected denial")
	}
	if denial.Status != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", denial.Status)
	}
	if denial.RetryAfterSeconds != 42 {
		t.Errorf("expected retry after 42s, got %d", denial.RetryAfterSeconds)
	}
}

func TestCheck_BackendErrorFailsClosed(t *testing.T) {
	store := &fakeStore{incrErr: errors.New("connection refused")}
	checker := New(store, map[Capability]int{CapabilityChat: 3}, time.Minute)

	denial, err := checker.Check(context.Background(), uuid.New(), CapabilityChat)
	if err == nil {
		t.Fatal("expected backend error to propagate")
	}
	if denial != nil {
		t.Errorf("no denial expected on backend error, got %+v", denial)
	}
}

func TestCheck_ZeroLimitMeansUnlimited(t *testing.T) {
	store := &fakeStore{count: 10_000}
	checker := New(store, map[Capability]int{}, time.Minute)

	denial, err := checker.Check(context.Background(), uuid.New(), CapabilityPluginDetector)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if denial != nil {
		t.Errorf("unconfigured capability should not be limited, got %+v", denial)
	}
}
