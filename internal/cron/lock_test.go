package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/appointly-backend/pkg/redis"
)

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	key := client.WorkerLockKey("cron")

	first, err := NewRedisLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	second, err := NewRedisLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}

	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatalf("non-owner release must not delete the lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Minute); err == nil {
		t.Fatalf("expected client error")
	}
	mr := miniredis.RunT(t)
	client := redis.NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	if _, err := NewRedisLock(client, "", time.Minute); err == nil {
		t.Fatalf("expected key error")
	}
}

func TestRedisLockTokenNamesInstance(t *testing.T) {
	t.Setenv("WORKER_ID", "worker.2")
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	key := client.WorkerLockKey("cron")

	lock, err := NewRedisLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if ok, err := lock.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	value, err := mr.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.HasPrefix(value, "worker.2:") {
		t.Fatalf("expected instance-prefixed token, got %q", value)
	}
}

func TestRedisLockReleaseKeepsTakenOverLease(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	key := client.WorkerLockKey("cron")

	stale, _ := NewRedisLock(client, key, time.Minute)
	fresh, _ := NewRedisLock(client, key, time.Minute)

	if ok, err := stale.Acquire(ctx); err != nil || !ok {
		t.Fatalf("stale acquire: ok=%v err=%v", ok, err)
	}
	mr.FastForward(2 * time.Minute)
	if ok, err := fresh.Acquire(ctx); err != nil || !ok {
		t.Fatalf("fresh acquire after expiry: ok=%v err=%v", ok, err)
	}

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatalf("stale holder must not delete the new lease")
	}
}
