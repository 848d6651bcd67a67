// README: Redis lease tests (set CARPOOL_TEST_REDIS_ADDR to run).
package lease

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"carpool/internal/types"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("CARPOOL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CARPOOL_TEST_REDIS_ADDR not set; skipping Redis-backed lease tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	s := NewStore(client)
	s.prefix = "carpool:test:lease:" + string(types.NewID()) + ":"
	return s
}

func TestAcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	first, err := s.Acquire(ctx, "jobs", time.Minute)
	if err != nil || first == nil {
		t.Fatalf("first acquire: %v %v", first, err)
	}
	second, err := s.Acquire(ctx, "jobs", time.Minute)
	if err != nil || second != nil {
		t.Fatalf("second acquire should fail quietly: %v %v", second, err)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	third, err := s.Acquire(ctx, "jobs", time.Minute)
	if err != nil || third == nil {
		t.Fatalf("acquire after release: %v %v", third, err)
	}
	_ = third.Release(ctx)
}

func TestReleaseKeepsForeignLease(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	stale := &Lease{store: s, key: s.prefix + "jobs", token: "someone-else"}
	held, err := s.Acquire(ctx, "jobs", time.Minute)
	if err != nil || held == nil {
		t.Fatalf("acquire: %v %v", held, err)
	}
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if again, _ := s.Acquire(ctx, "jobs", time.Minute); again != nil {
		t.Fatal("a stale release must not drop the current holder's lease")
	}
	_ = held.Release(ctx)
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	boom := errors.New("boom")

	ran, err := s.Do(ctx, "jobs", time.Minute, func(context.Context) error { return boom })
	if !ran || !errors.Is(err, boom) {
		t.Fatalf("expected fn error to pass through: ran=%v err=%v", ran, err)
	}

	held, _ := s.Acquire(ctx, "jobs", time.Minute)
	defer held.Release(ctx)
	called := false
	ran, err = s.Do(ctx, "jobs", time.Minute, func(context.Context) error { called = true; return nil })
	if ran || err != nil || called {
		t.Fatalf("Do must skip while the lease is held: ran=%v err=%v called=%v", ran, err, called)
	}
}
