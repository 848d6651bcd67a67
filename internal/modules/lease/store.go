// README: Redis-backed job lease so one replica runs each lifecycle tick.
package lease

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"carpool/internal/types"
)

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, prefix: "carpool:lease:"}
}

// Lease is a held lock; Release is safe to call after expiry.
type Lease struct {
	store *Store
	key   string
	token string
}

// Acquire returns (nil, nil) when another holder owns the lease.
func (s *Store) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	key := s.prefix + name
	token := string(types.NewID())
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lease acquire %s: %w", name, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{store: s, key: key, token: token}, nil
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.store.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}

// Do runs fn while holding the named lease. It reports false without calling
// fn when another holder owns the lease.
func (s *Store) Do(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	l, err := s.Acquire(ctx, name, ttl)
	if err != nil {
		return false, err
	}
	if l == nil {
		return false, nil
	}
	defer func() {
		if err := l.Release(context.Background()); err != nil {
			log.Printf("lease: %v", err)
		}
	}()
	return true, fn(ctx)
}
