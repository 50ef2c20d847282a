// Package lock prevents duplicate concurrent paid discovery runs for the
// same search parameters. The lock lives in Redis with a TTL so it holds
// across worker instances, unlike an in-process set.
package lock

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultTTL bounds how long a crashed worker can hold a discovery lock.
const DefaultTTL = 2 * time.Minute

// DiscoveryLock is a TTL'd distributed lock over Redis SET NX. A random
// ownership value plus a Lua release script prevents one worker from
// releasing another's lock.
type DiscoveryLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// Key derives the lock key from the search parameters, hashed so arbitrary
// business names stay within Redis key conventions.
func Key(name, city, state string) string {
	sum := sha256.Sum256([]byte(name + "|" + city + "|" + state))
	return "leadcheck:discovery:" + hex.EncodeToString(sum[:16])
}

// New creates a DiscoveryLock for the given key.
func New(client *redis.Client, key string, ttl time.Duration) *DiscoveryLock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return &DiscoveryLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// Acquire tries to take the lock. Returns false when another worker holds it.
func (l *DiscoveryLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, eris.Wrapf(err, "lock: acquire %s", l.key)
	}
	return ok, nil
}

// Release deletes the lock only while we still own it.
func (l *DiscoveryLock) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, l.client, []string{l.key}, l.value).Result()
	return eris.Wrapf(err, "lock: release %s", l.key)
}
