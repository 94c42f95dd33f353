// Package presence tracks which numbers are currently in an active call
// across all agents. The registry is advisory: it backs the pre-placement
// in-call check, it does not arbitrate call placement.
package presence

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Registry coordinates number-level presence using Redis keys with a TTL
// so a crashed agent cannot hold a number hostage.
type Registry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRegistry constructs a presence registry.
func NewRegistry(client *redis.Client, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{client: client, ttl: ttl}
}

// Claim marks a number as in-call by the given session. Returns false when
// another session already holds the number.
func (r *Registry) Claim(ctx context.Context, number, sessionID string) (bool, error) {
	script := redis.NewScript(`
local key = KEYS[1]
local holder = ARGV[1]
local ttl = tonumber(ARGV[2])
local current = redis.call('GET', key)
if current == false or current == holder then
  redis.call('SET', key, holder, 'PX', ttl)
  return 1
end
return 0
`)

	res, err := script.Run(ctx, r.client, []string{r.key(number)}, sessionID, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("presence claim: %w", err)
	}
	return res == 1, nil
}

// Release frees a number if the session still holds it.
func (r *Registry) Release(ctx context.Context, number, sessionID string) error {
	script := redis.NewScript(`
local key = KEYS[1]
local holder = ARGV[1]
if redis.call('GET', key) == holder then
  return redis.call('DEL', key)
end
return 0
`)
	if _, err := script.Run(ctx, r.client, []string{r.key(number)}, sessionID).Int(); err != nil {
		return fmt.Errorf("presence release: %w", err)
	}
	return nil
}

// Check reports whether the number is in an active call and who holds it.
func (r *Registry) Check(ctx context.Context, number string) (bool, string, error) {
	holder, err := r.client.Get(ctx, r.key(number)).Result()
	if err == redis.Nil {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("presence check: %w", err)
	}
	return true, holder, nil
}

func (r *Registry) key(number string) string {
	return fmt.Sprintf("autodial:incall:%s", number)
}
