// Package flagstore keeps small named boolean flags shared across every
// process attached to the same Redis, with change notification. The one
// flag the dialer cares about is "this agent is on a call": it survives a
// process restart and lets sibling sessions veto a second manual call.
package flagstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

const channelPrefix = "autodial:flag:"

// Store is a typed boolean key-value store with publish/subscribe change
// notification.
type Store struct {
	client *redis.Client

	mu   sync.Mutex
	subs []*subscription
}

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// New builds a store on top of an existing Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get reads a flag; a missing key reads as false.
func (s *Store) Get(ctx context.Context, key string) (bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("flagstore: get %s: %w", key, err)
	}
	return val == "1", nil
}

// Set writes a flag and notifies subscribers. The write and the publish
// run in one round trip so observers never see the notification without
// the value.
func (s *Store) Set(ctx context.Context, key string, value bool) error {
	encoded := "0"
	if value {
		encoded = "1"
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, encoded, 0)
	pipe.Publish(ctx, channelPrefix+key, encoded)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flagstore: set %s: %w", key, err)
	}
	return nil
}

// Subscribe invokes fn with every subsequent change of the flag until the
// store is closed. Delivery order follows publish order; the callback runs
// on the subscription goroutine.
func (s *Store) Subscribe(ctx context.Context, key string, fn func(value bool)) error {
	pubsub := s.client.Subscribe(ctx, channelPrefix+key)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("flagstore: subscribe %s: %w", key, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.subs = append(s.subs, &subscription{pubsub: pubsub, cancel: cancel})
	s.mu.Unlock()

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				parsed, err := strconv.ParseBool(msg.Payload)
				if err != nil {
					continue
				}
				fn(parsed)
			}
		}
	}()

	return nil
}

// Close tears down every subscription.
func (s *Store) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		sub.cancel()
		if err := sub.pubsub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
