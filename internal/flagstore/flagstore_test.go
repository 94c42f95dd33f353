package flagstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := New(client)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetMissingKeyIsFalse(t *testing.T) {
	store := newTestStore(t)

	val, err := store.Get(context.Background(), "isOnCall")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val {
		t.Fatal("expected missing flag to read false")
	}
}

func TestSetThenGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "isOnCall", true); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err := store.Get(ctx, "isOnCall")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !val {
		t.Fatal("expected flag to read true")
	}

	if err := store.Set(ctx, "isOnCall", false); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err = store.Get(ctx, "isOnCall")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val {
		t.Fatal("expected flag to read false")
	}
}

func TestSubscribeSeesChanges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	updates := make(chan bool, 4)
	if err := store.Subscribe(ctx, "isOnCall", func(v bool) { updates <- v }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := store.Set(ctx, "isOnCall", true); err != nil {
		t.Fatalf("set: %v", err)
	}

	select {
	case v := <-updates:
		if !v {
			t.Fatal("expected true notification")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flag notification")
	}
}
