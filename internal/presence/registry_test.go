package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRegistry(client, time.Minute)
}

func TestClaimIsExclusive(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	ok, err := reg.Claim(ctx, "+14155552671", "session-a")
	if err != nil || !ok {
		t.Fatalf("first claim should succeed, ok=%v err=%v", ok, err)
	}

	ok, err = reg.Claim(ctx, "+14155552671", "session-b")
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if ok {
		t.Fatal("expected second claim by another session to fail")
	}

	// Re-claim by the holder refreshes the TTL and succeeds.
	ok, err = reg.Claim(ctx, "+14155552671", "session-a")
	if err != nil || !ok {
		t.Fatalf("holder re-claim should succeed, ok=%v err=%v", ok, err)
	}
}

func TestReleaseOnlyByHolder(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if ok, _ := reg.Claim(ctx, "+14155552671", "session-a"); !ok {
		t.Fatal("claim failed")
	}

	if err := reg.Release(ctx, "+14155552671", "session-b"); err != nil {
		t.Fatalf("release by non-holder errored: %v", err)
	}
	inCall, holder, err := reg.Check(ctx, "+14155552671")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !inCall || holder != "session-a" {
		t.Fatalf("expected session-a to still hold the number, got inCall=%v holder=%q", inCall, holder)
	}

	if err := reg.Release(ctx, "+14155552671", "session-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	inCall, _, err = reg.Check(ctx, "+14155552671")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if inCall {
		t.Fatal("expected number to be free after holder release")
	}
}
