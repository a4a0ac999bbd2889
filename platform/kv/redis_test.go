package kv

import (
	"context"
	"testing"
	"time"

	"leadflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRoundTripUsesNamespace(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	store := NewRedis(client, "leadflow:", "api-1", logger.Nop())

	if err := store.Set(ctx, "conversation:1:t", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, err := client.Get(ctx, "leadflow:conversation:1:t").Result()
	if err != nil || raw != `{"a":1}` {
		t.Fatalf("expected namespaced key, got %q err=%v", raw, err)
	}

	value, ok, err := store.Get(ctx, "conversation:1:t")
	if err != nil || !ok || string(value) != `{"a":1}` {
		t.Fatalf("unexpected get: %q ok=%v err=%v", value, ok, err)
	}

	keys, err := store.Keys(ctx, "conversation:")
	if err != nil || len(keys) != 1 || keys[0] != "conversation:1:t" {
		t.Fatalf("unexpected keys: %v err=%v", keys, err)
	}

	if err := store.Delete(ctx, "conversation:1:t"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "conversation:1:t"); ok {
		t.Fatal("expected key deleted")
	}
}

func TestRedisWatchReplaysOtherOrigins(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	writer := NewRedis(client, "leadflow:", "tab-a", logger.Nop())
	reader := NewRedis(client, "leadflow:", "tab-b", logger.Nop())

	changes := make(chan Change, 4)
	cancel := reader.Watch("chat-sync:", func(c Change) { changes <- c })
	defer cancel()
	ownChanges := make(chan Change, 4)
	cancelOwn := writer.Watch("chat-sync:", func(c Change) { ownChanges <- c })
	defer cancelOwn()

	_ = writer.Set(ctx, "conversation:x", []byte("ignored"))
	_ = writer.Set(ctx, "chat-sync:lead:1", []byte("payload"))

	select {
	case c := <-changes:
		if c.Key != "chat-sync:lead:1" || string(c.Value) != "payload" || c.Origin != "tab-a" {
			t.Fatalf("unexpected change: %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change was not replayed")
	}

	select {
	case c := <-ownChanges:
		t.Fatalf("writer observed its own change: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}
