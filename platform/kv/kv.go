// Package kv provides a durable key-value store with change subscription.
// Values are opaque bytes; callers serialize their own records.
// This is part of the platform layer and contains no business logic.
package kv

import (
	"context"
	"strings"
)

// Change describes a write observed by a watcher.
type Change struct {
	Key     string `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	// Origin identifies the store handle that made the write.
	Origin string `json:"origin"`
}

// Store is a namespaced key-value store. Writes are last-writer-wins.
//
// Watch delivers changes made through other handles (other origins) on the
// same backing store, never the handle's own writes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Watch(prefix string, fn func(Change)) (cancel func())
}

func matches(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
