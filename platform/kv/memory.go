package kv

import (
	"context"
	"sort"
	"sync"
)

// Hub is the shared in-process backing for Memory handles. Handles created
// on the same hub see each other's writes through Watch.
type Hub struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers map[uint64]watcher
	nextID   uint64
}

type watcher struct {
	origin string
	prefix string
	fn     func(Change)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		data:     make(map[string][]byte),
		watchers: make(map[uint64]watcher),
	}
}

// Memory is a Store handle bound to one origin on a Hub.
type Memory struct {
	hub    *Hub
	origin string
}

var _ Store = (*Memory)(nil)

// NewMemory returns a handle on hub that writes as origin.
func NewMemory(hub *Hub, origin string) *Memory {
	return &Memory{hub: hub, origin: origin}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.hub.mu.RLock()
	defer m.hub.mu.RUnlock()
	value, ok := m.hub.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	stored := append([]byte(nil), value...)
	m.hub.mu.Lock()
	m.hub.data[key] = stored
	targets := m.hub.targets(m.origin, key)
	m.hub.mu.Unlock()

	m.notify(targets, Change{Key: key, Value: stored, Origin: m.origin})
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.hub.mu.Lock()
	_, existed := m.hub.data[key]
	delete(m.hub.data, key)
	var targets []func(Change)
	if existed {
		targets = m.hub.targets(m.origin, key)
	}
	m.hub.mu.Unlock()

	m.notify(targets, Change{Key: key, Deleted: true, Origin: m.origin})
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.hub.mu.RLock()
	defer m.hub.mu.RUnlock()
	keys := make([]string, 0)
	for key := range m.hub.data {
		if matches(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch calls fn synchronously, after the writer released the hub lock.
func (m *Memory) Watch(prefix string, fn func(Change)) func() {
	m.hub.mu.Lock()
	m.hub.nextID++
	id := m.hub.nextID
	m.hub.watchers[id] = watcher{origin: m.origin, prefix: prefix, fn: fn}
	m.hub.mu.Unlock()

	return func() {
		m.hub.mu.Lock()
		delete(m.hub.watchers, id)
		m.hub.mu.Unlock()
	}
}

func (m *Memory) notify(targets []func(Change), change Change) {
	for _, fn := range targets {
		fn(change)
	}
}

// targets must be called with the lock held.
func (h *Hub) targets(origin, key string) []func(Change) {
	var out []func(Change)
	for _, w := range h.watchers {
		if w.origin != origin && matches(key, w.prefix) {
			out = append(out, w.fn)
		}
	}
	return out
}
