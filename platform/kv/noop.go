package kv

import "context"

// Noop stores nothing. It serves single-surface deployments that need no
// persistence or replay.
type Noop struct{}

var _ Store = Noop{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error          { return nil }
func (Noop) Delete(context.Context, string) error               { return nil }
func (Noop) Keys(context.Context, string) ([]string, error)     { return nil, nil }
func (Noop) Watch(string, func(Change)) func()                  { return func() {} }
