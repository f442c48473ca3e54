package cache

import (
	"context"

	"github.com/sicko7947/smartflow"
)

// Tiered checks a fast local cache before a shared one and back-fills the
// local cache on shared hits. Writes go to both.
type Tiered struct {
	local  smartflow.ResultCache
	shared smartflow.ResultCache
}

var _ smartflow.ResultCache = (*Tiered)(nil)

// NewTiered combines local (L1) and shared (L2) caches
func NewTiered(local, shared smartflow.ResultCache) *Tiered {
	return &Tiered{local: local, shared: shared}
}

func (t *Tiered) Get(ctx context.Context, key string) (map[string]any, bool, error) {
	if value, ok, err := t.local.Get(ctx, key); err == nil && ok {
		return value, true, nil
	}

	value, ok, err := t.shared.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	// a failed back-fill only costs a later shared lookup
	_ = t.local.Set(ctx, key, value)
	return value, true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value map[string]any) error {
	if err := t.local.Set(ctx, key, value); err != nil {
		return err
	}
	return t.shared.Set(ctx, key, value)
}
