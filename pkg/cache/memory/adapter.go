package memory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/porthorian/memberdir/pkg/cache"
	"github.com/porthorian/memberdir/pkg/storage"
)

const DefaultSize = 10000

// Adapter is a bounded in-process backend. The least recently used entry is
// dropped when the adapter is full; nothing expires on a timer.
type Adapter struct {
	entries *lru.Cache[string, storage.MemberRecord]
}

var _ cache.Backend = (*Adapter)(nil)

func NewAdapter(size int) (*Adapter, error) {
	if size <= 0 {
		size = DefaultSize
	}

	entries, err := lru.New[string, storage.MemberRecord](size)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &Adapter{entries: entries}, nil
}

func (a *Adapter) Get(ctx context.Context, key string) (storage.MemberRecord, bool, error) {
	record, ok := a.entries.Get(key)
	return record, ok, nil
}

func (a *Adapter) Set(ctx context.Context, key string, record storage.MemberRecord) error {
	if key == "" {
		return fmt.Errorf("memory cache: key is required")
	}
	a.entries.Add(key, record)
	return nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	a.entries.Remove(key)
	return nil
}

func (a *Adapter) Len() int {
	return a.entries.Len()
}
