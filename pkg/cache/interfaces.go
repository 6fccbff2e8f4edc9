package cache

import (
	"context"

	"github.com/porthorian/memberdir/pkg/storage"
)

// Backend holds member entries keyed by member id. Implementations must be safe
// for concurrent use; ordering across callers is the Directory's job.
type Backend interface {
	Get(ctx context.Context, key string) (storage.MemberRecord, bool, error)
	Set(ctx context.Context, key string, record storage.MemberRecord) error
	Delete(ctx context.Context, key string) error
}
