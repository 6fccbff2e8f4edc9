package cache

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/go-logr/logr"

	oerrors "github.com/porthorian/memberdir/pkg/errors"
	"github.com/porthorian/memberdir/pkg/storage"
)

// Directory is a read-through, write-through cache in front of a MemberStore.
//
// For any key, the cache only ever holds the value of the latest completed store
// write made through the Directory, or nothing. Every operation on a key runs
// under that key's lock; different keys never contend. Writes that bypass the
// Directory are not tracked.
type Directory struct {
	store   storage.MemberStore
	backend Backend
	locks   *keyLocks
	logger  logr.Logger
}

// NewDirectory wraps store. A nil backend turns the Directory into a pass-through.
func NewDirectory(store storage.MemberStore, backend Backend, logger logr.Logger) *Directory {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Directory{
		store:   store,
		backend: backend,
		locks:   newKeyLocks(),
		logger:  logger.WithName("directory"),
	}
}

// Read returns the cached member or loads it from the store. Absence is never cached.
func (d *Directory) Read(ctx context.Context, id string) (storage.MemberRecord, error) {
	if d.backend == nil {
		return d.store.GetMember(ctx, id)
	}

	unlock := d.locks.RLock(id)
	record, ok := d.lookup(ctx, id)
	unlock()
	if ok {
		directoryMetrics.Hits.Inc()
		return record, nil
	}

	unlock = d.locks.Lock(id)
	defer unlock()

	// populated while we waited for the exclusive lock
	if record, ok := d.lookup(ctx, id); ok {
		directoryMetrics.Hits.Inc()
		return record, nil
	}

	directoryMetrics.Misses.Inc()
	record, err := d.store.GetMember(ctx, id)
	if err != nil {
		return storage.MemberRecord{}, err
	}

	if err := d.backend.Set(ctx, id, record); err != nil {
		directoryMetrics.BackendErrors.WithLabelValues("set").Inc()
		d.logger.Error(err, "failed to populate member cache", "id", id)
	}
	return record, nil
}

// Write stores record and, once the store confirms, replaces the cached entry.
// A store failure with an unknown outcome evicts the entry instead.
func (d *Directory) Write(ctx context.Context, record storage.MemberRecord) error {
	return d.write(ctx, record, d.store.PutMember)
}

// Update is Write for a member that must already exist. When the store no
// longer has it, Update fails with storage.ErrNotFound and evicts the key
// rather than recreating the member.
func (d *Directory) Update(ctx context.Context, record storage.MemberRecord) error {
	return d.write(ctx, record, d.store.UpdateMember)
}

func (d *Directory) write(ctx context.Context, record storage.MemberRecord, persist func(context.Context, storage.MemberRecord) error) error {
	unlock := d.locks.Lock(record.ID)
	defer unlock()

	if err := persist(ctx, record); err != nil {
		if errors.Is(err, storage.ErrNotFound) || outcomeUnknown(err) {
			d.evict(ctx, record.ID)
		}
		return err
	}

	if d.backend == nil {
		return nil
	}

	if err := d.backend.Set(ctx, record.ID, record); err != nil {
		directoryMetrics.BackendErrors.WithLabelValues("set").Inc()
		d.logger.Error(err, "failed to replace member cache entry, evicting", "id", record.ID)
		if err := d.evict(ctx, record.ID); err != nil {
			return oerrors.Wrap(oerrors.CodeStorageUnavailable, "member cache is unavailable", err)
		}
	}
	return nil
}

// Invalidate deletes id from the store and evicts it once the store confirms.
// A definite store failure leaves the cached entry as it was.
func (d *Directory) Invalidate(ctx context.Context, id string) error {
	unlock := d.locks.Lock(id)
	defer unlock()

	if err := d.store.DeleteMember(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) || outcomeUnknown(err) {
			d.evict(ctx, id)
		}
		return err
	}

	if err := d.evict(ctx, id); err != nil {
		return oerrors.Wrap(oerrors.CodeStorageUnavailable, "member cache is unavailable", err)
	}
	return nil
}

func (d *Directory) lookup(ctx context.Context, id string) (storage.MemberRecord, bool) {
	record, ok, err := d.backend.Get(ctx, id)
	if err != nil {
		directoryMetrics.BackendErrors.WithLabelValues("get").Inc()
		d.logger.Error(err, "member cache lookup failed, reading from store", "id", id)
		return storage.MemberRecord{}, false
	}
	return record, ok
}

func (d *Directory) evict(ctx context.Context, id string) error {
	if d.backend == nil {
		return nil
	}

	// the caller's context may already be done
	if err := d.backend.Delete(context.WithoutCancel(ctx), id); err != nil {
		directoryMetrics.BackendErrors.WithLabelValues("delete").Inc()
		d.logger.Error(err, "failed to evict member cache entry", "id", id)
		return err
	}
	directoryMetrics.Evictions.Inc()
	return nil
}

// outcomeUnknown reports errors after which the store write may or may not have landed.
func outcomeUnknown(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn)
}
