package cache

import "sync"

type keyLock struct {
	sync.RWMutex
	refs int
}

// keyLocks hands out one RWMutex per key and drops it once nobody holds or waits on it.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: map[string]*keyLock{}}
}

func (k *keyLocks) acquire(key string) *keyLock {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()
	return lock
}

func (k *keyLocks) release(key string, lock *keyLock) {
	k.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

func (k *keyLocks) Lock(key string) func() {
	lock := k.acquire(key)
	lock.Lock()
	return func() {
		lock.Unlock()
		k.release(key, lock)
	}
}

func (k *keyLocks) RLock(key string) func() {
	lock := k.acquire(key)
	lock.RLock()
	return func() {
		lock.RUnlock()
		k.release(key, lock)
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
