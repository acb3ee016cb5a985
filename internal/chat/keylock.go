package chat

import (
	"slices"
	"sync"
)

// keyLock hands out one mutex per key, created on demand and dropped when no
// goroutine holds or waits on it.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyLockEntry)}
}

// Lock acquires every distinct key in sorted order and returns the release
// func. Sorting keeps two callers locking the same pair from deadlocking.
func (k *keyLock) Lock(keys ...string) func() {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*keyLockEntry, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		e := k.locks[key]
		if e == nil {
			e = &keyLockEntry{}
			k.locks[key] = e
		}
		e.refs++
		k.mu.Unlock()

		e.mu.Lock()
		held = append(held, e)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			e := held[i]
			e.mu.Unlock()

			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}
