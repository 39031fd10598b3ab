package application

import (
	"sort"
	"sync"
)

// keyedMutex serialises work per key while letting unrelated keys proceed.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires every non-empty key in sorted order and returns a function
// that releases them.
func (k *keyedMutex) Lock(keys ...string) (unlock func()) {
	ordered := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	held := make([]*keyedLock, 0, len(ordered))
	for _, key := range ordered {
		k.mu.Lock()
		lock, ok := k.locks[key]
		if !ok {
			lock = &keyedLock{}
			k.locks[key] = lock
		}
		lock.refs++
		k.mu.Unlock()

		lock.mu.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.release(ordered[i], held[i])
		}
	}
}

func (k *keyedMutex) release(key string, lock *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(k.locks, key)
	}
}
