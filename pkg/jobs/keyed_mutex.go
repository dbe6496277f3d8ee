package jobs

import (
	"context"
	"sync"
)

// KeyedMutex provides mutual exclusion scoped to a string key. Two holders
// of different keys never block each other; two holders of the same key are
// strictly serialized in acquisition order.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex constructs an empty keyed mutex table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until the key's exclusive section is acquired or the context
// is cancelled. It returns false when cancelled before acquisition.
func (m *KeyedMutex) Lock(ctx context.Context, key string) bool {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyedLock{ch: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return true
	case <-ctx.Done():
		m.release(key, entry)
		return false
	}
}

// Unlock releases the key's exclusive section.
func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	entry, ok := m.locks[key]
	m.mu.Unlock()
	if !ok {
		return
	}
	<-entry.ch
	m.release(key, entry)
}

// release drops a reference and removes the entry once unused, so the lock
// table does not grow with the set of entity ids ever seen.
func (m *KeyedMutex) release(key string, entry *keyedLock) {
	m.mu.Lock()
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}
