package pipeline

import "sync"

// syncMap is a type-safe concurrent map using generics.
type syncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

func newSyncMap[K comparable, V any]() *syncMap[K, V] {
	return &syncMap[K, V]{
		m: make(map[K]V),
	}
}

// LoadOrStore returns the existing value for key if present; otherwise it stores value.
// The loaded result is true if the value was loaded, false if stored.
func (sm *syncMap[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	sm.mu.RLock()
	actual, loaded = sm.m[key]
	sm.mu.RUnlock()
	if loaded {
		return actual, true
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Another goroutine may have stored between the two locks.
	if actual, loaded = sm.m[key]; loaded {
		return actual, true
	}
	sm.m[key] = value
	return value, false
}

// idLocks serializes work on the same testimonial id within one run.
type idLocks struct {
	m *syncMap[string, *sync.Mutex]
}

func newIDLocks() *idLocks {
	return &idLocks{m: newSyncMap[string, *sync.Mutex]()}
}

// lock acquires the mutex for id and returns its unlock function.
func (l *idLocks) lock(id string) func() {
	mu, _ := l.m.LoadOrStore(id, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}
