package engine

import "sync"

// instanceLocks serializes activations of the same instance while letting
// different instances proceed in parallel.
type instanceLocks struct {
	mu    sync.Mutex
	locks map[string]*instanceLock
}

type instanceLock struct {
	mu   sync.Mutex
	refs int
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{locks: make(map[string]*instanceLock)}
}

// Lock acquires the lock for id and returns its release function.
func (l *instanceLocks) Lock(id string) func() {
	l.mu.Lock()
	lk := l.locks[id]
	if lk == nil {
		lk = &instanceLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()

		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
