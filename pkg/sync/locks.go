// pkg/sync/locks.go

package sync

import (
	stdsync "sync"
)

// Locks serialises generation work. A full sync holds the tree lock
// exclusively. An incremental operation holds it shared plus the lock of
// the subtree it touches, keyed by the subtree's root item, so operations on
// disjoint subtrees run in parallel while two operations on one subtree
// queue.
type Locks struct {
	tree stdsync.RWMutex

	mu   stdsync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	mu   stdsync.Mutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{keys: make(map[string]*keyLock)}
}

// Full takes the exclusive lock and returns its release function.
func (l *Locks) Full() func() {
	l.tree.Lock()
	return l.tree.Unlock
}

// Subtree takes the shared tree lock and the lock for key.
func (l *Locks) Subtree(key string) func() {
	l.tree.RLock()

	l.mu.Lock()
	k, ok := l.keys[key]
	if !ok {
		k = &keyLock{}
		l.keys[key] = k
	}
	k.refs++
	l.mu.Unlock()

	k.mu.Lock()
	return func() {
		k.mu.Unlock()
		l.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(l.keys, key)
		}
		l.mu.Unlock()
		l.tree.RUnlock()
	}
}

// held is the number of subtree keys currently locked or waited on.
func (l *Locks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
