// Package upgradable implements the process-wide catalog lock from §5 and
// §8: a reader/writer lock that a shared holder can atomically upgrade to
// exclusive (for lazy per-shard initialization) without the classical
// reader-to-writer deadlock, and can downgrade back afterward.
//
// The algorithm is ported from the original engine's UpgradableMutex
// (original_source/pelton/shards/upgradable_lock.{h,cc}): two paired
// sync.RWMutex guard the same logical resource. A fresh shared lock holds
// both as readers; a fresh unique lock holds both as writers. Upgrading
// releases the reader side of the second mutex and re-acquires it as a
// writer while still holding the first mutex's read lock — so two
// concurrent upgraders serialize on the second mutex instead of deadlocking
// against each other the way a single RWMutex would.
package upgradable

import "sync"

// Lock is the process-wide upgradable reader/writer lock over the catalog.
type Lock struct {
	mu1 sync.RWMutex
	mu2 sync.RWMutex
}

// New returns a ready-to-use Lock.
func New() *Lock {
	return &Lock{}
}

// SharedHandle is held by read-only statements (SELECT, GET, EXPLAIN) for
// their whole duration.
type SharedHandle struct {
	lock *Lock
	held bool
}

// UniqueHandle is held by DDL, forget and DML statements, or by a shared
// handle that upgraded.
type UniqueHandle struct {
	lock     *Lock
	upgraded bool
	held     bool
}

// RLock acquires the lock in shared mode.
func (l *Lock) RLock() *SharedHandle {
	l.mu1.RLock()
	l.mu2.RLock()
	return &SharedHandle{lock: l, held: true}
}

// Lock acquires the lock exclusively from scratch (DDL, forget, DML).
func (l *Lock) Lock() *UniqueHandle {
	l.mu1.Lock()
	l.mu2.Lock()
	return &UniqueHandle{lock: l, held: true}
}

// Unlock releases a shared handle.
func (s *SharedHandle) Unlock() {
	if !s.held {
		panic("upgradable: Unlock of already-released SharedHandle")
	}
	s.held = false
	s.lock.mu2.RUnlock()
	s.lock.mu1.RUnlock()
}

// Upgrade atomically promotes a shared handle to exclusive. The SharedHandle
// must not be used again after this call; only the returned UniqueHandle is
// valid. Supports lazy per-(kind,subject) shard initialization discovered
// mid-statement while holding only a shared lock; session.Connection.Exec
// does not upgrade, it takes the exclusive lock up front for every
// statement that writes.
func (s *SharedHandle) Upgrade() *UniqueHandle {
	if !s.held {
		panic("upgradable: Upgrade of already-released SharedHandle")
	}
	s.held = false
	s.lock.mu2.RUnlock()
	s.lock.mu2.Lock()
	return &UniqueHandle{lock: s.lock, upgraded: true, held: true}
}

// Unlock releases a unique handle, whether acquired fresh or via Upgrade.
func (u *UniqueHandle) Unlock() {
	if !u.held {
		panic("upgradable: Unlock of already-released UniqueHandle")
	}
	u.held = false
	u.lock.mu2.Unlock()
	if u.upgraded {
		u.lock.mu1.RUnlock()
	} else {
		u.lock.mu1.Unlock()
	}
}

// Downgrade reverts an upgraded handle back to shared mode. Only valid on a
// handle produced by SharedHandle.Upgrade — a lock acquired exclusively from
// scratch still holds the first mutex as a writer and cannot be downgraded
// without first releasing it, which the original engine never does either
// (see upgradable_lock.cc: the move-constructor path is only reachable from
// an already-upgraded lock).
func (u *UniqueHandle) Downgrade() *SharedHandle {
	if !u.held {
		panic("upgradable: Downgrade of already-released UniqueHandle")
	}
	if !u.upgraded {
		panic("upgradable: Downgrade is only valid on a handle obtained via Upgrade")
	}
	u.held = false
	u.lock.mu2.Unlock()
	u.lock.mu2.RLock()
	return &SharedHandle{lock: u.lock, held: true}
}
