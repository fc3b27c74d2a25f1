// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

var (
	// ErrAlreadyOpen: the calling goroutine already holds this
	// display's lock. Retrying cannot help.
	ErrAlreadyOpen = errors.New("display already open in this goroutine")
	// ErrLocked: another goroutine holds the lock and the caller
	// asked not to wait.
	ErrLocked = errors.New("display locked")
	// ErrNotOwner: a release was attempted by a goroutine that does
	// not hold the lock.
	ErrNotOwner = errors.New("lock not owned by this goroutine")
)

// lockRecord is the per-path lock state. Records are created on first
// use and kept for the life of the manager, so a path's lock identity
// is stable across disconnect/reconnect of the display behind it.
type lockRecord struct {
	path IOPath
	mu   sync.Mutex
	// owner is the goroutine id holding mu, 0 when unheld. Guarded by
	// the manager mutex, never by mu itself.
	owner uint64
}

// Lock is an acquired display lock, releasable only through the
// manager.
type Lock struct {
	rec *lockRecord
}

// Path returns the display path the lock covers.
func (l *Lock) Path() IOPath { return l.rec.path }

// LockManager serializes access to displays across goroutines. Locks
// nest two levels: the manager mutex guards only the record table and
// owner fields and is held briefly; the per-display mutex is the
// actual exclusion and is never acquired while the manager mutex is
// held, so a goroutine blocked waiting for one display cannot stall
// lookups or locks on any other.
type LockManager struct {
	log *slog.Logger

	mu      sync.Mutex
	records map[IOPath]*lockRecord
}

// NewLockManager returns an empty manager.
func NewLockManager(log *slog.Logger) *LockManager {
	if log == nil {
		log = slog.Default()
	}
	return &LockManager{log: log, records: make(map[IOPath]*lockRecord)}
}

// Acquire takes the lock for a path. With wait false it fails fast
// with ErrLocked when the lock is held elsewhere; with wait true it
// blocks until the lock frees. Either way, a goroutine that already
// holds the lock gets ErrAlreadyOpen instead of deadlocking on
// itself.
func (m *LockManager) Acquire(path IOPath, wait bool) (*Lock, error) {
	caller := goid()

	m.mu.Lock()
	rec, ok := m.records[path]
	if !ok {
		rec = &lockRecord{path: path}
		m.records[path] = rec
	}
	if rec.owner == caller {
		m.mu.Unlock()
		return nil, fmt.Errorf("display %s: %w", path, ErrAlreadyOpen)
	}
	if !wait {
		if rec.owner != 0 {
			m.mu.Unlock()
			return nil, fmt.Errorf("display %s: %w", path, ErrLocked)
		}
		// owner can be 0 while a waiting acquirer holds mu but has
		// not yet recorded ownership, so TryLock is still required.
		if !rec.mu.TryLock() {
			m.mu.Unlock()
			return nil, fmt.Errorf("display %s: %w", path, ErrLocked)
		}
		rec.owner = caller
		m.mu.Unlock()
		return &Lock{rec: rec}, nil
	}
	m.mu.Unlock()

	// Blocking acquire happens outside the manager mutex.
	rec.mu.Lock()
	m.mu.Lock()
	rec.owner = caller
	m.mu.Unlock()
	return &Lock{rec: rec}, nil
}

// Release frees a lock. Only the goroutine that acquired it may
// release it.
func (m *LockManager) Release(l *Lock) error {
	caller := goid()
	m.mu.Lock()
	if l.rec.owner != caller {
		m.mu.Unlock()
		return fmt.Errorf("display %s: %w", l.rec.path, ErrNotOwner)
	}
	l.rec.owner = 0
	m.mu.Unlock()
	l.rec.mu.Unlock()
	return nil
}

// UnlockAllForCaller releases every lock the calling goroutine holds
// and returns how many it released. Used on teardown paths where the
// set of held locks is no longer known.
func (m *LockManager) UnlockAllForCaller() int {
	caller := goid()
	m.mu.Lock()
	var held []*lockRecord
	for _, rec := range m.records {
		if rec.owner == caller {
			rec.owner = 0
			held = append(held, rec)
		}
	}
	m.mu.Unlock()
	for _, rec := range held {
		rec.mu.Unlock()
	}
	if len(held) > 0 {
		m.log.Debug("released leftover display locks", "count", len(held))
	}
	return len(held)
}

// Report returns a human-readable summary of currently held locks.
func (m *LockManager) Report() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "display locks: %d records\n", len(m.records))
	for _, rec := range m.records {
		if rec.owner != 0 {
			fmt.Fprintf(&b, "  %s held by goroutine %d\n", rec.path, rec.owner)
		}
	}
	return b.String()
}
