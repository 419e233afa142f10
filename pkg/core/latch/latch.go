// Package latch provides a reusable run-once guard: a flag acquired
// synchronously before asynchronous work begins, so re-invocation (for
// example from a re-rendering caller) cannot start the work twice.
package latch

import "sync"

// Latch is a resettable one-shot guard. The zero value is ready to use.
type Latch struct {
	mu  sync.Mutex
	set bool
}

// TryAcquire sets the latch and returns true if it was previously clear.
// Exactly one caller wins, even under concurrent invocation.
func (l *Latch) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		return false
	}
	l.set = true
	return true
}

// Set reports whether the latch is currently held.
func (l *Latch) Set() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set
}

// Reset clears the latch so the guarded work may run again.
func (l *Latch) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set = false
}
