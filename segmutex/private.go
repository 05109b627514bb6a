package segmutex

import "sync"

// Private is a process-private mutex: cheaper than Shared because it never
// touches a syscall, but only correct when every user lives inside one
// process (e.g. AnonShared's single-process family, or tests that never
// fork).
type Private struct {
	mu sync.Mutex
}

// ConstructInPlace is a no-op: sync.Mutex's zero value is already unlocked.
// Present so Private satisfies the same Mutex contract as Shared and Null.
func (p *Private) ConstructInPlace() {}

func (p *Private) Lock() { p.mu.Lock() }

func (p *Private) TryLock() bool { return p.mu.TryLock() }

func (p *Private) Unlock() { p.mu.Unlock() }
