package segmutex

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futex states, following the classic "mutex, take 3" scheme: 0 means
// unlocked, 1 means locked with no waiters, 2 means locked with waiters
// that must be woken on unlock.
const (
	futexUnlocked      = 0
	futexLockedNoWait  = 1
	futexLockedWaiting = 2
)

// Shared is a process-shared mutex: its entire state is one int32 word, so
// as long as that word lives inside a segment mapped by every participating
// process, FUTEX_WAIT/FUTEX_WAKE address it identically in each of them —
// no cross-process attribute beyond "don't pass FUTEX_PRIVATE_FLAG" is
// needed. It must be embedded directly inside the segment header, never
// heap-allocated.
type Shared struct {
	word int32
}

// ConstructInPlace zeroes the futex word. Safe to call on already-zeroed
// (e.g. freshly mmap'd) memory; only the creating process should call it.
func (s *Shared) ConstructInPlace() {
	atomic.StoreInt32(&s.word, futexUnlocked)
}

// Lock blocks until the mutex is acquired.
func (s *Shared) Lock() {
	if atomic.CompareAndSwapInt32(&s.word, futexUnlocked, futexLockedNoWait) {
		return
	}

	for atomic.SwapInt32(&s.word, futexLockedWaiting) != futexUnlocked {
		futexWait(&s.word, futexLockedWaiting)
	}
}

// TryLock attempts to acquire the mutex without blocking, returning false if
// another thread or process already holds it.
func (s *Shared) TryLock() bool {
	return atomic.CompareAndSwapInt32(&s.word, futexUnlocked, futexLockedNoWait)
}

// Unlock releases the mutex, waking one waiter if any were recorded.
func (s *Shared) Unlock() {
	if atomic.SwapInt32(&s.word, futexUnlocked) == futexLockedWaiting {
		futexWake(&s.word, 1)
	}
}

// futexWait and futexWake wrap the raw Linux futex(2) syscall directly,
// the way this codebase's mmap/msync/madvise calls do elsewhere — there is
// no futex wrapper in golang.org/x/sys/unix, so the syscall numbers and
// argument order are used as documented by futex(2).
func futexWait(addr *int32, expected int32) {
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAIT),
		uintptr(expected),
		0, 0, 0,
	)
}

func futexWake(addr *int32, n int32) {
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAKE),
		uintptr(n),
		0, 0, 0,
	)
}
