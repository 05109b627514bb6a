package segment

import (
	"unsafe"

	"github.com/ghetzel/ipcseg/allocator"
	"github.com/ghetzel/ipcseg/offsetptr"
)

// directoryInitialCapacity is the number of NamedEntry slots the directory
// starts with; it grows by reallocation through the segment's own allocator
// once exhausted.
const directoryInitialCapacity = 8

// nameCapacity bounds a NamedEntry's name field, matching the "bounded
// C-string" the spec's Data Model calls for.
const nameCapacity = 64

// NamedEntry is one row of the name directory: a bounded name, a
// self-relative pointer to the payload, the element count it was
// constructed with, and a type-hash guarding Find against a mismatched T.
type NamedEntry struct {
	name     [nameCapacity]byte
	payload  offsetptr.Pointer[byte]
	count    uint32
	typeHash uint64
}

func (e *NamedEntry) nameString() string {
	n := 0

	for n < len(e.name) && e.name[n] != 0 {
		n++
	}

	return string(e.name[:n])
}

func (e *NamedEntry) setName(name string) bool {
	if len(name) >= len(e.name) {
		return false
	}

	var buf [nameCapacity]byte
	copy(buf[:], name)
	e.name = buf

	return true
}

// Header sits at byte 0 of every managed segment, exactly per spec.md §6's
// persisted-state layout. T/PT are the compile-time mutex choice.
type Header[T any, PT MutexPtr[T]] struct {
	segmentBytes   uint64
	allocatedBytes uint64
	mutex          T
	directoryPtr   offsetptr.Pointer[NamedEntry]
	directoryLen   uint32
	directoryCap   uint32
	sentinel       allocator.BlockHeader
}

// headerSize is where the allocatable region begins, rounded up to the
// allocator's 16-byte alignment, exactly as spec.md §6 describes.
func headerSize[T any, PT MutexPtr[T]]() uintptr {
	var h Header[T, PT]
	size := unsafe.Sizeof(h)

	return (size + allocator.HeaderAlign - 1) &^ (allocator.HeaderAlign - 1)
}

func (h *Header[T, PT]) mutexPtr() PT { return PT(&h.mutex) }
