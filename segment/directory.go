package segment

import (
	"bytes"
	"sort"
	"unsafe"

	"github.com/ghetzel/ipcseg/allocator"
	"github.com/ghetzel/ipcseg/ipcerr"
)

// directoryGrowthFactor is how much the directory's backing array expands by
// each time it fills, matching the "grow by reallocation" note in spec.md
// §4.7's Data Model.
const directoryGrowthFactor = 2

// entries views the live prefix of the directory's backing array. The slice
// it returns aliases segment memory directly; callers must already hold the
// manager's mutex.
func (m *Manager[T, PT]) entries() []NamedEntry {
	base := m.header.directoryPtr.Get()
	if base == nil {
		return nil
	}

	return unsafe.Slice(base, int(m.header.directoryLen))
}

// search performs a binary search for name over the sorted directory,
// returning the entry's index if present, or the index it would be inserted
// at to keep the array sorted.
func (m *Manager[T, PT]) search(name string) (index int, found bool) {
	entries := m.entries()

	i := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare([]byte(entries[i].nameString()), []byte(name)) >= 0
	})

	if i < len(entries) && entries[i].nameString() == name {
		return i, true
	}

	return i, false
}

// growIfFull reallocates the backing array at directoryGrowthFactor times
// its current capacity whenever the directory is full, via the segment's own
// allocator so the directory lives in segment bytes like everything else.
// Realloc's byte-level copy relocates every NamedEntry to a new address,
// which would silently invalidate each entry's self-relative payload pointer
// (spec.md §9's memcpy hazard), so the absolute payload targets are captured
// before the move and re-homed at the new address afterward.
func (m *Manager[T, PT]) growIfFull() error {
	if m.header.directoryLen < m.header.directoryCap {
		return nil
	}

	newCap := m.header.directoryCap * directoryGrowthFactor
	if newCap == 0 {
		newCap = directoryInitialCapacity
	}

	old := m.header.directoryPtr.Get()
	oldEntries := unsafe.Slice(old, int(m.header.directoryLen))

	targets := make([]*byte, len(oldEntries))
	for i := range oldEntries {
		targets[i] = oldEntries[i].payload.Get()
	}

	grown, err := allocator.ReallocT[NamedEntry](m.alloc, old, int(m.header.directoryCap), int(newCap))
	if err != nil {
		return ipcerr.Wrap(ipcerr.OutOfMemory, "failed to grow the name directory", err)
	}

	newEntries := unsafe.Slice(grown, len(targets))
	for i, target := range targets {
		newEntries[i].payload.Set(target)
	}

	m.header.directoryPtr.Set(grown)
	m.header.directoryCap = newCap

	return nil
}

// insertAt opens a gap at index in the (already capacity-checked) directory
// and writes a new entry carrying the given name/count/typeHash into it,
// pointed at payload. Every later entry shifts up by one slot; each shifted
// entry's payload target is resolved before the move and re-Set at its new
// address rather than byte-copied, for the same reason growIfFull is careful
// above — a raw struct assignment would carry a now-stale displacement.
func (m *Manager[T, PT]) insertAt(index int, entry NamedEntry, payload *byte) {
	entries := unsafe.Slice(m.header.directoryPtr.Get(), int(m.header.directoryCap))

	for i := int(m.header.directoryLen); i > index; i-- {
		target := entries[i-1].payload.Get()
		entries[i] = entries[i-1]
		entries[i].payload.Set(target)
	}

	entries[index] = entry
	entries[index].payload.Set(payload)

	m.header.directoryLen++
}

// removeAt closes the gap at index, shifting every later entry down by one
// slot with the same resolve-then-re-Set treatment insertAt uses. It does
// not shrink the backing array; directory capacity only ever grows, matching
// the allocator's "favor simplicity" posture elsewhere.
func (m *Manager[T, PT]) removeAt(index int) {
	entries := unsafe.Slice(m.header.directoryPtr.Get(), int(m.header.directoryCap))

	for i := index; i < int(m.header.directoryLen)-1; i++ {
		target := entries[i+1].payload.Get()
		entries[i] = entries[i+1]
		entries[i].payload.Set(target)
	}

	var zero NamedEntry
	entries[m.header.directoryLen-1] = zero

	m.header.directoryLen--
}
