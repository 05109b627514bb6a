// Package segment layers a name directory and typed allocation over
// allocator.SimpleSeqFit, guarded by a compile-time-chosen segmutex.Mutex,
// exactly the combination spec.md §4.7 describes as the SegmentManager.
package segment

import (
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/ghetzel/ipcseg/allocator"
	"github.com/ghetzel/ipcseg/ipcerr"
	"github.com/ghetzel/ipcseg/region"
)

// Manager is a view over the first bytes of a *region.MappedRegion; it does
// not own the region (the region is released, and the manager with it, when
// the region's Close is called). T/PT are the mutex flavor this manager
// instance was compiled against.
type Manager[T any, PT MutexPtr[T]] struct {
	region *region.MappedRegion
	header *Header[T, PT]
	alloc  *allocator.SimpleSeqFit
	log    *logrus.Entry
}

func newManager[T any, PT MutexPtr[T]](r *region.MappedRegion, log *logrus.Entry) (*Manager[T, PT], error) {
	need := headerSize[T, PT]()
	if r.Size() < need {
		return nil, ipcerr.Newf(ipcerr.InvalidArgument, "region of %d bytes is smaller than the %d-byte segment header", r.Size(), need)
	}

	header := (*Header[T, PT])(r.Base())

	m := &Manager[T, PT]{
		region: r,
		header: header,
		log:    log,
	}

	allocBase := unsafe.Add(r.Base(), need)
	allocSize := r.Size() - need

	m.alloc = allocator.New(&header.sentinel, allocBase, allocSize, &header.allocatedBytes)

	return m, nil
}

// Init lays out a fresh SegmentHeader at the start of region and returns a
// Manager attached to it. Must only be called once, by the process that
// creates the segment.
func Init[T any, PT MutexPtr[T]](r *region.MappedRegion, log *logrus.Entry) (*Manager[T, PT], error) {
	m, err := newManager[T, PT](r, log)
	if err != nil {
		return nil, err
	}

	m.header.segmentBytes = uint64(r.Size())
	m.header.allocatedBytes = 0
	m.header.mutexPtr().ConstructInPlace()
	m.alloc.Init()

	entries, err := allocator.AllocT[NamedEntry](m.alloc, directoryInitialCapacity)
	if err != nil {
		return nil, ipcerr.Wrap(ipcerr.OutOfMemory, "failed to reserve initial name directory", err)
	}

	m.header.directoryPtr.Set(entries)
	m.header.directoryLen = 0
	m.header.directoryCap = directoryInitialCapacity

	return m, nil
}

// Attach reattaches a Manager to a segment an earlier Init already laid
// out — possibly in a different process, at a different virtual address.
// It validates that the region's size still matches what Init recorded.
func Attach[T any, PT MutexPtr[T]](r *region.MappedRegion, log *logrus.Entry) (*Manager[T, PT], error) {
	m, err := newManager[T, PT](r, log)
	if err != nil {
		return nil, err
	}

	if m.header.segmentBytes != uint64(r.Size()) {
		return nil, ipcerr.Newf(ipcerr.InvalidArgument, "segment header records %d bytes but the mapped region is %d bytes", m.header.segmentBytes, r.Size())
	}

	return m, nil
}

// Stats is a read-only snapshot of segment-wide bookkeeping, for the
// `ipcseg inspect` command and invariant tests.
type Stats struct {
	SegmentBytes    uint64
	AllocatedBytes  uint64
	FreeBytes       uint64
	FreeBlockCount  int
	DirectoryLen    uint32
	DirectoryCap    uint32
}

// Stats takes the mutex, reads the header and free list, and releases it.
func (m *Manager[T, PT]) Stats() Stats {
	m.header.mutexPtr().Lock()
	defer m.header.mutexPtr().Unlock()

	return Stats{
		SegmentBytes:   m.header.segmentBytes,
		AllocatedBytes: m.header.allocatedBytes,
		FreeBytes:      m.alloc.FreeBytes(),
		FreeBlockCount: m.alloc.FreeBlockCount(),
		DirectoryLen:   m.header.directoryLen,
		DirectoryCap:   m.header.directoryCap,
	}
}
