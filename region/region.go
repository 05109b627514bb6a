// Package region owns the MappedRegion abstraction and the four backing
// store builders (FileMapping, SharedMemory, XsiSharedMemory, AnonShared)
// that produce one. A MappedRegion owns the virtual memory range obtained
// from mmap/shmat and releases it on Close. It holds no file descriptor: the
// file and POSIX shm builders close their osfile.Handle as soon as the
// mapping exists, and the mapping stays valid without it.
package region

import (
	"os"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ghetzel/ipcseg/ipcerr"
)

// Privilege is the compile-time-in-spirit (here, a plain enum, since Go has
// no type-level parameter for this) choice of access mode. It governs the
// OS open flags, mmap protection, and mmap sharing flag together, per the
// table in spec.md §4.2.
type Privilege int

const (
	ReadOnly Privilege = iota
	ReadWrite
	ReadPrivate
	CopyOnWrite
)

func (p Privilege) openFlags() int {
	switch p {
	case ReadWrite, CopyOnWrite:
		return unix.O_RDWR
	default:
		return unix.O_RDONLY
	}
}

func (p Privilege) protFlags() int {
	switch p {
	case ReadWrite, CopyOnWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	default:
		return unix.PROT_READ
	}
}

func (p Privilege) mapFlags() int {
	switch p {
	case ReadPrivate, CopyOnWrite:
		return unix.MAP_PRIVATE
	default:
		return unix.MAP_SHARED
	}
}

func (p Privilege) writable() bool {
	return p == ReadWrite || p == CopyOnWrite
}

// CreateMode selects which of the three creation verbs a builder performs.
type CreateMode int

const (
	// Create fails with already-exists if the name is taken.
	Create CreateMode = iota
	// Open fails with not-found if the name is absent.
	Open
	// OpenOrCreate loops Create/Open until one succeeds.
	OpenOrCreate
)

// Advice mirrors the five madvise(2) advice values Advise maps onto;
// AdviceNormal (MADV_NORMAL) is the zero value.
type Advice int

const (
	AdviceNormal Advice = iota
	AdviceSequential
	AdviceRandom
	AdviceWillNeed
	AdviceDontNeed
)

// DefaultPermissions is the default mode new backing objects are created
// with, per spec.md §6.
const DefaultPermissions = 0o644

// MappedRegion owns a pointer and length obtained from mmap or shmat. Its
// logical base/size are what the caller asked for; alignedBase/alignedSize
// are what the OS actually mapped, page-aligned per the fixup math in
// spec.md §4.3. It releases its resources exactly once, on Close.
type MappedRegion struct {
	alignedBase uintptr
	alignedSize uintptr
	pageOffset  uintptr
	size        uintptr

	xsi   bool
	xsiID int

	privilege Privilege
	closed    bool

	log *logrus.Entry
}

func pageSize() uintptr {
	return uintptr(os.Getpagesize())
}

// AdjustPageOffset folds an arbitrary byte offset down to its position
// within one page, the invariant spec.md §8 calls the "page fixup
// round-trip": adjustPageOffset(o + pageSize*k) == adjustPageOffset(o).
func AdjustPageOffset(offset int64) int64 {
	ps := int64(pageSize())

	return ((offset % ps) + ps) % ps
}

func (r *MappedRegion) base() uintptr {
	return r.alignedBase + r.pageOffset
}

// Size returns the logical size requested by the caller, excluding any
// page-fixup padding.
func (r *MappedRegion) Size() uintptr {
	return r.size
}

// Base returns the logical base pointer.
func (r *MappedRegion) Base() unsafe.Pointer {
	return unsafe.Pointer(r.base())
}

// Bytes views the region as a byte slice, for callers (the segment package)
// that want to reinterpret the region's prefix as a typed header.
func (r *MappedRegion) Bytes() []byte {
	return unsafe.Slice((*byte)(r.Base()), int(r.size))
}

// Privilege reports the access mode this region was mapped with.
func (r *MappedRegion) Privilege() Privilege {
	return r.privilege
}

// Flush synchronizes dirty pages with the backing store. length == 0 means
// "through the end of the region". Not permitted on XSI regions, which
// silently report false with no error, matching spec.md §4.3/§9.
func (r *MappedRegion) Flush(offset, length int, async bool) (bool, error) {
	if r.xsi {
		return false, nil
	}

	if offset < 0 || uintptr(offset) > r.size {
		return false, ipcerr.New(ipcerr.InvalidArgument, "flush: offset out of range")
	}

	n := length
	if n == 0 {
		n = int(r.size) - offset
	}

	if n < 0 || uintptr(offset+n) > r.size {
		return false, ipcerr.New(ipcerr.InvalidArgument, "flush: length out of range")
	}

	addr := r.base() + uintptr(offset)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)

	flags := unix.MS_SYNC
	if async {
		flags = unix.MS_ASYNC
	}

	if err := unix.Msync(buf, flags); err != nil {
		return false, ipcerr.WrapErrno("msync", err)
	}

	return true, nil
}

// Advise maps the spec's five-valued advice enum onto madvise(2). Not
// permitted on XSI regions, which silently report false.
func (r *MappedRegion) Advise(advice Advice) (bool, error) {
	if r.xsi {
		return false, nil
	}

	var raw int

	switch advice {
	case AdviceNormal:
		raw = unix.MADV_NORMAL
	case AdviceSequential:
		raw = unix.MADV_SEQUENTIAL
	case AdviceRandom:
		raw = unix.MADV_RANDOM
	case AdviceWillNeed:
		raw = unix.MADV_WILLNEED
	case AdviceDontNeed:
		raw = unix.MADV_DONTNEED
	default:
		return false, ipcerr.New(ipcerr.InvalidArgument, "advise: unknown advice value")
	}

	if err := unix.Madvise(r.Bytes(), raw); err != nil {
		return false, ipcerr.WrapErrno("madvise", err)
	}

	return true, nil
}

// ShrinkBy returns a page-aligned, strictly interior sub-range at either end
// of the mapping back to the OS. Not permitted on XSI regions.
func (r *MappedRegion) ShrinkBy(bytes int, fromBack bool) (bool, error) {
	if r.xsi {
		return false, nil
	}

	ps := pageSize()
	n := uintptr(bytes)

	if n == 0 || n%ps != 0 || n >= r.alignedSize {
		return false, ipcerr.New(ipcerr.InvalidArgument, "shrink_by: bytes must be nonzero, page-aligned, and strictly interior")
	}

	var trimAddr uintptr
	if fromBack {
		trimAddr = r.alignedBase + r.alignedSize - n
	} else {
		trimAddr = r.alignedBase
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(trimAddr)), int(n))
	if err := unix.Munmap(buf); err != nil {
		return false, ipcerr.WrapErrno("munmap", err)
	}

	if fromBack {
		r.alignedSize -= n

		if r.size > r.alignedSize-r.pageOffset {
			r.size = r.alignedSize - r.pageOffset
		}
	} else {
		r.alignedBase += n
		r.alignedSize -= n
		r.pageOffset = 0

		if r.size > r.alignedSize {
			r.size = r.alignedSize
		}
	}

	return true, nil
}

// Close releases the mapping: shmdt for an XSI-backed region, munmap for
// every other backend.
func (r *MappedRegion) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true

	if r.xsi {
		buf := unsafe.Slice((*byte)(unsafe.Pointer(r.alignedBase)), int(r.alignedSize))
		if err := unix.SysvShmDetach(buf); err != nil {
			return ipcerr.WrapErrno("shmdt", err)
		}

		return nil
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(r.alignedBase)), int(r.alignedSize))
	if err := unix.Munmap(buf); err != nil {
		return ipcerr.WrapErrno("munmap", err)
	}

	return nil
}
