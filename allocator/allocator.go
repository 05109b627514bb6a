// Package allocator implements SimpleSeqFit: a first-fit, address-ordered,
// singly-linked free list threaded directly through a managed segment's
// bytes. It never allocates Go heap memory for its bookkeeping — every
// BlockHeader lives in-band, inside the region it manages.
package allocator

import (
	"unsafe"

	"github.com/ghetzel/ipcseg/ipcerr"
	"github.com/ghetzel/ipcseg/offsetptr"
)

// HeaderAlign is the alignment every BlockHeader, and therefore every
// payload this allocator hands out, is placed on.
const HeaderAlign = 16

// BlockHeader is the fixed-size record prepended to every free region. Its
// two fields are exactly 16 bytes, matching HeaderAlign, which is what lets
// a payload always start exactly HeaderAlign bytes after its header with no
// extra padding for any T whose alignment does not exceed HeaderAlign.
type BlockHeader struct {
	next offsetptr.Pointer[BlockHeader]
	size uint64
}

// HeaderSize is the in-memory size of a BlockHeader.
const HeaderSize = unsafe.Sizeof(BlockHeader{})

// Size reports the byte count this header currently claims: for a free
// block that's the span available to the next allocation (inclusive of the
// header); for a block that has been handed out it is whatever was consumed
// at Alloc time, which Dealloc later reads back to restore exactly that
// many bytes to the free list.
func (b *BlockHeader) Size() uint64 { return b.size }

func alignUp(addr, align uintptr) uintptr {
	if align <= 1 {
		return addr
	}

	return (addr + align - 1) &^ (align - 1)
}

// SimpleSeqFit is the allocator itself. It does not own the memory it
// manages — base/limit describe a byte range inside a caller-owned mapped
// region, and sentinel is a BlockHeader embedded in that same region's
// segment header (so the free list forms a closed cycle entirely within
// segment bytes, never pointing outside it).
type SimpleSeqFit struct {
	sentinel       *BlockHeader
	base           uintptr
	limit          uintptr
	allocatedBytes *uint64
}

// New wraps an existing sentinel/region pair. It does not initialize the
// free list; call Init on first creation, or rely on the existing list
// structure when reattaching to a segment that already called Init.
func New(sentinel *BlockHeader, base unsafe.Pointer, size uintptr, allocatedBytes *uint64) *SimpleSeqFit {
	return &SimpleSeqFit{
		sentinel:       sentinel,
		base:           uintptr(base),
		limit:          uintptr(base) + size,
		allocatedBytes: allocatedBytes,
	}
}

// Init marks the entire managed range as one free block and resets the
// allocated-bytes counter. Must only be called once, on segment creation.
func (a *SimpleSeqFit) Init() {
	a.sentinel.size = 0

	first := (*BlockHeader)(unsafe.Pointer(a.base))
	first.size = uint64(a.limit - a.base)
	first.next.Set(a.sentinel)

	a.sentinel.next.Set(first)
	*a.allocatedBytes = 0
}

// Alloc reserves count contiguous elements of elemSize bytes, aligned to
// elemAlign, returning a pointer to the first element's storage.
func (a *SimpleSeqFit) Alloc(elemSize, elemAlign uintptr, count int) (unsafe.Pointer, error) {
	if elemAlign > HeaderAlign {
		return nil, ipcerr.Newf(ipcerr.InvalidArgument, "alignment %d exceeds the %d-byte block alignment", elemAlign, HeaderAlign)
	}

	if elemAlign == 0 {
		elemAlign = 1
	}

	if count < 0 {
		return nil, ipcerr.New(ipcerr.InvalidArgument, "negative element count")
	}

	want := elemSize * uintptr(count)

	prev := a.sentinel
	cur := prev.next.Get()

	for cur != a.sentinel {
		blockAddr := uintptr(unsafe.Pointer(cur))
		payload := alignUp(blockAddr+HeaderSize, elemAlign)
		consumed := alignUp(payload+want, HeaderAlign) - blockAddr

		if consumed <= uintptr(cur.size) {
			remainder := uintptr(cur.size) - consumed

			if remainder > HeaderAlign {
				newAddr := blockAddr + consumed
				newHdr := (*BlockHeader)(unsafe.Pointer(newAddr))
				newHdr.size = uint64(remainder)
				newHdr.next.Set(cur.next.Get())

				prev.next.Set(newHdr)
				cur.size = uint64(consumed)
			} else {
				// The leftover slack is too small to host another header,
				// so it is folded into this allocation. cur.size already
				// holds the full original block size, which is exactly
				// what was consumed — leave it untouched so Dealloc can
				// read the true consumed size straight back out of it.
				consumed = uintptr(cur.size)
				prev.next.Set(cur.next.Get())
			}

			*a.allocatedBytes += uint64(consumed)

			return unsafe.Pointer(payload), nil
		}

		prev = cur
		cur = cur.next.Get()
	}

	return nil, ipcerr.New(ipcerr.OutOfMemory, "no free block fits the requested allocation")
}

// Dealloc returns a previously allocated block to the free list, splicing
// it in address order and coalescing with its neighbors where they are
// exactly adjacent.
func (a *SimpleSeqFit) Dealloc(ptr unsafe.Pointer, elemSize uintptr, count int) error {
	if ptr == nil {
		return nil
	}

	headerAddr := (uintptr(ptr) - HeaderSize) &^ (HeaderAlign - 1)
	hdr := (*BlockHeader)(unsafe.Pointer(headerAddr))

	if headerAddr < a.base || headerAddr >= a.limit {
		return ipcerr.New(ipcerr.InvalidArgument, "dealloc: pointer does not belong to this segment")
	}

	prev := a.sentinel
	cur := prev.next.Get()

	for cur != a.sentinel && uintptr(unsafe.Pointer(cur)) < headerAddr {
		prev = cur
		cur = cur.next.Get()
	}

	freedSize := hdr.size
	if freedSize == 0 {
		// Defensive fallback for a header whose stored size was clobbered;
		// recomputes the minimum this allocation must have consumed.
		freedSize = uint64(HeaderSize) + uint64(elemSize)*uint64(count)
	}

	hdr.size = freedSize
	hdr.next.Set(cur)
	prev.next.Set(hdr)

	if cur != a.sentinel && headerAddr+uintptr(hdr.size) == uintptr(unsafe.Pointer(cur)) {
		hdr.size += cur.size
		hdr.next.Set(cur.next.Get())
	}

	if prev != a.sentinel && uintptr(unsafe.Pointer(prev))+uintptr(prev.size) == headerAddr {
		prev.size += hdr.size
		prev.next.Set(hdr.next.Get())
		*a.allocatedBytes -= freedSize
		return nil
	}

	*a.allocatedBytes -= freedSize

	return nil
}

// Realloc grows or shrinks an existing allocation by allocating fresh
// storage, copying the overlapping prefix, and freeing the old block. There
// is no in-place fast path; SimpleSeqFit favors simplicity over avoiding the
// copy, matching the "(Optional fast path...)" framing in the spec.
func (a *SimpleSeqFit) Realloc(ptr unsafe.Pointer, elemSize, elemAlign uintptr, oldCount, newCount int) (unsafe.Pointer, error) {
	newPtr, err := a.Alloc(elemSize, elemAlign, newCount)
	if err != nil {
		return nil, err
	}

	if ptr != nil {
		n := oldCount
		if newCount < n {
			n = newCount
		}

		if n > 0 {
			copySize := elemSize * uintptr(n)
			src := unsafe.Slice((*byte)(ptr), int(copySize))
			dst := unsafe.Slice((*byte)(newPtr), int(copySize))
			copy(dst, src)
		}

		if err := a.Dealloc(ptr, elemSize, oldCount); err != nil {
			return nil, err
		}
	}

	return newPtr, nil
}

// FreeBytes walks the free list and sums the size of every block, for
// diagnostics (`ipcseg inspect`) and the conservation invariant tests.
func (a *SimpleSeqFit) FreeBytes() uint64 {
	var total uint64

	for cur := a.sentinel.next.Get(); cur != a.sentinel; cur = cur.next.Get() {
		total += cur.size
	}

	return total
}

// FreeBlockCount walks the free list and counts its entries.
func (a *SimpleSeqFit) FreeBlockCount() int {
	var n int

	for cur := a.sentinel.next.Get(); cur != a.sentinel; cur = cur.next.Get() {
		n++
	}

	return n
}
