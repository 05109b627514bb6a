package allocator

import (
	"testing"
	"unsafe"

	"github.com/ghetzel/ipcseg/ipcerr"
)

// fakeHeader stands in for the sentinel BlockHeader a real SegmentHeader
// embeds; allocatedBytes stands in for the segment's allocated_bytes field.
type fakeHeader struct {
	sentinel       BlockHeader
	allocatedBytes uint64
}

func newFit(t *testing.T, size int) (*SimpleSeqFit, *fakeHeader, []byte) {
	t.Helper()

	hdr := &fakeHeader{}
	buf := make([]byte, size)

	fit := New(&hdr.sentinel, unsafe.Pointer(&buf[0]), uintptr(size), &hdr.allocatedBytes)
	fit.Init()

	return fit, hdr, buf
}

func TestInitProducesOneFreeBlock(t *testing.T) {
	fit, hdr, buf := newFit(t, 4096)

	if n := fit.FreeBlockCount(); n != 1 {
		t.Fatalf("expected 1 free block after Init, got %d", n)
	}

	if got := fit.FreeBytes(); got != uint64(len(buf)) {
		t.Fatalf("expected free bytes to equal segment size %d, got %d", len(buf), got)
	}

	if hdr.allocatedBytes != 0 {
		t.Fatalf("expected allocated_bytes to be 0 after Init, got %d", hdr.allocatedBytes)
	}
}

func TestAllocDeallocRoundTrip(t *testing.T) {
	fit, hdr, buf := newFit(t, 4096)

	p, err := AllocT[int32](fit, 1)
	if err != nil {
		t.Fatalf("alloc failed: %v", err)
	}

	if hdr.allocatedBytes == 0 {
		t.Fatal("expected allocated_bytes to increase after alloc")
	}

	if err := DeallocT[int32](fit, p, 1); err != nil {
		t.Fatalf("dealloc failed: %v", err)
	}

	if hdr.allocatedBytes != 0 {
		t.Fatalf("expected allocated_bytes to return to 0, got %d", hdr.allocatedBytes)
	}

	if got := fit.FreeBytes(); got != uint64(len(buf)) {
		t.Fatalf("expected all bytes free again, got %d of %d", got, len(buf))
	}
}

func TestCoalescingAllowsLargeAllocAfterFreeingTwoSmallOnes(t *testing.T) {
	fit, _, _ := newFit(t, 4096)

	x, err := AllocT[int32](fit, 1)
	if err != nil {
		t.Fatalf("alloc x failed: %v", err)
	}

	y, err := AllocT[int32](fit, 1)
	if err != nil {
		t.Fatalf("alloc y failed: %v", err)
	}

	if err := DeallocT[int32](fit, y, 1); err != nil {
		t.Fatalf("dealloc y failed: %v", err)
	}

	if err := DeallocT[int32](fit, x, 1); err != nil {
		t.Fatalf("dealloc x failed: %v", err)
	}

	if _, err := AllocT[int32](fit, 1000); err != nil {
		t.Fatalf("expected coalesced free space to satisfy a 1000-int32 alloc, got: %v", err)
	}
}

func TestAllocExhaustionReturnsOutOfMemory(t *testing.T) {
	fit, _, _ := newFit(t, 64)

	if _, err := AllocT[[1024]byte](fit, 1); !ipcerr.Is(err, ipcerr.OutOfMemory) {
		t.Fatalf("expected out-of-memory, got: %v", err)
	}
}

type overAligned struct {
	_ [32]byte
}

func TestAllocRejectsOveralignedType(t *testing.T) {
	fit, _, _ := newFit(t, 4096)

	// No Go type is aligned to more than 8 bytes, so the over-aligned
	// request goes through Alloc directly with an explicit 32-byte alignment.
	if _, err := fit.Alloc(unsafe.Sizeof(overAligned{}), 2*HeaderAlign, 1); !ipcerr.Is(err, ipcerr.InvalidArgument) {
		t.Fatalf("expected invalid-argument for over-aligned type, got: %v", err)
	}
}

func TestConservationInvariant(t *testing.T) {
	fit, hdr, buf := newFit(t, 8192)

	var ptrs []*int64

	for i := 0; i < 20; i++ {
		p, err := AllocT[int64](fit, 3)
		if err != nil {
			t.Fatalf("alloc %d failed: %v", i, err)
		}

		ptrs = append(ptrs, p)
	}

	for i, p := range ptrs {
		if i%2 == 0 {
			if err := DeallocT[int64](fit, p, 3); err != nil {
				t.Fatalf("dealloc %d failed: %v", i, err)
			}
		}
	}

	if got, want := hdr.allocatedBytes+fit.FreeBytes(), uint64(len(buf)); got != want {
		t.Fatalf("conservation violated: allocated(%d) + free(%d) = %d, want %d", hdr.allocatedBytes, fit.FreeBytes(), got, want)
	}
}
