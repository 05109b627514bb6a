// Package offsetptr implements the self-relative pointer that lets
// intra-segment data structures survive being mapped at a different virtual
// address in every process that attaches the segment.
package offsetptr

import "unsafe"

// nullDisplacement is the sentinel self-relative offset that encodes null.
// Every real displacement this library ever computes runs from an
// 8-byte-aligned Pointer field to a target aligned to at least 8 bytes
// (a block header, a directory entry, a payload), so it is always a
// multiple of 8 and therefore even; 1 can never occur as a genuine target
// and is reserved.
const nullDisplacement = 1

// Pointer is a single signed machine word: the byte displacement from the
// Pointer value's own address to the address it points at. It is only
// meaningful at the exact memory address where it was written — copying its
// bytes elsewhere (a struct assignment, a memcpy) silently invalidates it.
// Every method below therefore takes a pointer receiver and uses the
// receiver's own address as "self"; never copy a Pointer by value into a
// new location unless you are a privileged relocation (see allocator's
// splice code) that immediately re-Sets it at the destination.
type Pointer[T any] struct {
	offset int64
}

// Null sets the pointer to the null sentinel.
func (p *Pointer[T]) Null() {
	p.offset = nullDisplacement
}

// IsNull reports whether the pointer is the null sentinel.
func (p *Pointer[T]) IsNull() bool {
	return p.offset == nullDisplacement
}

// Set points the receiver at target, computing the displacement from the
// receiver's own address.
func (p *Pointer[T]) Set(target *T) {
	if target == nil {
		p.Null()
		return
	}

	self := uintptr(unsafe.Pointer(p))
	p.offset = int64(uintptr(unsafe.Pointer(target)) - self)
}

// Get resolves the pointer, returning nil if it is null.
func (p *Pointer[T]) Get() *T {
	if p.IsNull() {
		return nil
	}

	self := uintptr(unsafe.Pointer(p))
	addr := self + uintptr(p.offset)

	return (*T)(unsafe.Pointer(addr))
}

// Equal compares two offset pointers by their resolved address, per the
// spec's invariant that equality is address equality, never displacement
// equality.
func (p *Pointer[T]) Equal(o *Pointer[T]) bool {
	return p.Get() == o.Get()
}
