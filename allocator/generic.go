package allocator

import "unsafe"

// AllocT is a typed convenience wrapper over Alloc.
func AllocT[T any](a *SimpleSeqFit, count int) (*T, error) {
	var zero T

	p, err := a.Alloc(unsafe.Sizeof(zero), unsafe.Alignof(zero), count)
	if err != nil {
		return nil, err
	}

	return (*T)(p), nil
}

// DeallocT is a typed convenience wrapper over Dealloc.
func DeallocT[T any](a *SimpleSeqFit, ptr *T, count int) error {
	var zero T

	return a.Dealloc(unsafe.Pointer(ptr), unsafe.Sizeof(zero), count)
}

// ReallocT is a typed convenience wrapper over Realloc.
func ReallocT[T any](a *SimpleSeqFit, ptr *T, oldCount, newCount int) (*T, error) {
	var zero T

	p, err := a.Realloc(unsafe.Pointer(ptr), unsafe.Sizeof(zero), unsafe.Alignof(zero), oldCount, newCount)
	if err != nil {
		return nil, err
	}

	return (*T)(p), nil
}
