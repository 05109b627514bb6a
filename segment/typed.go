package segment

import (
	"hash/fnv"
	"reflect"
	"unsafe"

	"github.com/ghetzel/ipcseg/allocator"
	"github.com/ghetzel/ipcseg/ipcerr"
)

// typeHash identifies V well enough to catch the common mistake of Find-ing
// a name under the wrong type — it is not a security boundary, just a
// sanity check, so a cheap FNV-1a over the reflected type string is enough.
func typeHash[V any]() uint64 {
	var zero V

	h := fnv.New64a()
	h.Write([]byte(reflect.TypeOf(zero).String()))

	return h.Sum64()
}

// Construct reserves storage for count contiguous values of V under name,
// zeroes that storage and runs init over it, and records the entry in the name
// directory. It fails with AlreadyExists if name is taken.
func Construct[V any, T any, PT MutexPtr[T]](m *Manager[T, PT], name string, count int, init func(*V)) (*V, error) {
	m.header.mutexPtr().Lock()
	defer m.header.mutexPtr().Unlock()

	if _, found := m.search(name); found {
		return nil, ipcerr.Newf(ipcerr.AlreadyExists, "segment: an entry named %q already exists", name)
	}

	value, err := allocator.AllocT[V](m.alloc, count)
	if err != nil {
		return nil, err
	}

	clear(unsafe.Slice((*byte)(unsafe.Pointer(value)), unsafe.Sizeof(*value)*uintptr(count)))

	if init != nil {
		init(value)
	}

	if err := m.growIfFull(); err != nil {
		_ = allocator.DeallocT[V](m.alloc, value, count)
		return nil, err
	}

	index, _ := m.search(name)

	var entry NamedEntry
	if !entry.setName(name) {
		_ = allocator.DeallocT[V](m.alloc, value, count)
		return nil, ipcerr.Newf(ipcerr.InvalidArgument, "segment: name %q exceeds the %d-byte name limit", name, nameCapacity-1)
	}

	entry.count = uint32(count)
	entry.typeHash = typeHash[V]()

	m.insertAt(index, entry, (*byte)(unsafe.Pointer(value)))

	return value, nil
}

// Find looks up name and reinterprets its payload as *V, failing with
// TypeMismatch if the entry was constructed under a different type.
func Find[V any, T any, PT MutexPtr[T]](m *Manager[T, PT], name string) (*V, bool, error) {
	m.header.mutexPtr().Lock()
	defer m.header.mutexPtr().Unlock()

	index, found := m.search(name)
	if !found {
		return nil, false, nil
	}

	entry := &m.entries()[index]

	if entry.typeHash != typeHash[V]() {
		return nil, false, ipcerr.Newf(ipcerr.TypeMismatch, "segment: %q was not constructed as %T", name, *new(V))
	}

	return (*V)(unsafe.Pointer(entry.payload.Get())), true, nil
}

// FindOrConstruct returns the existing entry named name if one exists,
// otherwise constructs it exactly as Construct would. The whole
// check-then-act sequence runs under a single mutex acquisition so no other
// attacher can race a Construct or Destroy of the same name in between.
func FindOrConstruct[V any, T any, PT MutexPtr[T]](m *Manager[T, PT], name string, count int, init func(*V)) (*V, error) {
	m.header.mutexPtr().Lock()
	defer m.header.mutexPtr().Unlock()

	if index, found := m.search(name); found {
		entry := &m.entries()[index]

		if entry.typeHash != typeHash[V]() {
			return nil, ipcerr.Newf(ipcerr.TypeMismatch, "segment: %q was not constructed as %T", name, *new(V))
		}

		return (*V)(unsafe.Pointer(entry.payload.Get())), nil
	}

	value, err := allocator.AllocT[V](m.alloc, count)
	if err != nil {
		return nil, err
	}

	clear(unsafe.Slice((*byte)(unsafe.Pointer(value)), unsafe.Sizeof(*value)*uintptr(count)))

	if init != nil {
		init(value)
	}

	if err := m.growIfFull(); err != nil {
		_ = allocator.DeallocT[V](m.alloc, value, count)
		return nil, err
	}

	index, _ := m.search(name)

	var entry NamedEntry
	if !entry.setName(name) {
		_ = allocator.DeallocT[V](m.alloc, value, count)
		return nil, ipcerr.Newf(ipcerr.InvalidArgument, "segment: name %q exceeds the %d-byte name limit", name, nameCapacity-1)
	}

	entry.count = uint32(count)
	entry.typeHash = typeHash[V]()

	m.insertAt(index, entry, (*byte)(unsafe.Pointer(value)))

	return value, nil
}

// Destroy releases name's storage back to the allocator and removes it from
// the directory. It fails with NotFound if no such entry exists and with
// TypeMismatch if V does not match how the entry was constructed, so a
// caller can never free memory through the wrong element size.
func Destroy[V any, T any, PT MutexPtr[T]](m *Manager[T, PT], name string) error {
	m.header.mutexPtr().Lock()
	defer m.header.mutexPtr().Unlock()

	index, found := m.search(name)
	if !found {
		return ipcerr.Newf(ipcerr.NotFound, "segment: no entry named %q", name)
	}

	entry := &m.entries()[index]

	if entry.typeHash != typeHash[V]() {
		return ipcerr.Newf(ipcerr.TypeMismatch, "segment: %q was not constructed as %T", name, *new(V))
	}

	value := (*V)(unsafe.Pointer(entry.payload.Get()))
	count := int(entry.count)

	if err := allocator.DeallocT[V](m.alloc, value, count); err != nil {
		return err
	}

	m.removeAt(index)

	return nil
}
