package segment

import "github.com/ghetzel/ipcseg/segmutex"

// MutexPtr expresses the usual Go-generics "pointer methods" pattern: T is
// the mutex value type actually embedded in the segment header (e.g.
// segmutex.Shared), while *T is required to implement segmutex.Mutex, since
// Lock/Unlock/TryLock all need a pointer receiver to mutate shared state.
// This is what lets Manager be generic over "which mutex flavor" as a
// compile-time parameter with no v-table, per spec.md §4.6/§4.7.
type MutexPtr[T any] interface {
	*T
	segmutex.Mutex
}
