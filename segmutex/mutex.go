// Package segmutex provides the three interchangeable mutual-exclusion
// implementations a SegmentManager can be instantiated over: process-shared,
// process-private, and null. The choice is a compile-time (generic) type
// parameter on segment.Manager, never a runtime v-table.
package segmutex

// Mutex is the contract all three implementations satisfy. ConstructInPlace
// must be called exactly once, by whichever process creates the segment;
// every later attach (in this or another process) simply uses the
// already-initialized value.
type Mutex interface {
	ConstructInPlace()
	Lock()
	TryLock() bool
	Unlock()
}
