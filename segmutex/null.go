package segmutex

// Null is a zero-cost no-op mutex, for callers with external synchronization
// or genuinely single-threaded use. TryLock always succeeds.
type Null struct{}

func (Null) ConstructInPlace() {}

func (Null) Lock() {}

func (Null) TryLock() bool { return true }

func (Null) Unlock() {}
