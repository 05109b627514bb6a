// Package managed bundles a region backend with a segment.Manager behind a
// single facade type per backend, the way spec.md §2 frames "managed shared
// memory": open-or-create the backing store, map it, reinterpret its prefix
// as a SegmentManager, forward the typed operations.
package managed

import (
	"github.com/sirupsen/logrus"

	"github.com/ghetzel/ipcseg/region"
	"github.com/ghetzel/ipcseg/segment"
	"github.com/ghetzel/ipcseg/segmutex"
)

// attachOrInit lays down a fresh SegmentHeader with Init if r looks
// never-initialized, and otherwise Attaches to the header an earlier Init
// already wrote. Create always Inits, since its backend call only succeeds
// on a newly created object. For Open and OpenOrCreate the mode cannot
// decide this: under OpenOrCreate, the backend's internal create/open race
// (region.resolveCreateMode) may have taken either path, so freshness is
// detected directly from the mapped bytes instead.
func attachOrInit[T any, PT segment.MutexPtr[T]](r *region.MappedRegion, mode region.CreateMode, log *logrus.Entry) (*segment.Manager[T, PT], error) {
	if mode == region.Create || isFreshSegment(r) {
		return segment.Init[T, PT](r, log)
	}

	return segment.Attach[T, PT](r, log)
}

// isFreshSegment reports whether r's header has never been written: Init
// always sets segmentBytes (the header's leading 8 bytes) to r.Size(),
// which the CLI and every facade constructor require to be nonzero, so an
// all-zero leading word — exactly what a freshly created file, POSIX shm
// object, or XSI segment starts as — can only mean Init has not run yet.
func isFreshSegment(r *region.MappedRegion) bool {
	if r.Size() < 8 {
		return false
	}

	for _, v := range r.Bytes()[:8] {
		if v != 0 {
			return false
		}
	}

	return true
}

// ManagedSharedMemory bundles a POSIX shared memory object with a
// process-shared segment manager.
type ManagedSharedMemory struct {
	region  *region.MappedRegion
	manager *segment.Manager[segmutex.Shared, *segmutex.Shared]
	log     *logrus.Entry
}

// OpenManagedSharedMemory opens or creates the named POSIX shm object of the
// given size and attaches a SegmentManager to it.
func OpenManagedSharedMemory(name string, size uintptr, mode region.CreateMode, log *logrus.Entry) (*ManagedSharedMemory, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	r, err := region.NewSharedMemory(name).WithSize(size).WithPrivilege(region.ReadWrite).WithMode(mode).WithLogger(log).Map()
	if err != nil {
		return nil, err
	}

	m, err := attachOrInit[segmutex.Shared, *segmutex.Shared](r, mode, log)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	return &ManagedSharedMemory{region: r, manager: m, log: log}, nil
}

func (s *ManagedSharedMemory) Close() error { return s.region.Close() }

func (s *ManagedSharedMemory) Stats() segment.Stats { return s.manager.Stats() }

func Construct[V any](s *ManagedSharedMemory, name string, count int, init func(*V)) (*V, error) {
	return segment.Construct[V](s.manager, name, count, init)
}

func Find[V any](s *ManagedSharedMemory, name string) (*V, bool, error) {
	return segment.Find[V](s.manager, name)
}

func FindOrConstruct[V any](s *ManagedSharedMemory, name string, count int, init func(*V)) (*V, error) {
	return segment.FindOrConstruct[V](s.manager, name, count, init)
}

func DestroySharedMemory[V any](s *ManagedSharedMemory, name string) error {
	return segment.Destroy[V](s.manager, name)
}

// ManagedMappedFile bundles a plain file-backed mapping with a
// process-shared segment manager — the default choice whenever the segment
// must survive a reboot, matching spec.md §2's durability note.
type ManagedMappedFile struct {
	region  *region.MappedRegion
	manager *segment.Manager[segmutex.Shared, *segmutex.Shared]
	log     *logrus.Entry
	heart   *crashHeartbeat
}

// OpenManagedMappedFile opens or creates path as a segment of the given
// size.
func OpenManagedMappedFile(path string, size uintptr, mode region.CreateMode, log *logrus.Entry) (*ManagedMappedFile, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	r, err := region.NewFileMapping(path).WithSize(size).WithPrivilege(region.ReadWrite).WithMode(mode).WithLogger(log).Map()
	if err != nil {
		return nil, err
	}

	m, err := attachOrInit[segmutex.Shared, *segmutex.Shared](r, mode, log)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	return &ManagedMappedFile{region: r, manager: m, log: log}, nil
}

// WithCrashRecoveryHeartbeat holds an advisory gofrs/flock lock on the
// companion file path+".heartbeat" for as long as the facade stays open. It is purely additive: no operation in
// this package requires it, and its absence changes nothing about
// correctness. A monitoring process can poll the lock to notice a crashed
// holder the way a PID file would, without this codebase taking on
// PTHREAD_MUTEX_ROBUST-style recovery semantics (see DESIGN.md).
func (f *ManagedMappedFile) WithCrashRecoveryHeartbeat(path string) error {
	h, err := newCrashHeartbeat(path)
	if err != nil {
		return err
	}

	f.heart = h

	return nil
}

func (f *ManagedMappedFile) Close() error {
	if f.heart != nil {
		if err := f.heart.Close(); err != nil {
			f.log.WithError(err).Warn("managed: failed to release crash-recovery heartbeat lock")
		}
	}

	return f.region.Close()
}

func (f *ManagedMappedFile) Stats() segment.Stats { return f.manager.Stats() }

func ConstructFile[V any](f *ManagedMappedFile, name string, count int, init func(*V)) (*V, error) {
	return segment.Construct[V](f.manager, name, count, init)
}

func FindFile[V any](f *ManagedMappedFile, name string) (*V, bool, error) {
	return segment.Find[V](f.manager, name)
}

func FindOrConstructFile[V any](f *ManagedMappedFile, name string, count int, init func(*V)) (*V, error) {
	return segment.FindOrConstruct[V](f.manager, name, count, init)
}

func DestroyFile[V any](f *ManagedMappedFile, name string) error {
	return segment.Destroy[V](f.manager, name)
}

// ManagedXsiSharedMemory bundles a System V shared memory segment with a
// process-shared segment manager.
type ManagedXsiSharedMemory struct {
	region  *region.MappedRegion
	manager *segment.Manager[segmutex.Shared, *segmutex.Shared]
	log     *logrus.Entry
	shmid   int
}

// OpenManagedXsiSharedMemory opens or creates the XSI segment keyed by
// (path, id).
func OpenManagedXsiSharedMemory(path string, id int, size uintptr, mode region.CreateMode, log *logrus.Entry) (*ManagedXsiSharedMemory, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	r, err := region.NewXsiSharedMemory(path, id).WithSize(size).WithPrivilege(region.ReadWrite).WithMode(mode).WithLogger(log).Map()
	if err != nil {
		return nil, err
	}

	m, err := attachOrInit[segmutex.Shared, *segmutex.Shared](r, mode, log)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	return &ManagedXsiSharedMemory{region: r, manager: m, log: log}, nil
}

func (x *ManagedXsiSharedMemory) Close() error { return x.region.Close() }

func (x *ManagedXsiSharedMemory) Stats() segment.Stats { return x.manager.Stats() }

func ConstructXsi[V any](x *ManagedXsiSharedMemory, name string, count int, init func(*V)) (*V, error) {
	return segment.Construct[V](x.manager, name, count, init)
}

func FindXsi[V any](x *ManagedXsiSharedMemory, name string) (*V, bool, error) {
	return segment.Find[V](x.manager, name)
}

func DestroyXsi[V any](x *ManagedXsiSharedMemory, name string) error {
	return segment.Destroy[V](x.manager, name)
}

// ManagedAnonymousSharedMemory bundles an anonymous MAP_SHARED mapping with
// a process-private segment manager: since anonymous mappings are never
// named or reopened by another process directly (they are inherited through
// fork), a futex-based mutex would be paying for cross-process safety the
// facade cannot use, so it is instantiated over segmutex.Private instead.
type ManagedAnonymousSharedMemory struct {
	region  *region.MappedRegion
	manager *segment.Manager[segmutex.Private, *segmutex.Private]
	log     *logrus.Entry
}

// NewManagedAnonymousSharedMemory creates a fresh anonymous segment of the
// given size.
func NewManagedAnonymousSharedMemory(size uintptr, log *logrus.Entry) (*ManagedAnonymousSharedMemory, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	r, err := region.NewAnonShared(size).WithLogger(log).Map()
	if err != nil {
		return nil, err
	}

	m, err := segment.Init[segmutex.Private, *segmutex.Private](r, log)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	return &ManagedAnonymousSharedMemory{region: r, manager: m, log: log}, nil
}

func (a *ManagedAnonymousSharedMemory) Close() error { return a.region.Close() }

func (a *ManagedAnonymousSharedMemory) Stats() segment.Stats { return a.manager.Stats() }

func ConstructAnon[V any](a *ManagedAnonymousSharedMemory, name string, count int, init func(*V)) (*V, error) {
	return segment.Construct[V](a.manager, name, count, init)
}

func FindAnon[V any](a *ManagedAnonymousSharedMemory, name string) (*V, bool, error) {
	return segment.Find[V](a.manager, name)
}

func DestroyAnon[V any](a *ManagedAnonymousSharedMemory, name string) error {
	return segment.Destroy[V](a.manager, name)
}
