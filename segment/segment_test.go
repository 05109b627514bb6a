package segment

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ghetzel/ipcseg/ipcerr"
	"github.com/ghetzel/ipcseg/region"
	"github.com/ghetzel/ipcseg/segmutex"
)

type counterRecord struct {
	n int64
}

func testManager(t *testing.T, size uintptr) *Manager[segmutex.Private, *segmutex.Private] {
	t.Helper()

	r, err := region.NewAnonShared(size).Map()
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	m, err := Init[segmutex.Private, *segmutex.Private](r, logrus.NewEntry(logrus.StandardLogger()))
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	return m
}

func TestConstructFindDestroyRoundTrip(t *testing.T) {
	m := testManager(t, 1<<16)

	rec, err := Construct[counterRecord](m, "counter", 1, func(r *counterRecord) { r.n = 42 })
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	if rec.n != 42 {
		t.Fatalf("expected init to run, got n=%d", rec.n)
	}

	found, ok, err := Find[counterRecord](m, "counter")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}

	if !ok {
		t.Fatal("expected to find the constructed entry")
	}

	if found.n != 42 {
		t.Fatalf("expected found.n == 42, got %d", found.n)
	}

	if err := Destroy[counterRecord](m, "counter"); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}

	if _, ok, err := Find[counterRecord](m, "counter"); err != nil || ok {
		t.Fatalf("expected no entry after destroy, ok=%v err=%v", ok, err)
	}
}

func TestConstructDuplicateNameFails(t *testing.T) {
	m := testManager(t, 1<<16)

	if _, err := Construct[counterRecord](m, "counter", 1, nil); err != nil {
		t.Fatalf("first construct failed: %v", err)
	}

	if _, err := Construct[counterRecord](m, "counter", 1, nil); !ipcerr.Is(err, ipcerr.AlreadyExists) {
		t.Fatalf("expected already-exists, got %v", err)
	}
}

func TestFindOrConstructConverges(t *testing.T) {
	m := testManager(t, 1<<16)

	a, err := FindOrConstruct[counterRecord](m, "counter", 1, func(r *counterRecord) { r.n = 7 })
	if err != nil {
		t.Fatalf("first find-or-construct failed: %v", err)
	}

	b, err := FindOrConstruct[counterRecord](m, "counter", 1, func(r *counterRecord) { r.n = 99 })
	if err != nil {
		t.Fatalf("second find-or-construct failed: %v", err)
	}

	if a != b {
		t.Fatal("expected the same underlying storage from both calls")
	}

	if b.n != 7 {
		t.Fatalf("expected the second call to see the first call's init, got n=%d", b.n)
	}
}

func TestFindTypeMismatchDetected(t *testing.T) {
	m := testManager(t, 1<<16)

	if _, err := Construct[counterRecord](m, "counter", 1, nil); err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	if _, _, err := Find[int64](m, "counter"); !ipcerr.Is(err, ipcerr.TypeMismatch) {
		t.Fatalf("expected type-mismatch, got %v", err)
	}

	if err := Destroy[int64](m, "counter"); !ipcerr.Is(err, ipcerr.TypeMismatch) {
		t.Fatalf("expected type-mismatch on destroy, got %v", err)
	}
}

func TestDestroyMissingFails(t *testing.T) {
	m := testManager(t, 1<<16)

	if err := Destroy[counterRecord](m, "nope"); !ipcerr.Is(err, ipcerr.NotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDirectoryGrowsPastInitialCapacity(t *testing.T) {
	m := testManager(t, 1<<20)

	n := directoryInitialCapacity*2 + 3

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("entry-%03d", i)

		if _, err := Construct[counterRecord](m, name, 1, func(r *counterRecord) {}); err != nil {
			t.Fatalf("construct %q failed: %v", name, err)
		}
	}

	stats := m.Stats()
	if int(stats.DirectoryLen) != n {
		t.Fatalf("expected directory length %d, got %d", n, stats.DirectoryLen)
	}

	if stats.DirectoryCap <= directoryInitialCapacity {
		t.Fatalf("expected the directory to have grown past %d, got cap=%d", directoryInitialCapacity, stats.DirectoryCap)
	}

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("entry-%03d", i)

		if _, ok, err := Find[counterRecord](m, name); err != nil || !ok {
			t.Fatalf("expected to find %q after growth, ok=%v err=%v", name, ok, err)
		}
	}
}

func TestConservationInvariantHoldsAcrossLifecycle(t *testing.T) {
	m := testManager(t, 1<<16)

	names := []string{"a", "b", "c"}

	for _, name := range names {
		if _, err := Construct[counterRecord](m, name, 4, nil); err != nil {
			t.Fatalf("construct %q failed: %v", name, err)
		}
	}

	if err := Destroy[counterRecord](m, "b"); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}

	stats := m.Stats()
	headerBytes := stats.SegmentBytes - stats.AllocatedBytes - stats.FreeBytes

	if headerBytes != uint64(headerSize[segmutex.Private, *segmutex.Private]()) {
		t.Fatalf("conservation invariant violated: segment=%d allocated=%d free=%d header=%d",
			stats.SegmentBytes, stats.AllocatedBytes, stats.FreeBytes, headerBytes)
	}
}
