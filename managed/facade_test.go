package managed

import (
	"path/filepath"
	"testing"

	"github.com/ghetzel/ipcseg/ipcerr"
	"github.com/ghetzel/ipcseg/region"
)

type sample struct {
	value int64
}

func TestManagedMappedFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.bin")

	f, err := OpenManagedMappedFile(path, 1<<16, region.Create, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	if _, err := ConstructFile(f, "sample", 1, func(s *sample) { s.value = 9 }); err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	found, ok, err := FindFile[sample](f, "sample")
	if err != nil || !ok {
		t.Fatalf("find failed: ok=%v err=%v", ok, err)
	}

	if found.value != 9 {
		t.Fatalf("expected value 9, got %d", found.value)
	}
}

func TestManagedMappedFileReattachSeesPriorEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.bin")

	f1, err := OpenManagedMappedFile(path, 1<<16, region.Create, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := ConstructFile(f1, "sample", 1, func(s *sample) { s.value = 5 }); err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	if err := f1.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	f2, err := OpenManagedMappedFile(path, 1<<16, region.Open, nil)
	if err != nil {
		t.Fatalf("reattach failed: %v", err)
	}
	defer f2.Close()

	found, ok, err := FindFile[sample](f2, "sample")
	if err != nil || !ok {
		t.Fatalf("expected to find entry after reattach, ok=%v err=%v", ok, err)
	}

	if found.value != 5 {
		t.Fatalf("expected value 5, got %d", found.value)
	}
}

func TestManagedMappedFileSizeMismatchOnReattach(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.bin")

	f1, err := OpenManagedMappedFile(path, 1<<16, region.Create, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := f1.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := OpenManagedMappedFile(path, 1<<17, region.Open, nil); !ipcerr.Is(err, ipcerr.InvalidArgument) {
		t.Fatalf("expected invalid-argument on size mismatch, got %v", err)
	}
}

func TestManagedAnonymousSharedMemoryRoundTrip(t *testing.T) {
	a, err := NewManagedAnonymousSharedMemory(1<<16, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer a.Close()

	if _, err := ConstructAnon(a, "sample", 1, func(s *sample) { s.value = 3 }); err != nil {
		t.Fatalf("construct failed: %v", err)
	}

	found, ok, err := FindAnon[sample](a, "sample")
	if err != nil || !ok {
		t.Fatalf("find failed: ok=%v err=%v", ok, err)
	}

	if found.value != 3 {
		t.Fatalf("expected value 3, got %d", found.value)
	}
}

func TestCrashRecoveryHeartbeatIsAdvisoryAndOptional(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.bin")

	f, err := OpenManagedMappedFile(path, 1<<16, region.Create, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer f.Close()

	if err := f.WithCrashRecoveryHeartbeat(path); err != nil {
		t.Fatalf("heartbeat acquisition failed: %v", err)
	}

	if _, err := ConstructFile[sample](f, "sample", 1, nil); err != nil {
		t.Fatalf("construct still works with heartbeat held: %v", err)
	}
}
