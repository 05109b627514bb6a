package region

import (
	"path/filepath"
	"testing"
)

func TestAdjustPageOffset(t *testing.T) {
	ps := int64(pageSize())

	cases := []struct {
		offset int64
		want   int64
	}{
		{0, 0},
		{ps, 0},
		{ps + 1, 1},
		{2*ps + 5, 5},
	}

	for _, c := range cases {
		if got := AdjustPageOffset(c.offset); got != c.want {
			t.Errorf("AdjustPageOffset(%d) = %d, want %d", c.offset, got, c.want)
		}
	}
}

func TestFileMappingCreateWriteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.bin")

	r, err := NewFileMapping(path).WithSize(4096).WithPrivilege(ReadWrite).WithMode(Create).Map()
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	buf := r.Bytes()
	for i := range buf {
		buf[i] = 0x41
	}

	if ok, err := r.Flush(0, 0, false); err != nil || !ok {
		t.Fatalf("flush failed: ok=%v err=%v", ok, err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	r2, err := NewFileMapping(path).WithSize(4096).WithPrivilege(ReadWrite).WithMode(Open).Map()
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer r2.Close()

	buf2 := r2.Bytes()
	for i, b := range buf2 {
		if b != 0x41 {
			t.Fatalf("byte %d: expected 0x41, got 0x%x", i, b)
		}
	}
}

func TestFileMappingCreateTwiceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.bin")

	r, err := NewFileMapping(path).WithSize(1024).WithPrivilege(ReadWrite).WithMode(Create).Map()
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	defer r.Close()

	if _, err := NewFileMapping(path).WithSize(1024).WithPrivilege(ReadWrite).WithMode(Create).Map(); err == nil {
		t.Fatal("expected second create to fail with already-exists")
	}
}

func TestFileMappingOpenMissingFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.bin")

	if _, err := NewFileMapping(path).WithSize(1024).WithPrivilege(ReadOnly).WithMode(Open).Map(); err == nil {
		t.Fatal("expected open of a missing file to fail with not-found")
	}
}

func TestFileMappingOpenOrCreateConverges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.bin")

	r1, err := NewFileMapping(path).WithSize(2048).WithPrivilege(ReadWrite).WithMode(OpenOrCreate).Map()
	if err != nil {
		t.Fatalf("first open-or-create failed: %v", err)
	}
	defer r1.Close()

	r2, err := NewFileMapping(path).WithSize(2048).WithPrivilege(ReadWrite).WithMode(OpenOrCreate).Map()
	if err != nil {
		t.Fatalf("second open-or-create failed: %v", err)
	}
	defer r2.Close()

	if r1.Size() != r2.Size() {
		t.Fatalf("expected both opens to see the same size, got %d and %d", r1.Size(), r2.Size())
	}
}

func TestAnonSharedRoundTrip(t *testing.T) {
	r, err := NewAnonShared(4096).Map()
	if err != nil {
		t.Fatalf("anon map failed: %v", err)
	}
	defer r.Close()

	buf := r.Bytes()
	buf[0] = 0xFF

	if buf[0] != 0xFF {
		t.Fatal("expected write to anonymous mapping to be visible immediately")
	}
}

func TestShrinkByRejectsUnalignedLength(t *testing.T) {
	r, err := NewAnonShared(8192).Map()
	if err != nil {
		t.Fatalf("anon map failed: %v", err)
	}
	defer r.Close()

	if _, err := r.ShrinkBy(1, true); err == nil {
		t.Fatal("expected shrink_by with a non-page-aligned length to fail")
	}
}
