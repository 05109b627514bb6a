package offsetptr

import "testing"

func TestNullRoundTrip(t *testing.T) {
	var p Pointer[int]
	p.Null()

	if !p.IsNull() {
		t.Error("expected freshly-nulled pointer to report IsNull")
	}

	if p.Get() != nil {
		t.Error("expected Get on a null pointer to return nil")
	}
}

func TestSetGetSameAddress(t *testing.T) {
	type container struct {
		ptr   Pointer[int]
		value int
	}

	var c container
	c.value = 42
	c.ptr.Set(&c.value)

	if got := c.ptr.Get(); got == nil || *got != 42 {
		t.Errorf("expected Get to resolve back to 42, got %v", got)
	}
}

func TestSetGetAfterRelocation(t *testing.T) {
	// Simulate the segment being mapped at a different address: allocate a
	// second container and manually copy the raw fields across, the way a
	// splice operation in the allocator would, re-Setting rather than
	// copying the Pointer itself.
	type container struct {
		ptr   Pointer[int]
		value int
	}

	var a, b container
	a.value = 7
	a.ptr.Set(&a.value)

	b.value = a.value
	b.ptr.Set(&b.value) // re-computed at b's own address, not copied from a

	if got := b.ptr.Get(); got == nil || *got != 7 {
		t.Errorf("expected relocated pointer to resolve to 7, got %v", got)
	}
}

func TestEqualComparesResolvedAddress(t *testing.T) {
	var x int
	var p1, p2 Pointer[int]
	p1.Set(&x)
	p2.Set(&x)

	if !p1.Equal(&p2) {
		t.Error("expected two pointers resolving to the same address to be Equal")
	}

	var y int
	var p3 Pointer[int]
	p3.Set(&y)

	if p1.Equal(&p3) {
		t.Error("expected pointers resolving to different addresses to not be Equal")
	}
}
