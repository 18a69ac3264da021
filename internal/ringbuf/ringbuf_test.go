package ringbuf

import "testing"

// TestPushAndSnapshot verifies order before wraparound.
func TestPushAndSnapshot(t *testing.T) {
	r := MustNew(4)
	for _, v := range []float64{1, 2, 3} {
		r.Push(v)
	}

	got := r.Snapshot()
	want := []float64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Snapshot len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

// TestOverflowKeepsNewest verifies the oldest entries are evicted first.
func TestOverflowKeepsNewest(t *testing.T) {
	r := MustNew(3)
	for v := 1.0; v <= 7; v++ {
		r.Push(v)
	}

	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	got := r.Snapshot()
	want := []float64{5, 6, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	last, ok := r.Last()
	if !ok || last != 7 {
		t.Errorf("Last = %v, %v; want 7, true", last, ok)
	}
}

// TestReset verifies a reset ring is empty but reusable.
func TestReset(t *testing.T) {
	r := MustNew(2)
	r.Push(1)
	r.Push(2)
	r.Reset()

	if r.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", r.Len())
	}
	if _, ok := r.Last(); ok {
		t.Error("Last reported a value after Reset")
	}

	r.Push(9)
	if last, _ := r.Last(); last != 9 {
		t.Errorf("Last after reuse = %v, want 9", last)
	}
}

// TestBadCapacity verifies New rejects non-positive capacities.
func TestBadCapacity(t *testing.T) {
	if _, err := New(0); err != ErrBadCapacity {
		t.Errorf("New(0) err = %v, want ErrBadCapacity", err)
	}
	if _, err := New(-5); err != ErrBadCapacity {
		t.Errorf("New(-5) err = %v, want ErrBadCapacity", err)
	}
}
