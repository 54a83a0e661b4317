package ring

import "testing"

func TestRingEmpty(t *testing.T) {
	r := New[int](10)
	if got := r.Drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
	if _, ok := r.Oldest(); ok {
		t.Error("expected no oldest element")
	}
	if _, ok := r.Newest(); ok {
		t.Error("expected no newest element")
	}
}

func TestRingPushAndDrain(t *testing.T) {
	r := New[int](10)
	for i := 0; i < 5; i++ {
		if _, evicted := r.Push(i); evicted {
			t.Fatalf("push %d: unexpected eviction", i)
		}
	}

	got := r.Drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i] != i {
			t.Errorf("item %d: expected %d, got %d", i, i, got[i])
		}
	}

	if got2 := r.Drain(); got2 != nil {
		t.Errorf("expected nil from second drain, got %d items", len(got2))
	}
}

func TestRingOverflowEvictsOldest(t *testing.T) {
	capacity := 5
	r := New[int](capacity)

	var evictedValues []int
	for i := 0; i < capacity+3; i++ {
		if old, evicted := r.Push(i); evicted {
			evictedValues = append(evictedValues, old)
		}
	}

	if len(evictedValues) != 3 {
		t.Fatalf("expected 3 evictions, got %d", len(evictedValues))
	}
	for i, v := range evictedValues {
		if v != i {
			t.Errorf("eviction %d: expected %d, got %d", i, i, v)
		}
	}

	got := r.Items()
	if len(got) != capacity {
		t.Fatalf("expected %d items, got %d", capacity, len(got))
	}
	for i := 0; i < capacity; i++ {
		if got[i] != i+3 {
			t.Errorf("item %d: expected %d, got %d", i, i+3, got[i])
		}
	}

	oldest, _ := r.Oldest()
	newest, _ := r.Newest()
	if oldest != 3 || newest != 7 {
		t.Errorf("expected oldest=3 newest=7, got %d %d", oldest, newest)
	}
}

func TestRingLenNeverExceedsCap(t *testing.T) {
	for capacity := 1; capacity <= 7; capacity++ {
		r := New[int](capacity)
		for i := 0; i < 50; i++ {
			r.Push(i)
			if r.Len() > r.Cap() {
				t.Fatalf("cap %d: len %d exceeds capacity", capacity, r.Len())
			}
		}
	}
}

func TestRingZeroCapacity(t *testing.T) {
	r := New[string](0)
	r.Push("a")
	r.Push("b")
	if r.Cap() != 1 || r.Len() != 1 {
		t.Fatalf("expected cap=1 len=1, got cap=%d len=%d", r.Cap(), r.Len())
	}
	if v, _ := r.Oldest(); v != "b" {
		t.Errorf("expected b, got %q", v)
	}
}

func TestRingMultipleCycles(t *testing.T) {
	r := New[int](5)

	for i := 0; i < 3; i++ {
		r.Push(i)
	}
	if got := r.Drain(); len(got) != 3 {
		t.Fatalf("cycle 1: expected 3 items, got %d", len(got))
	}

	for i := 10; i < 14; i++ {
		r.Push(i)
	}
	got := r.Drain()
	if len(got) != 4 {
		t.Fatalf("cycle 2: expected 4 items, got %d", len(got))
	}
	for i, v := range got {
		if v != 10+i {
			t.Errorf("cycle 2 item %d: expected %d, got %d", i, 10+i, v)
		}
	}
}
