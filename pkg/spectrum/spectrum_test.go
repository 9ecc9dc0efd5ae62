package spectrum

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
)

func TestAddCounts_AllocatesOnFirstUse(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddCounts(Data, []int{0, 5, 5, 9}, 10)

	if len(s.Data) != 10 {
		t.Fatalf("expected 10 bins, got %d", len(s.Data))
	}
	if s.Data[5] != 2 || s.Data[0] != 1 || s.Data[9] != 1 {
		t.Fatalf("unexpected bins: %v", s.Data)
	}
	if s.Total(Data) != 4 {
		t.Fatalf("expected total 4, got %d", s.Total(Data))
	}
}

func TestAddCounts_ValueEqualToLengthIgnored(t *testing.T) {
	t.Parallel()

	// The wire range is [0, channels] inclusive but the top value has
	// no bin; it must not panic or corrupt anything.
	s := New()
	s.AddCounts(Data, []int{10}, 10)
	if s.Total(Data) != 0 {
		t.Fatalf("expected top-of-range sample to be ignored, total=%d", s.Total(Data))
	}
}

func TestAddCounts_EmptySampleBatch(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddCounts(Background, nil, 8)
	if len(s.Background) != 8 || s.Total(Background) != 0 {
		t.Fatalf("empty batch should still allocate: %v", s.Background)
	}
}

func TestAddDeltas_AccumulatesRows(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddDeltas(Data, []int{1, 2, 3}, 3)
	s.AddDeltas(Data, []int{0, 1, 0}, 3)

	want := []int{1, 3, 3}
	for i := range want {
		if s.Data[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, s.Data)
		}
	}
}

func TestCPS_UsesLiveTime(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddCounts(Data, []int{0, 0, 1}, 2)
	s.AddLiveTime(Data, 2000)

	cps := s.CPS(Data)
	if math.Abs(cps[0]-1.0) > 1e-9 || math.Abs(cps[1]-0.5) > 1e-9 {
		t.Fatalf("unexpected cps: %v", cps)
	}
}

func TestCPS_ZeroLiveTime(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddCounts(Data, []int{0}, 2)
	cps := s.CPS(Data)
	for _, v := range cps {
		if v != 0 {
			t.Fatalf("expected zeros with no live time, got %v", cps)
		}
	}
}

func TestSubtracted_ClampsAtZero(t *testing.T) {
	t.Parallel()

	s := New()
	s.Data = []int{10, 2, 5}
	s.Background = []int{3, 4, 5}

	want := []int{7, 0, 0}
	got := s.Subtracted()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestClear_ResetsTargetAndLiveTime(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddCounts(Data, []int{1}, 4)
	s.AddLiveTime(Data, 500)
	s.AddCounts(Background, []int{2}, 4)

	s.Clear(Data)
	if len(s.Data) != 0 || s.DataTimeMs != 0 {
		t.Fatalf("data target not cleared: %v %d", s.Data, s.DataTimeMs)
	}
	if s.Total(Background) != 1 {
		t.Fatalf("background must survive a data clear")
	}
}

func TestPendingQueue_SaturatesAtCeiling(t *testing.T) {
	t.Parallel()

	q := NewPendingQueue(5, zerolog.Nop())

	if got := q.Push([]int{1, 2, 3}); got != 3 {
		t.Fatalf("expected 3 accepted, got %d", got)
	}
	// Only two slots left.
	if got := q.Push([]int{4, 5, 6, 7}); got != 2 {
		t.Fatalf("expected 2 accepted, got %d", got)
	}
	if !q.Saturated() {
		t.Fatalf("expected saturation")
	}
	if got := q.Push([]int{8}); got != 0 {
		t.Fatalf("saturated queue accepted a sample")
	}
	if q.Dropped() != 3 {
		t.Fatalf("expected 3 dropped, got %d", q.Dropped())
	}

	drained := q.Drain()
	if len(drained) != 5 || drained[0] != 1 || drained[4] != 5 {
		t.Fatalf("unexpected drain result: %v", drained)
	}
	if q.Saturated() || q.Len() != 0 {
		t.Fatalf("drain must clear saturation and contents")
	}

	// Accepts again after draining.
	if got := q.Push([]int{9}); got != 1 {
		t.Fatalf("expected queue to accept after drain, got %d", got)
	}
}
