package cdf

import "testing"

func TestThresholdTableLoads(t *testing.T) {
	a, err := NewMinNumberComparisonsAssessor(0)
	if err != nil {
		t.Fatalf("failed to load embedded table: %v", err)
	}
	if len(a.rows) == 0 {
		t.Fatal("expected non-empty table")
	}
}

func TestThresholdNonIncreasing(t *testing.T) {
	a, err := NewMinNumberComparisonsAssessor(0)
	if err != nil {
		t.Fatal(err)
	}

	prev := a.Threshold(0)
	for _, n := range []int{1, 10, 99, 100, 1000, 9999, 10000, 100000, 20000000} {
		cur := a.Threshold(n)
		if cur > prev {
			t.Errorf("threshold increased at n=%d: %f > %f", n, cur, prev)
		}
		prev = cur
	}
}

func TestMinComparisonsFloor(t *testing.T) {
	a, err := NewMinNumberComparisonsAssessor(10000)
	if err != nil {
		t.Fatal(err)
	}

	// below the floor, every count uses the floor's threshold
	floor := a.Threshold(10000)
	for _, n := range []int{0, 1, 500, 9999} {
		if got := a.Threshold(n); got != floor {
			t.Errorf("Threshold(%d) = %f, expected floor threshold %f", n, got, floor)
		}
	}

	// above the floor, the actual count applies
	if a.Threshold(1000000) >= floor {
		t.Error("expected a lower threshold well above the floor")
	}
}

func TestExactBreakpointTakesPrecedence(t *testing.T) {
	a, err := NewMinNumberComparisonsAssessor(0)
	if err != nil {
		t.Fatal(err)
	}

	// n sitting exactly on a breakpoint uses that row, not the previous one
	if a.Threshold(1000) != a.Threshold(1001) {
		t.Error("n=1000 and n=1001 should share the 1000-row threshold")
	}
	if a.Threshold(999) == a.Threshold(1000) {
		t.Error("n=999 should use the 500-row threshold, not the 1000-row one")
	}
}
