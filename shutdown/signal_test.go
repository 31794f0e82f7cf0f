package shutdown

import "testing"

func TestSignalCounter(t *testing.T) {
	forced := 0
	sc := NewSignalCounter(2, func() { forced++ })

	if n := sc.Increment(); n != 1 || forced != 0 {
		t.Errorf("after first signal: count=%d forced=%d", n, forced)
	}
	if n := sc.Increment(); n != 2 || forced != 1 {
		t.Errorf("after second signal: count=%d forced=%d", n, forced)
	}
	sc.Increment()
	if forced != 1 {
		t.Errorf("onForce ran %d times, want once", forced)
	}
	if sc.Count() != 3 {
		t.Errorf("Count() = %d, want 3", sc.Count())
	}
}

func TestSignalCounter_NilCallback(t *testing.T) {
	sc := NewSignalCounter(1, nil)
	sc.Increment()
	if sc.Count() != 1 {
		t.Errorf("Count() = %d, want 1", sc.Count())
	}
}
