package clock

import (
	"testing"
	"time"
)

func TestVirtualAdvance(t *testing.T) {
	v := NewVirtual()
	start := v.Now()

	var stepped time.Duration
	v.Subscribe(func(dt time.Duration) { stepped += dt })

	v.Sleep(10 * time.Millisecond)
	v.Sleep(15 * time.Millisecond)

	if got := Since(v, start); got != 25*time.Millisecond {
		t.Errorf("expected 25ms elapsed, got %v", got)
	}
	if stepped != 25*time.Millisecond {
		t.Errorf("expected subscriber to see 25ms, got %v", stepped)
	}
}

func TestVirtualIgnoresNonPositive(t *testing.T) {
	v := NewVirtual()
	start := v.Now()
	calls := 0
	v.Subscribe(func(time.Duration) { calls++ })

	v.Advance(0)
	v.Advance(-time.Second)

	if !v.Now().Equal(start) {
		t.Error("time moved on non-positive advance")
	}
	if calls != 0 {
		t.Errorf("expected no subscriber calls, got %d", calls)
	}
}
