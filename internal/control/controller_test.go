package control

import (
	"testing"
	"time"
)

func TestController_SteadyByDefault(t *testing.T) {
	c := NewController(8)
	now := time.Unix(1700000000, 0)

	rec := c.Evaluate(now, 80, 100000, 0, 0, 4)
	if rec.Threads != 4 || rec.Reason != "steady" {
		t.Errorf("rec = %+v, want steady at 4 threads", rec)
	}
}

// Rule 1: sustained CPU saturation plus elevated rejects recommends one
// fewer thread, down to the floor of 1.
func TestController_DecreaseOnSaturation(t *testing.T) {
	c := NewController(8)
	now := time.Unix(1700000000, 0)

	// First saturated window: only one high-CPU observation, no change.
	rec := c.Evaluate(now, 97, 100000, 90, 10, 4)
	if rec.Threads != 4 {
		t.Errorf("after one window: threads = %d, want 4", rec.Threads)
	}

	// Second consecutive saturated window with >5% rejects in the window.
	rec = c.Evaluate(now.Add(EvaluateInterval), 98, 100000, 180, 20, 4)
	if rec.Threads != 3 {
		t.Errorf("after two windows: threads = %d, want 3", rec.Threads)
	}

	// Never below the floor.
	c2 := NewController(8)
	c2.Evaluate(now, 97, 1000, 90, 10, 1)
	rec = c2.Evaluate(now.Add(EvaluateInterval), 98, 1000, 180, 20, 1)
	if rec.Threads != 1 {
		t.Errorf("threads = %d, want floor of 1", rec.Threads)
	}
}

// Rule 2: CPU headroom, clean shares and improving efficiency recommends
// one more thread, up to the cap.
func TestController_IncreaseOnHeadroom(t *testing.T) {
	c := NewController(8)
	now := time.Unix(1700000000, 0)

	// Seed the EWMA with a modest efficiency.
	c.Evaluate(now, 60, 50000, 10, 0, 4)

	// Efficiency improves, CPU below 70, no rejects.
	rec := c.Evaluate(now.Add(EvaluateInterval), 60, 90000, 20, 0, 4)
	if rec.Threads != 5 {
		t.Errorf("threads = %d, want 5 (%s)", rec.Threads, rec.Reason)
	}

	// At the cap, stay put.
	c2 := NewController(4)
	c2.Evaluate(now, 60, 50000, 10, 0, 4)
	rec = c2.Evaluate(now.Add(EvaluateInterval), 60, 90000, 20, 0, 4)
	if rec.Threads != 4 {
		t.Errorf("threads = %d, want cap of 4", rec.Threads)
	}
}

// A saturation streak is broken by a normal window.
func TestController_SaturationStreakResets(t *testing.T) {
	c := NewController(8)
	now := time.Unix(1700000000, 0)

	c.Evaluate(now, 97, 100000, 90, 10, 4)
	c.Evaluate(now.Add(EvaluateInterval), 80, 100000, 180, 20, 4)
	rec := c.Evaluate(now.Add(2*EvaluateInterval), 98, 100000, 270, 30, 4)
	if rec.Threads != 4 {
		t.Errorf("threads = %d, want 4 (streak was broken)", rec.Threads)
	}
}

func TestController_Latest(t *testing.T) {
	c := NewController(8)
	now := time.Unix(1700000000, 0)

	want := c.Evaluate(now, 50, 1000, 0, 0, 2)
	if got := c.Latest(); got != want {
		t.Errorf("Latest() = %+v, want %+v", got, want)
	}
}
