package core

import "testing"

func TestSchedulerRunsDueTimers(t *testing.T) {
	clock := NewSystemClock()
	sched := NewScheduler(clock)

	fired := 0
	sched.After(10, func(tm *Timer) uint8 {
		fired++
		return SF_DONE
	})

	sched.Dispatch()
	if fired != 0 {
		t.Fatalf("timer fired before due, fired=%d", fired)
	}

	clock.Advance(10)
	sched.Dispatch()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if sched.Pending() {
		t.Fatalf("expected no pending timers after SF_DONE")
	}
}

func TestSchedulerReschedules(t *testing.T) {
	clock := NewSystemClock()
	sched := NewScheduler(clock)

	ticks := 0
	var tm *Timer
	tm = sched.After(5, func(t *Timer) uint8 {
		ticks++
		if ticks >= 3 {
			return SF_DONE
		}
		t.WakeTime += 5
		return SF_RESCHEDULE
	})
	_ = tm

	for i := 0; i < 3; i++ {
		clock.Advance(5)
		sched.Dispatch()
	}

	if ticks != 3 {
		t.Fatalf("ticks = %d, want 3", ticks)
	}
	if sched.Pending() {
		t.Fatalf("expected queue drained")
	}
}

func TestSchedulerOrdersByWakeTime(t *testing.T) {
	clock := NewSystemClock()
	sched := NewScheduler(clock)

	var order []int
	sched.After(20, func(t *Timer) uint8 { order = append(order, 2); return SF_DONE })
	sched.After(5, func(t *Timer) uint8 { order = append(order, 0); return SF_DONE })
	sched.After(10, func(t *Timer) uint8 { order = append(order, 1); return SF_DONE })

	clock.Advance(20)
	sched.Dispatch()

	want := []int{0, 1, 2}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
