package core

// Timer represents one scheduled event in a Scheduler's sorted queue.
type Timer struct {
	WakeTime uint64 // milliseconds, per Clock
	Handler  func(*Timer) uint8
	Next     *Timer
}

// Handler return codes, Klipper's sched_timer convention: a handler either
// declares itself finished or asks to run again at the WakeTime it wrote
// into the Timer before returning.
const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler is a single-threaded, sorted-linked-list timer queue. The
// firmware's main loop owns exactly one Scheduler and calls Dispatch once
// per outer iteration; there is no goroutine-per-timer, matching the
// single-threaded cooperative model the whole core runs under.
type Scheduler struct {
	clock     Clock
	timerList *Timer
}

// NewScheduler returns a Scheduler driven by the given Clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Schedule inserts a timer in WakeTime order. Disabling interrupts here
// guards against the serial receive ISR racing a concurrent insert; on
// the host build that guard is a no-op (see interrupt_go.go).
func (s *Scheduler) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	s.insert(t)
}

// After schedules handler to run once delayMillis from now, rescheduling
// itself automatically while it returns SF_RESCHEDULE.
func (s *Scheduler) After(delayMillis uint64, handler func(*Timer) uint8) *Timer {
	t := &Timer{
		WakeTime: s.clock.NowMillis() + delayMillis,
		Handler:  handler,
	}
	s.Schedule(t)
	return t
}

func (s *Scheduler) insert(t *Timer) {
	if s.timerList == nil || t.WakeTime < s.timerList.WakeTime {
		t.Next = s.timerList
		s.timerList = t
		return
	}
	cur := s.timerList
	for cur.Next != nil && cur.Next.WakeTime < t.WakeTime {
		cur = cur.Next
	}
	t.Next = cur.Next
	cur.Next = t
}

// Dispatch runs every timer whose WakeTime has passed, rescheduling those
// whose handler returns SF_RESCHEDULE after it updates t.WakeTime.
func (s *Scheduler) Dispatch() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	now := s.clock.NowMillis()
	for s.timerList != nil && s.timerList.WakeTime <= now {
		t := s.timerList
		s.timerList = t.Next
		t.Next = nil

		result := t.Handler(t)
		if result == SF_RESCHEDULE {
			s.insert(t)
		}
	}
}

// Pending reports whether any timer remains queued. Used by tests to
// drain a scheduler deterministically.
func (s *Scheduler) Pending() bool {
	return s.timerList != nil
}

// Cancel removes t from the queue if present.
func (s *Scheduler) Cancel(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.timerList == t {
		s.timerList = t.Next
		t.Next = nil
		return
	}
	cur := s.timerList
	for cur != nil && cur.Next != t {
		cur = cur.Next
	}
	if cur != nil {
		cur.Next = t.Next
		t.Next = nil
	}
}
