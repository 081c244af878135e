// Package core carries the teacher firmware's cooperative scheduling
// primitives: a single monotonic clock and a sorted timer queue driving
// one outer loop. Nothing in this package knows about RF sensors, motors
// or FRAM — it is the same ambient substrate the shell tick, the AMS tick
// and the stream engine's tick all run on.
package core

import "sync/atomic"

// Clock is the single monotonic time source every component reads
// instead of the teacher's original loop-iteration counter. It resolves
// Open Question (a): the shell loop and the AMS bookkeeping previously
// advanced two independently-scaled counters; both now read the same
// clock in milliseconds.
type Clock interface {
	// NowMillis returns a monotonically non-decreasing millisecond value.
	// Its zero point is unspecified; only differences are meaningful.
	NowMillis() uint64
}

// SystemClock is an atomic millisecond counter. Production main loops
// drive it from a real time source by calling Advance (cmd/matcherfw with
// the wall time elapsed between stdin lines, the rp2350 target with the
// hardware timer polled on every main loop pass); tests drive it directly
// to simulate elapsed time without sleeping.
type SystemClock struct {
	millis uint64 // atomic
}

// NewSystemClock returns a Clock starting at millisecond 0.
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) NowMillis() uint64 {
	return atomic.LoadUint64(&c.millis)
}

// Advance moves the clock forward by delta milliseconds. Production code
// on the host build calls it once per input line with the wall time
// elapsed since the previous line (see cmd/matcherfw); tests drive it
// directly to simulate elapsed time without sleeping.
func (c *SystemClock) Advance(delta uint64) {
	atomic.AddUint64(&c.millis, delta)
}

// Set pins the clock to an absolute value, useful for constructing a
// reproducible starting point in tests.
func (c *SystemClock) Set(millis uint64) {
	atomic.StoreUint64(&c.millis, millis)
}
