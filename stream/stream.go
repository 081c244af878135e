// Package stream implements the three independent rate-gated emitters
// that push live sensor and motor state to the host while the device is
// in interactive shell mode: impedance per sensor, V/I magnitude per
// sensor, and both motor positions with their derived capacitance.
//
// Grounded in the original firmware's streaming block (the same
// per-stream last-emission timestamp and independent interval check,
// one stream never waiting on another).
package stream

import (
	"fmt"

	"rfmatch/core"
	"rfmatch/diag"
	"rfmatch/motor"
	"rfmatch/sensor"
)

// Rates are the three stream intervals, in milliseconds.
type Rates struct {
	Impedance  uint64
	VI         uint64
	MotorPos   uint64
}

// DefaultRates matches the board's factory stream settings.
func DefaultRates() Rates {
	return Rates{Impedance: 100, VI: 100, MotorPos: 100}
}

// Engine owns the three streams for one board. It is disabled by
// default; the shell's stream run/stop opcodes enable it while any of
// them is running (see shell.Session.applyStreamState).
type Engine struct {
	clock core.Clock
	sink  diag.Sink

	input, output *sensor.Sensor
	m1, m2        *motor.Motor

	enabled bool
	rates   Rates

	lastImpedance uint64
	lastVI        uint64
	lastMotorPos  uint64
}

// New returns a disabled stream engine.
func New(clock core.Clock, input, output *sensor.Sensor, m1, m2 *motor.Motor, sink diag.Sink) *Engine {
	return &Engine{
		clock:  clock,
		sink:   sink,
		input:  input,
		output: output,
		m1:     m1,
		m2:     m2,
		rates:  DefaultRates(),
	}
}

// SetRates installs the three stream intervals.
func (e *Engine) SetRates(r Rates) { e.rates = r }

// Rates returns the current stream intervals.
func (e *Engine) Rates() Rates { return e.rates }

// Enable turns all three streams on and resets their emission clocks to
// now, so enabling does not immediately fire every stream at once on an
// arbitrary stale timestamp.
func (e *Engine) Enable() {
	now := e.clock.NowMillis()
	e.enabled = true
	e.lastImpedance = now
	e.lastVI = now
	e.lastMotorPos = now
}

// Disable turns all three streams off.
func (e *Engine) Disable() { e.enabled = false }

// Enabled reports whether streaming is currently on.
func (e *Engine) Enabled() bool { return e.enabled }

// Tick checks each stream's interval independently and emits whichever
// are due.
func (e *Engine) Tick() {
	if !e.enabled {
		return
	}
	now := e.clock.NowMillis()

	if now-e.lastImpedance >= e.rates.Impedance {
		e.emitImpedance()
		e.lastImpedance = now
	}
	if now-e.lastVI >= e.rates.VI {
		e.emitVI()
		e.lastVI = now
	}
	if now-e.lastMotorPos >= e.rates.MotorPos {
		e.emitMotorPos()
		e.lastMotorPos = now
	}
}

func (e *Engine) emitImpedance() {
	e.emitOneImpedance("ZI", e.input)
	e.emitOneImpedance("ZO", e.output)
}

func (e *Engine) emitOneImpedance(opcode string, s *sensor.Sensor) {
	if s == nil {
		return
	}
	sample := s.Sample(-1)
	e.sink.Emit(fmt.Sprintf("%s,%s,%s,%s,%s,%s,EN", opcode,
		diag.FormatFixed6(sample.R), diag.FormatFixed6(sample.X),
		diag.FormatFixed6(sample.VMag), diag.FormatFixed6(sample.IMag),
		diag.FormatFixed6(sample.PhaseDeg)))
}

func (e *Engine) emitVI() {
	e.emitOneVI("VI", e.input)
	e.emitOneVI("VO", e.output)
}

func (e *Engine) emitOneVI(opcode string, s *sensor.Sensor) {
	if s == nil {
		return
	}
	sample := s.Sample(-1)
	e.sink.Emit(fmt.Sprintf("%s,%s,%s,EN", opcode,
		diag.FormatFixed6(sample.VMag), diag.FormatFixed6(sample.IMag)))
}

func (e *Engine) emitMotorPos() {
	if e.m1 == nil || e.m2 == nil {
		return
	}
	e.sink.Emit(fmt.Sprintf("MPB,%d,%d,%d,%d,%d,%d,EN",
		e.m1.ReadPos(), e.m1.PositionPercent(), e.m1.Cap(),
		e.m2.ReadPos(), e.m2.PositionPercent(), e.m2.Cap()))
}
