// Package ams implements the Auto-Match State Machine: a monitor/match
// tick run from the shared loop clock that samples both RF sensors,
// checks VSWR against configured thresholds, and commands both motors
// toward a computed matching goal when the load has drifted out of
// tolerance.
//
// Grounded in the original firmware's DebugMode AMS block (the same
// monitor<->match transition logic, timeout/interval/log-interval
// bookkeeping, and the output-sensor fallback gated on VSWR > 2).
package ams

import (
	"fmt"

	"rfmatch/core"
	"rfmatch/diag"
	"rfmatch/matching"
	"rfmatch/motor"
	"rfmatch/sensor"
)

// Mode is the AMS's current behaviour for a tick.
type Mode int

const (
	Monitoring Mode = iota
	Matching
)

func (m Mode) String() string {
	if m == Matching {
		return "MATCHING"
	}
	return "MONITORING"
}

// Thresholds are the three VSWR values that gate AMS transitions.
// Start is not consulted by Tick or by any shell handler; it lives
// alongside Stop/Restart since all three are set, persisted and reported
// together (asv/agv).
type Thresholds struct {
	Start   float64
	Stop    float64
	Restart float64
}

// DefaultThresholds matches the board's factory VSWR settings.
func DefaultThresholds() Thresholds {
	return Thresholds{Start: 1.04, Stop: 1.02, Restart: 1.04}
}

// outputFallbackVSWR is the VSWR above which Tick feeds the output
// sensor's reading into the matching solve's backward ZC path.
const outputFallbackVSWR = 2.0

// State is the AMS's persisted-for-the-session bookkeeping. It lives
// only while the device is in interactive shell mode; a mode-pin toggle
// resets it (the caller constructs a fresh Engine).
type State struct {
	Enabled      bool
	Mode         Mode
	StartTime    uint64
	LastTickTime uint64
	LogCounter   int
	Verbose      bool
}

// Engine owns one board's AMS loop.
type Engine struct {
	clock  core.Clock
	input  *sensor.Sensor
	output *sensor.Sensor
	m1, m2 *motor.Motor
	alg    *matching.Algorithm
	sink   diag.Sink

	state       State
	interval    uint64
	timeout     uint64
	logInterval int
	thresholds  Thresholds
}

// New returns a disabled AMS engine bound to the given sensors, motors,
// matching algorithm, and output sink.
func New(clock core.Clock, input, output *sensor.Sensor, m1, m2 *motor.Motor, alg *matching.Algorithm, sink diag.Sink) *Engine {
	return &Engine{
		clock:       clock,
		input:       input,
		output:      output,
		m1:          m1,
		m2:          m2,
		alg:         alg,
		sink:        sink,
		thresholds:  DefaultThresholds(),
		interval:    10,
		logInterval: 10,
	}
}

// SetThresholds installs the VSWR thresholds that gate Tick's decisions.
func (e *Engine) SetThresholds(t Thresholds) { e.thresholds = t }

// Thresholds returns the current VSWR thresholds.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Enabled reports whether the AMS loop is currently running.
func (e *Engine) Enabled() bool { return e.state.Enabled }

// SetVerbose toggles the AMSD diagnostic line emitted every logInterval
// ticks. It has no effect on the AMS,MATCHED/RESTART/TIMEOUT protocol
// lines, which fire whenever their condition occurs, or on AMS,RUN,
// which fires on every logInterval-th tick that commands the motors.
func (e *Engine) SetVerbose(v bool) { e.state.Verbose = v }

// Verbose reports whether the AMSD diagnostic line is currently enabled.
func (e *Engine) Verbose() bool { return e.state.Verbose }

// Mode returns the current monitor/match mode.
func (e *Engine) Mode() Mode { return e.state.Mode }

// Start enables the AMS loop in Matching mode. interval and timeout are
// milliseconds (timeout of 0 means no timeout); logInterval is a count of
// ticks between log lines.
func (e *Engine) Start(interval, timeout uint64, logInterval int) {
	if interval == 0 {
		interval = 10
	}
	if logInterval <= 0 {
		logInterval = 10
	}
	now := e.clock.NowMillis()
	e.state = State{
		Enabled:      true,
		Mode:         Matching,
		StartTime:    now,
		LastTickTime: now,
		LogCounter:   0,
		Verbose:      e.state.Verbose,
	}
	e.interval = interval
	e.timeout = timeout
	e.logInterval = logInterval
}

// Stop disables the AMS loop. There is no preemption mid-tick; calling
// Stop between Tick calls is always safe.
func (e *Engine) Stop() {
	e.state.Enabled = false
}

// Tick runs one AMS iteration. It is a no-op if the engine is disabled or
// if less than the configured interval has passed since the last tick.
// Once a non-zero timeout has elapsed since Start, it disables the engine
// and emits AMS,TIMEOUT and ACK,ams,TIMEOUT instead.
func (e *Engine) Tick() {
	if !e.state.Enabled {
		return
	}
	now := e.clock.NowMillis()

	if e.timeout > 0 && now-e.state.StartTime >= e.timeout {
		elapsed := now - e.state.StartTime
		e.state.Enabled = false
		e.sink.Emit(fmt.Sprintf("AMS,TIMEOUT,%d,EN", elapsed))
		e.sink.Emit("ACK,ams,TIMEOUT")
		return
	}

	if now-e.state.LastTickTime < e.interval {
		return
	}
	e.state.LastTickTime = now
	e.state.LogCounter++
	countDue := e.state.LogCounter >= e.logInterval
	if countDue {
		e.state.LogCounter = 0
	}
	shouldLog := e.state.Verbose && countDue

	inSample := e.input.Sample(-1)
	outSample := e.output.Sample(-1)
	vswr := matching.VSWR(inSample.R, inSample.X)

	if shouldLog {
		e.sink.Emit(fmt.Sprintf("AMSD,%s,%s,EN", e.state.Mode, diag.FormatFixed6(vswr)))
	}

	switch e.state.Mode {
	case Matching:
		e.tickMatching(inSample, outSample, vswr, countDue)
	case Monitoring:
		if vswr >= e.thresholds.Restart {
			e.state.Mode = Matching
			e.sink.Emit(fmt.Sprintf("AMS,RESTART,%s,EN", diag.FormatFixed6(vswr)))
		}
	}
}

func (e *Engine) tickMatching(inSample, outSample sensor.Sample, vswr float64, countDue bool) {
	if vswr <= e.thresholds.Stop {
		e.state.Mode = Monitoring
		e.sink.Emit(fmt.Sprintf("AMS,MATCHED,%s,EN", diag.FormatFixed6(vswr)))
		return
	}

	vvc0PF := float64(e.m1.Cap()) / 100.0
	vvc1PF := float64(e.m2.Cap()) / 100.0

	out := matching.OutputSensorInput{}
	if vswr > outputFallbackVSWR {
		out = matching.OutputSensorInput{Rpm: outSample.R, Xpm: outSample.X, UseOutputForRC: true}
	}

	goals := e.alg.CalculateMatchingGoals(inSample.R, inSample.X, vvc0PF, vvc1PF, out)

	goal, ok := e.selectGoal(goals)
	if !ok {
		e.sink.Emit("ACK,ams,NOGOAL")
		return
	}

	m1Step := e.m1.StepOfCap(goal.vvc0)
	m2Step := e.m2.StepOfCap(goal.vvc1)

	e.m1.RunTo(m1Step)
	e.m2.RunTo(m2Step)

	if countDue {
		e.sink.Emit(fmt.Sprintf("AMS,RUN,%d,%s,%d,%d,EN", goal.idx, diag.FormatFixed6(vswr), m1Step, m2Step))
	}
}

type selectedGoal struct {
	idx        int
	vvc0, vvc1 float64
}

// selectGoal picks the first valid goal (goal0, then goal1) whose
// capacitances both lie within each motor's configured [minCap, maxCap]
// range — picking an out-of-window goal would command a motor to a step
// StepOfCap then silently clamps, which is never what "valid" means here.
func (e *Engine) selectGoal(goals matching.MatchingGoals) (selectedGoal, bool) {
	if goals.Valid0 && e.withinCapRange(goals.VVC0Goal0, e.m1) && e.withinCapRange(goals.VVC1Goal0, e.m2) {
		return selectedGoal{idx: 0, vvc0: goals.VVC0Goal0, vvc1: goals.VVC1Goal0}, true
	}
	if goals.Valid1 && e.withinCapRange(goals.VVC0Goal1, e.m1) && e.withinCapRange(goals.VVC1Goal1, e.m2) {
		return selectedGoal{idx: 1, vvc0: goals.VVC0Goal1, vvc1: goals.VVC1Goal1}, true
	}
	return selectedGoal{}, false
}

func (e *Engine) withinCapRange(capPF float64, m *motor.Motor) bool {
	r := m.CapRange()
	minPF := float64(r.MinCap) / 100.0
	maxPF := float64(r.MaxCap) / 100.0
	return capPF >= minPF && capPF <= maxPF
}
