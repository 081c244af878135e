package motor

import (
	"time"

	"rfmatch/hal"
)

// originTriggerBit and originOnIndexTriggerBit are the two bits of the
// 30-bit origin-set GPIO word: writing the position shifted left two
// bits, then the same value OR'd with the trigger bit, then clearing the
// trigger bit again, latches a new origin either immediately or on the
// next encoder index pulse.
const (
	originTriggerBit        = 0x1
	originOnIndexTriggerBit = 0x2
)

const (
	stallBit        = 0x80000000
	indexPosMask    = 0x7FFFFFFF
)

// Addresses are the memory-mapped registers one motor's GPIO channels
// expose: a write-side target-position/origin-trigger pair, a read-side
// position/RPM pair, and an optional extended pair carrying the encoder
// index position (with a stall flag in its top bit) and an override-RPM
// output used only during homing.
type Addresses struct {
	TargetPos   uintptr
	OriginCtrl  uintptr
	Pos         uintptr
	RPM         uintptr
	IndexStatus uintptr
	OverrideRPM uintptr
}

// Limits bounds the motor's absolute step range and the sub-range RunTo
// clamps ordinary moves to.
type Limits struct {
	Min, Max             int32
	LowerLimit, UpperLimit int32
}

// CapRange is the capacitance, in pF x100, the motor reaches at Min and Max
// steps respectively — the endpoints of the cubic/linear cap<->step fit.
type CapRange struct {
	MinCap, MaxCap int32 // pF x100
}

// FitCoeffs are the cubic fit coefficients cap = a3*x^3 + a2*x^2 + a1*x + a0
// over the normalized position x in [0,1]. All-zero means "not fitted",
// and callers fall back to a linear interpolation between CapRange's
// endpoints.
type FitCoeffs struct {
	A0, A1, A2, A3 float64
}

// IsFitted reports whether a cubic fit has been supplied.
func (f FitCoeffs) IsFitted() bool {
	return f.A0 != 0 || f.A1 != 0 || f.A2 != 0 || f.A3 != 0
}

// RewindResult reports the outcome of Rewind.
type RewindResult struct {
	Completed bool
	FinalPos  int32
	Movement  int32
}

// IndexSearchResult reports the outcome of FindIndex.
type IndexSearchResult struct {
	Found          bool
	IndexPos       int32
	MotorPosAtIndex int32
	FinalPos       int32
}

// Rewind tuning constants, exact values from the board's homing routine.
const (
	RewindTarget      int32 = -100000
	RewindPollInterval       = 10 * time.Millisecond
	RewindOffset      int32 = 1000
	RewindTimeout            = 25000 * time.Millisecond
	RewindThreshold   int32 = 15
	RewindStallCount         = 2
	RewindOverrideRPM uint32 = 30
)

// FindIndex tuning constants.
const (
	findIndexStuckThreshold = 2000
	findIndexStepsPerRev    = 6400
	findIndexFallbackTimeout = 30000 * time.Millisecond
)

// Motor owns one stepper's addressing, limits, and capacitance fit. It
// talks to position/RPM registers through hal.MMIO and to its DRV8711
// driver through a shared Link.
type Motor struct {
	addrs Addresses
	link  *Link
	spi   uint8

	posOffset int32
	limits    Limits
	caps      CapRange
	fit       FitCoeffs

	overrideRPM uint32
}

// New returns a motor bound to addrs and driven through link on the
// given SPI chip-select line (1 or 2).
func New(addrs Addresses, link *Link, spi uint8) *Motor {
	return &Motor{
		addrs: addrs,
		link:  link,
		spi:   spi,
		limits: Limits{
			Min: 0, Max: 64000,
			LowerLimit: 4000, UpperLimit: 60000,
		},
		caps: CapRange{MinCap: 0, MaxCap: 100000},
	}
}

// SetPosOffset sets the raw-to-reported position offset (applied by
// ReadPos, and by extension every move command that reports position).
func (m *Motor) SetPosOffset(offset int32) { m.posOffset = offset }

// SetLimits installs the motor's absolute and clamped-move ranges.
func (m *Motor) SetLimits(l Limits) { m.limits = l }

// Limits returns the current limits.
func (m *Motor) Limits() Limits { return m.limits }

// SetCapRange installs the capacitance endpoints used by Cap/StepOfCap.
func (m *Motor) SetCapRange(c CapRange) { m.caps = c }

// CapRange returns the current capacitance endpoints.
func (m *Motor) CapRange() CapRange { return m.caps }

// SetFitCoeffs installs the cubic cap<->step fit.
func (m *Motor) SetFitCoeffs(f FitCoeffs) { m.fit = f }

// FitCoeffs returns the current cubic fit.
func (m *Motor) FitCoeffs() FitCoeffs { return m.fit }

// ReadPosRaw reads the raw position register with no offset applied.
func (m *Motor) ReadPosRaw() int32 {
	return int32(hal.MustMMIO().ReadWord(m.addrs.Pos))
}

// ReadPos returns the raw position plus the configured offset.
func (m *Motor) ReadPos() int32 {
	return m.ReadPosRaw() + m.posOffset
}

// ReadRPM returns the motor's current speed register, signed (negative
// meaning reverse).
func (m *Motor) ReadRPM() int32 {
	return int32(hal.MustMMIO().ReadWord(m.addrs.RPM))
}

// ReadIndexPos reads the encoder index-position counter from the
// extended GPIO pair (lower 31 bits of IndexStatus).
func (m *Motor) ReadIndexPos() int32 {
	return int32(hal.MustMMIO().ReadWord(m.addrs.IndexStatus) & indexPosMask)
}

// IsStallDetected reports the stall flag (top bit of IndexStatus).
func (m *Motor) IsStallDetected() bool {
	return hal.MustMMIO().ReadWord(m.addrs.IndexStatus)&stallBit != 0
}

// SetOverrideRPM drives the homing-speed override register, used only
// while Rewind/FindIndex are running.
func (m *Motor) SetOverrideRPM(rpm uint32) {
	m.overrideRPM = rpm
	hal.MustMMIO().WriteWord(m.addrs.OverrideRPM, rpm)
}

// GetOverrideRPM returns the last value SetOverrideRPM wrote.
func (m *Motor) GetOverrideRPM() uint32 { return m.overrideRPM }

// RunTo clamps target into [LowerLimit, UpperLimit] before writing the
// target-position register, and returns the clamped value actually
// written.
func (m *Motor) RunTo(target int32) int32 {
	clamped := target
	if clamped < m.limits.LowerLimit {
		clamped = m.limits.LowerLimit
	}
	if clamped > m.limits.UpperLimit {
		clamped = m.limits.UpperLimit
	}
	hal.MustMMIO().WriteWord(m.addrs.TargetPos, uint32(clamped))
	return clamped
}

// RunToForce writes target to the target-position register with no
// clamping, used by homing and rewind which must legitimately move
// outside the ordinary operating range.
func (m *Motor) RunToForce(target int32) {
	hal.MustMMIO().WriteWord(m.addrs.TargetPos, uint32(target))
}

// SetOrigin latches pos as the new zero immediately: writes the target
// position first (so the motor does not jump when the origin moves),
// then pulses the 30-bit origin-trigger sequence.
func (m *Motor) SetOrigin(pos int32) {
	hal.MustMMIO().WriteWord(m.addrs.TargetPos, uint32(pos))
	m.triggerOrigin(pos, originTriggerBit)
}

// SetOriginOnIndex arms the origin to latch to pos on the next encoder
// index pulse, without moving the motor now — the target-position
// register is deliberately left untouched.
func (m *Motor) SetOriginOnIndex(pos int32) {
	m.triggerOrigin(pos, originOnIndexTriggerBit)
}

func (m *Motor) triggerOrigin(pos int32, triggerBit uint32) {
	mmio := hal.MustMMIO()
	base := uint32(pos) << 2
	mmio.WriteWord(m.addrs.OriginCtrl, base)
	hal.Sleep(200 * time.Microsecond)
	mmio.WriteWord(m.addrs.OriginCtrl, base|triggerBit)
	hal.Sleep(200 * time.Microsecond)
	mmio.WriteWord(m.addrs.OriginCtrl, base)
}

// PositionPercent returns the motor's position as a percentage of
// [Min, Max], clamped to [0, 100].
func (m *Motor) PositionPercent() int32 {
	span := m.limits.Max - m.limits.Min
	if span == 0 {
		return 0
	}
	pct := (m.ReadPos() - m.limits.Min) * 100 / span
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Cap returns the capacitance, in pF x100, at the motor's current
// position.
func (m *Motor) Cap() int32 {
	return m.CapAt(m.ReadPos())
}

// CapAt returns the capacitance, in pF x100, the cubic fit (or, absent
// one, a linear interpolation) predicts at step.
func (m *Motor) CapAt(step int32) int32 {
	span := m.limits.Max - m.limits.Min
	if span == 0 {
		return m.caps.MinCap
	}
	if !m.fit.IsFitted() {
		frac := float64(step-m.limits.Min) / float64(span)
		cap := float64(m.caps.MinCap) + frac*float64(m.caps.MaxCap-m.caps.MinCap)
		return int32(cap + 0.5)
	}
	x := float64(step-m.limits.Min) / float64(span)
	cap := m.fit.A3*x*x*x + m.fit.A2*x*x + m.fit.A1*x + m.fit.A0
	return int32(cap*100 + 0.5)
}

// newtonMaxIterations, newtonTolerancePF and newtonDerivFloor match the
// board's inverse-fit solver tuning.
const (
	newtonMaxIterations = 20
	newtonTolerancePF   = 0.1
	newtonDerivFloor    = 1e-10
)

// StepOfCap inverts CapAt: given a target capacitance (pF, not x100),
// returns the step that the cubic fit (via Newton-Raphson on the
// normalized position) or a linear fallback predicts reaches it, clamped
// to [LowerLimit, UpperLimit].
func (m *Motor) StepOfCap(targetCapPF float64) int32 {
	span := m.limits.Max - m.limits.Min
	if span == 0 {
		return m.limits.LowerLimit
	}
	xLower := float64(m.limits.LowerLimit-m.limits.Min) / float64(span)
	xUpper := float64(m.limits.UpperLimit-m.limits.Min) / float64(span)

	if !m.fit.IsFitted() {
		minCapPF := float64(m.caps.MinCap) / 100.0
		maxCapPF := float64(m.caps.MaxCap) / 100.0
		if maxCapPF == minCapPF {
			return m.limits.LowerLimit
		}
		frac := (targetCapPF - minCapPF) / (maxCapPF - minCapPF)
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		step := m.limits.Min + int32(frac*float64(span)+0.5)
		return clampInt32(step, m.limits.LowerLimit, m.limits.UpperLimit)
	}

	x := (xLower + xUpper) / 2.0
	a0, a1, a2, a3 := m.fit.A0, m.fit.A1, m.fit.A2, m.fit.A3
	for i := 0; i < newtonMaxIterations; i++ {
		f := a3*x*x*x + a2*x*x + a1*x + a0 - targetCapPF
		if f < newtonTolerancePF && f > -newtonTolerancePF {
			break
		}
		deriv := 3*a3*x*x + 2*a2*x + a1
		if deriv < newtonDerivFloor && deriv > -newtonDerivFloor {
			break
		}
		x = x - f/deriv
		if x < xLower {
			x = xLower
		}
		if x > xUpper {
			x = xUpper
		}
	}
	step := m.limits.Min + int32(x*float64(span)+0.5)
	return clampInt32(step, m.limits.LowerLimit, m.limits.UpperLimit)
}

func clampInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Rewind drives the motor toward RewindTarget at RewindOverrideRPM until
// its position stops decreasing (stalled against the physical limit) or
// RewindTimeout elapses, then backs off by RewindOffset so the stop
// position has clearance from the hard limit.
func (m *Motor) Rewind() RewindResult {
	startPos := m.ReadPos()

	m.SetOverrideRPM(RewindOverrideRPM)
	hal.Sleep(10 * time.Millisecond)
	m.RunToForce(RewindTarget)
	hal.Sleep(50 * time.Millisecond)

	prevPos := m.ReadPos()
	var stallCount int
	completed := false
	finalPos := prevPos

	deadline := RewindTimeout
	elapsed := time.Duration(0)
	for elapsed < deadline {
		hal.Sleep(RewindPollInterval)
		elapsed += RewindPollInterval

		currentPos := m.ReadPos()
		diff := prevPos - currentPos
		if diff < RewindThreshold {
			stallCount++
		} else {
			stallCount = 0
		}
		prevPos = currentPos

		if stallCount >= RewindStallCount {
			stopPos := currentPos + RewindOffset
			m.RunToForce(stopPos)
			completed = true
			finalPos = stopPos
			break
		}
	}
	if !completed {
		finalPos = prevPos
	}

	hal.Sleep(100 * time.Millisecond)
	m.SetOverrideRPM(0)

	movement := startPos - finalPos
	if movement < 0 {
		movement = -movement
	}
	return RewindResult{Completed: completed, FinalPos: finalPos, Movement: movement}
}

// FindIndex forces a move toward targetPos at rpm and watches the
// encoder index-position counter for its first change, which marks the
// index pulse. It gives up after findIndexStuckThreshold consecutive
// polls see no motor movement, after the RPM register reads zero twice
// 50ms apart, or after a distance/speed-derived timeout elapses.
func (m *Motor) FindIndex(targetPos int32, rpm uint32, pollInterval time.Duration) IndexSearchResult {
	if pollInterval <= 0 {
		pollInterval = time.Millisecond
	}

	m.SetOverrideRPM(rpm)
	startIndexPos := m.ReadIndexPos()
	startPos := m.ReadPos()
	m.RunToForce(targetPos)

	distance := targetPos - startPos
	if distance < 0 {
		distance = -distance
	}
	timeout := findIndexFallbackTimeout
	if rpm > 0 {
		stepsPerSec := float64(rpm) * float64(findIndexStepsPerRev) / 60.0
		if stepsPerSec > 0 {
			timeout = time.Duration(float64(distance)/stepsPerSec*2*1000+5000) * time.Millisecond
		}
	}

	var result IndexSearchResult
	var stuckCount int
	var lastPos int32 = startPos
	var zeroRPMCount int
	elapsed := time.Duration(0)

	for elapsed < timeout {
		hal.Sleep(pollInterval)
		elapsed += pollInterval

		indexPos := m.ReadIndexPos()
		currentPos := m.ReadPos()
		currentRPM := m.ReadRPM()

		if !result.Found && indexPos != startIndexPos {
			result.Found = true
			result.IndexPos = indexPos
			result.MotorPosAtIndex = currentPos
			break
		}
		if currentPos == targetPos {
			break
		}
		if currentPos == lastPos {
			stuckCount++
			if stuckCount >= findIndexStuckThreshold {
				break
			}
		} else {
			stuckCount = 0
		}
		lastPos = currentPos

		if currentRPM == 0 {
			zeroRPMCount++
			if zeroRPMCount >= 2 {
				break
			}
			hal.Sleep(50 * time.Millisecond)
		} else {
			zeroRPMCount = 0
		}
	}

	result.FinalPos = m.ReadPos()
	m.SetOverrideRPM(0)
	return result
}

// indexSearchTarget is how far past the first expected index pulse
// InitByIndex aims the search move (one full revolution of margin over
// findIndexStepsPerRev + a safety allowance, matching the board's fixed
// search target).
const indexSearchTarget int32 = 15000

// InitByIndex runs the board's full index-based homing sequence: rewind
// to the physical limit, arm origin-on-index at savedIndexPos (the FPGA
// latches the origin itself once it sees the next index pulse), then
// move toward indexSearchTarget until that pulse is observed.
func (m *Motor) InitByIndex(savedIndexPos int32) (RewindResult, IndexSearchResult, bool) {
	rewindResult := m.Rewind()

	m.SetOriginOnIndex(savedIndexPos)
	hal.Sleep(10 * time.Millisecond)

	indexResult := m.FindIndex(indexSearchTarget, RewindOverrideRPM, time.Millisecond)
	hal.Sleep(10 * time.Millisecond)

	return rewindResult, indexResult, indexResult.Found
}

// SetDriverConfig pushes cfg to this motor's DRV8711 driver.
func (m *Motor) SetDriverConfig(cfg DriverConfig) error {
	return m.link.InitDriver(m.spi, cfg)
}

// SetSleep puts this motor's driver to sleep or wakes it.
func (m *Motor) SetSleep(asleep bool) error {
	return m.link.SetSleep(m.spi, asleep)
}

// HardwareReset cycles this motor's driver reset line and reapplies cfg.
func (m *Motor) HardwareReset(cfg DriverConfig) error {
	return m.link.HardwareReset(m.spi, cfg)
}

// DriverStatus reads back all eight DRV8711 registers.
func (m *Motor) DriverStatus() ([8]uint16, error) {
	return m.link.GetStatus(m.spi)
}
