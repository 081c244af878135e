// Package sensor implements the RF sensor: windowed averaging over complex
// FFT bins written continuously by a memory-mapped DSP fabric, with
// hold/release synchronisation and calibration applied on the way out.
//
// Grounded in the original firmware's RFSensor (calculateAveragedImpedance);
// the SPI/relay/ADC bring-up methods of that source are out of scope here —
// this package only ever talks to the fabric through hal.MMIO.
package sensor

import (
	"math"

	"rfmatch/hal"
)

// BinCount is the FFT bin array length (N in spec terms).
const BinCount = 1024

const wordSize = 4

// holdPollRetries bounds how long Sample waits for the fabric to
// acknowledge a hold request before giving up and returning a zero sample.
const holdPollRetries = 100

const holdAckBit = 0x80000000
const writeIndexMask = 0x7FFFFFFF

// magnitudeFloor guards against dividing by a near-zero accumulated
// magnitude squared.
const magnitudeFloor = 1e-12

// Addresses are the four memory-mapped bin arrays plus the hold/status
// registers for one sensor instance.
type Addresses struct {
	VRe, VIm, IRe, IIm uintptr
	Hold               uintptr
	Status             uintptr
}

// Calibration is the multiplicative/additive correction applied to a raw
// reading. PhaseOffsetRad is subtracted from the raw phase.
type Calibration struct {
	VGain, IGain   float64
	PhaseOffsetRad float64
}

// Sample is one atomically-produced impedance reading.
type Sample struct {
	R, X      float64
	VMag, IMag float64
	PhaseDeg  float64
}

// Sensor owns one RF sensor's bin arrays, hold/status registers, and
// calibration state.
type Sensor struct {
	addrs Addresses
	n     int
	cal   Calibration

	avgCount int

	lastDebugged    Sample
	haveLastDebugged bool
}

// New returns a sensor bound to addrs with the default averaging count
// (512, matching the source) and unity calibration.
func New(addrs Addresses) *Sensor {
	return &Sensor{
		addrs:    addrs,
		n:        BinCount,
		cal:      Calibration{VGain: 1.0, IGain: 1.0},
		avgCount: 512,
	}
}

// SetVoltageGain sets the voltage-channel multiplicative gain.
func (s *Sensor) SetVoltageGain(gain float64) { s.cal.VGain = gain }

// SetCurrentGain sets the current-channel multiplicative gain.
func (s *Sensor) SetCurrentGain(gain float64) { s.cal.IGain = gain }

// SetPhaseDiffRad sets the phase offset in radians.
func (s *Sensor) SetPhaseDiffRad(rad float64) { s.cal.PhaseOffsetRad = rad }

// SetPhaseDiffDeg sets the phase offset in degrees.
func (s *Sensor) SetPhaseDiffDeg(deg float64) {
	s.cal.PhaseOffsetRad = deg * (math.Pi / 180.0)
}

// VoltageGain, CurrentGain, PhaseDiffRad, PhaseDiffDeg read back calibration.
func (s *Sensor) VoltageGain() float64   { return s.cal.VGain }
func (s *Sensor) CurrentGain() float64   { return s.cal.IGain }
func (s *Sensor) PhaseDiffRad() float64  { return s.cal.PhaseOffsetRad }
func (s *Sensor) PhaseDiffDeg() float64  { return s.cal.PhaseOffsetRad * (180.0 / math.Pi) }

// SetAveragingCount clamps count to [1, BinCount] and stores it as the
// default window for future Sample(-1) calls.
func (s *Sensor) SetAveragingCount(count int) {
	if count <= 0 {
		count = 1
	}
	if count > s.n {
		count = s.n
	}
	s.avgCount = count
}

// GetAveragingCount returns the currently configured averaging window.
func (s *Sensor) GetAveragingCount() int { return s.avgCount }

// Reset restores default calibration and averaging count.
func (s *Sensor) Reset() {
	s.cal = Calibration{VGain: 1.0, IGain: 1.0}
	s.avgCount = 512
	s.haveLastDebugged = false
}

// Sample runs the hold/average/release cycle once. avgCount of -1 uses the
// sensor's configured default.
func (s *Sensor) Sample(avgCount int) Sample {
	mmio := hal.MustMMIO()

	if avgCount == -1 {
		avgCount = s.avgCount
	}
	k := avgCount
	if k <= 0 {
		k = 1
	}
	if k > s.n {
		k = s.n
	}

	mmio.WriteWord(s.addrs.Hold, 1)

	var writeIndex uint32
	holdOK := false
	for try := 0; try < holdPollRetries; try++ {
		status := mmio.ReadWord(s.addrs.Status)
		if status&holdAckBit != 0 {
			writeIndex = status & writeIndexMask
			holdOK = true
			break
		}
	}
	if !holdOK {
		mmio.WriteWord(s.addrs.Hold, 0)
		return Sample{}
	}

	start := (int(writeIndex) - k + s.n) % s.n

	var sumVV, sumII, sumXr, sumXi float64
	for j := 0; j < k; j++ {
		idx := (start + j) % s.n
		off := uintptr(idx * wordSize)

		vRe := float64(mmio.ReadFloat32(s.addrs.VRe + off))
		vIm := float64(mmio.ReadFloat32(s.addrs.VIm + off))
		iRe := float64(mmio.ReadFloat32(s.addrs.IRe + off))
		iIm := float64(mmio.ReadFloat32(s.addrs.IIm + off))

		sumVV += vRe*vRe + vIm*vIm
		sumII += iRe*iRe + iIm*iIm
		sumXr += vRe*iRe + vIm*iIm
		sumXi += vIm*iRe - vRe*iIm
	}

	mmio.WriteWord(s.addrs.Hold, 0)

	invK := 1.0 / float64(k)
	aVV := sumVV * invK
	aII := sumII * invK
	aXr := sumXr * invK
	aXi := sumXi * invK

	gv := s.cal.VGain
	gi := s.cal.IGain

	denom := aII * gi * gi
	if denom < magnitudeFloor {
		denom = magnitudeFloor
	}
	zMagSq := (aVV * gv * gv) / denom
	zMag := math.Sqrt(zMagSq)

	phase := math.Atan2(aXi*gv*gi, aXr*gv*gi) - s.cal.PhaseOffsetRad
	phaseDeg := phase * (180.0 / math.Pi)
	phaseRad := phaseDeg * (math.Pi / 180.0)

	result := Sample{
		R:        zMag * math.Cos(phaseRad),
		X:        zMag * math.Sin(phaseRad),
		VMag:     math.Sqrt(aVV) * (1.0 / float64(s.n)) * gv,
		IMag:     math.Sqrt(aII) * (1.0 / float64(s.n)) * gi,
		PhaseDeg: phaseDeg,
	}

	s.lastDebugged = result
	s.haveLastDebugged = true

	return result
}

// LastDebugged returns the most recent sample recorded for verbose logging
// (the source's lastDebuggedSensor statics, now a per-instance field), and
// whether a sample has been taken yet.
func (s *Sensor) LastDebugged() (Sample, bool) {
	return s.lastDebugged, s.haveLastDebugged
}

// ReadFftMagnitudes fills out (length BinCount) with the voltage channel's
// normalised FFT magnitude, used by the rf/FI/FO one-shot dump opcodes.
// It does not hold/release — the caller is expected to have already put
// the fabric in the appropriate mode.
func (s *Sensor) ReadFftMagnitudes(out []float64) {
	mmio := hal.MustMMIO()
	scale := 1.0 / float64(s.n)
	for idx := 0; idx < s.n && idx < len(out); idx++ {
		off := uintptr(idx * wordSize)
		re := float64(mmio.ReadFloat32(s.addrs.VRe + off))
		im := float64(mmio.ReadFloat32(s.addrs.VIm + off))
		mag := math.Sqrt(re*re+im*im) * scale
		if math.IsNaN(mag) || mag >= 1e38 {
			mag = 0
		}
		out[idx] = mag
	}
}

// ReadFftMagnitudesCurrent fills out with the current channel's normalised
// FFT magnitude, used by the rf/CI/CO one-shot dump opcodes. Sibling of
// ReadFftMagnitudes, reading IRe/IIm instead of VRe/VIm.
func (s *Sensor) ReadFftMagnitudesCurrent(out []float64) {
	mmio := hal.MustMMIO()
	scale := 1.0 / float64(s.n)
	for idx := 0; idx < s.n && idx < len(out); idx++ {
		off := uintptr(idx * wordSize)
		re := float64(mmio.ReadFloat32(s.addrs.IRe + off))
		im := float64(mmio.ReadFloat32(s.addrs.IIm + off))
		mag := math.Sqrt(re*re+im*im) * scale
		if math.IsNaN(mag) || mag >= 1e38 {
			mag = 0
		}
		out[idx] = mag
	}
}
