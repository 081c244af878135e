// Package persist implements the FRAM-backed settings store shared by
// both motors and both sensors on a board: product info, per-sensor
// calibration, saved encoder index positions, motor limits/capacitance
// range/fit coefficients, stream rates, VSWR thresholds, and AMS tuning.
//
// Grounded in the original firmware's MotionBoard (the FramMap offset
// table and the saveXxx/loadXxx method family). The polled-I2C framRead/
// framWrite wire format lives on motor.Link since it is the same
// companion device that fronts the stepper drivers; this package only
// adds the FRAM address table and the MatcherInfo field layout on top.
package persist

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"rfmatch/motor"
	"rfmatch/sensor"
)

// FRAM address table, exact byte offsets from the original firmware.
const (
	AddrModelName        uint16 = 0x0000
	AddrMakeDate         uint16 = 0x0020
	AddrSerialNum        uint16 = 0x0030
	AddrInputCal         uint16 = 0x0050
	AddrOutputCal        uint16 = 0x005C
	AddrIndexPos         uint16 = 0x0068
	AddrMotorLimits      uint16 = 0x00E8
	AddrStreamSettings   uint16 = 0x0108
	AddrMotorCaps        uint16 = 0x011C
	AddrMotorFitCoeffs   uint16 = 0x012C
	AddrVswrSettings     uint16 = 0x014C
	AddrAmsSettings      uint16 = 0x0158
)

const (
	modelNameLen = 32
	makeDateLen  = 16
	serialNumLen = 32
)

// MatcherInfo is the full set of persisted board settings, mirroring the
// original firmware's MatcherInfo aggregate field for field.
type MatcherInfo struct {
	ModelName  string
	MakeDate   string
	SerialNum  string

	InputCal  [3]float32 // voltage gain, current gain, phase offset (deg)
	OutputCal [3]float32

	FirstIndexPos [2]int32

	MotorLimits [2][4]int32   // per motor: min, max, lowerLimit, upperLimit
	MotorCaps   [2][2]int32   // per motor: minCap, maxCap (pF x100)
	MotorFitCoeffs [2][4]float32 // per motor: a0, a1, a2, a3

	ImpStreamRate      int32
	ViStreamRate       int32
	MotorPosStreamRate int32

	VswrStart   float32
	VswrStop    float32
	VswrRestart float32

	AmsInterval    int32
	AmsTimeout     int32
	AmsLogInterval int32
}

func defaultMatcherInfo() MatcherInfo {
	info := MatcherInfo{
		ImpStreamRate:      100,
		ViStreamRate:       100,
		MotorPosStreamRate: 100,
		VswrStart:          1.04,
		VswrStop:           1.02,
		VswrRestart:        1.04,
		AmsInterval:        10,
		AmsTimeout:         0,
		AmsLogInterval:     10,
	}
	for i := range info.MotorLimits {
		info.MotorLimits[i] = [4]int32{0, 64000, 4000, 60000}
	}
	for i := range info.MotorCaps {
		info.MotorCaps[i] = [2]int32{0, 100000}
	}
	return info
}

// Store owns one board's FRAM-backed settings and the link used to read
// and write them.
type Store struct {
	link      *motor.Link
	info      MatcherInfo
	sessionID uuid.UUID
}

// New returns a settings store bound to link, with default settings
// until LoadAll (or an individual Load call) runs. sessionID is a UUID
// generated once per Store and exposed through SessionID; it is not
// written to FRAM or emitted in any frame.
func New(link *motor.Link) *Store {
	return &Store{link: link, info: defaultMatcherInfo(), sessionID: uuid.New()}
}

// SessionID returns the UUID generated for this store at construction.
func (s *Store) SessionID() uuid.UUID { return s.sessionID }

// Info returns the current in-memory settings snapshot.
func (s *Store) Info() MatcherInfo { return s.info }

// SetInfo replaces the in-memory settings snapshot without touching FRAM.
func (s *Store) SetInfo(info MatcherInfo) { s.info = info }

func fixedString(s string, length int) []byte {
	b := make([]byte, length)
	copy(b, s)
	return b
}

func trimString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func encodeInt32s(vals []int32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func decodeInt32s(buf []byte, out []int32) {
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
}

func encodeFloat32s(vals []float32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32s(buf []byte, out []float32) {
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
}

// SaveAll writes model/date/serial, calibration, saved index positions,
// motor limits, motor caps, and motor fit coefficients to FRAM in that
// order, aborting on the first failure (matching the original firmware's
// saveMatcherInfo, which treats a partial save as worse than none).
func (s *Store) SaveAll(m1, m2 *motor.Motor) error {
	if err := s.SaveModelName(); err != nil {
		return err
	}
	if err := s.SaveMakeDate(); err != nil {
		return err
	}
	if err := s.SaveSerialNum(); err != nil {
		return err
	}
	if err := s.SaveCalibrationInfo(); err != nil {
		return err
	}
	if err := s.SaveFirstIndexPos(); err != nil {
		return err
	}
	if err := s.SaveMotorLimits(); err != nil {
		return err
	}
	if err := s.SaveMotorCaps(m1, m2); err != nil {
		return err
	}
	if err := s.SaveMotorFitCoeffs(m1, m2); err != nil {
		return err
	}
	return nil
}

// LoadAll loads every settings group from FRAM, applying calibration and
// motor limits/caps/fit-coefficients to the given sensors and motors as
// each group is loaded. Unlike SaveAll it does not abort on the first
// failure — each group falls back to its own default independently, so
// a corrupt single field does not take the rest of the board's settings
// down with it.
//
// Motor caps load before motor limits, and fit coefficients load before
// limits too: both the capacitance range and the fit need to already be
// in place by the time limits are applied, since reporting a motor's
// position alongside its capacitance is the first thing a UI client asks
// for after a reconnect.
func (s *Store) LoadAll(m1, m2 *motor.Motor, inputSensor, outputSensor *sensor.Sensor) {
	s.LoadProductInfo()
	s.LoadCalibrationInfo(inputSensor, outputSensor)
	s.LoadFirstIndexPos()
	s.LoadMotorCaps(m1, m2)
	s.LoadMotorFitCoeffs(m1, m2)
	s.LoadMotorLimits(m1, m2)
	s.LoadStreamSettings()
	s.LoadVswrSettings()
	s.LoadAmsSettings()
}

func (s *Store) SaveModelName() error {
	return s.link.FramWrite(AddrModelName, fixedString(s.info.ModelName, modelNameLen))
}

func (s *Store) SaveMakeDate() error {
	return s.link.FramWrite(AddrMakeDate, fixedString(s.info.MakeDate, makeDateLen))
}

func (s *Store) SaveSerialNum() error {
	return s.link.FramWrite(AddrSerialNum, fixedString(s.info.SerialNum, serialNumLen))
}

// LoadProductInfo loads model name, make date, and serial number. A read
// failure on any one field leaves that field as whatever was already in
// the in-memory snapshot (matching the source's behavior of not zeroing
// the field on a failed read).
func (s *Store) LoadProductInfo() error {
	var firstErr error
	if b, err := s.link.FramRead(AddrModelName, modelNameLen); err == nil {
		s.info.ModelName = trimString(b)
	} else {
		firstErr = err
	}
	if b, err := s.link.FramRead(AddrMakeDate, makeDateLen); err == nil {
		s.info.MakeDate = trimString(b)
	} else if firstErr == nil {
		firstErr = err
	}
	if b, err := s.link.FramRead(AddrSerialNum, serialNumLen); err == nil {
		s.info.SerialNum = trimString(b)
	} else if firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// SaveCalibrationInfo writes both sensors' calibration triples.
func (s *Store) SaveCalibrationInfo() error {
	if err := s.link.FramWrite(AddrInputCal, encodeFloat32s(s.info.InputCal[:])); err != nil {
		return err
	}
	return s.link.FramWrite(AddrOutputCal, encodeFloat32s(s.info.OutputCal[:]))
}

// LoadCalibrationInfo loads both sensors' calibration triples, falling
// back to unity gain/zero phase on a read failure, and applies the
// result to inputSensor/outputSensor if non-nil.
func (s *Store) LoadCalibrationInfo(inputSensor, outputSensor *sensor.Sensor) {
	if b, err := s.link.FramRead(AddrInputCal, 12); err == nil {
		decodeFloat32s(b, s.info.InputCal[:])
	} else {
		s.info.InputCal = [3]float32{1.0, 1.0, 0.0}
	}
	if b, err := s.link.FramRead(AddrOutputCal, 12); err == nil {
		decodeFloat32s(b, s.info.OutputCal[:])
	} else {
		s.info.OutputCal = [3]float32{1.0, 1.0, 0.0}
	}

	if inputSensor != nil {
		inputSensor.SetVoltageGain(float64(s.info.InputCal[0]))
		inputSensor.SetCurrentGain(float64(s.info.InputCal[1]))
		inputSensor.SetPhaseDiffDeg(float64(s.info.InputCal[2]))
	}
	if outputSensor != nil {
		outputSensor.SetVoltageGain(float64(s.info.OutputCal[0]))
		outputSensor.SetCurrentGain(float64(s.info.OutputCal[1]))
		outputSensor.SetPhaseDiffDeg(float64(s.info.OutputCal[2]))
	}
}

// SaveFirstIndexPos writes both motors' saved encoder index positions in
// one transfer.
func (s *Store) SaveFirstIndexPos() error {
	return s.link.FramWrite(AddrIndexPos, encodeInt32s(s.info.FirstIndexPos[:]))
}

// SaveFirstIndexPosFor updates and persists a single motor's saved index
// position, writing only that motor's 4-byte slot.
func (s *Store) SaveFirstIndexPosFor(motorIdx int, pos int32) error {
	if motorIdx < 0 || motorIdx >= len(s.info.FirstIndexPos) {
		return errInvalidMotorIndex
	}
	s.info.FirstIndexPos[motorIdx] = pos
	addr := AddrIndexPos + uint16(motorIdx*4)
	return s.link.FramWrite(addr, encodeInt32s([]int32{pos}))
}

func (s *Store) LoadFirstIndexPos() error {
	b, err := s.link.FramRead(AddrIndexPos, 8)
	if err != nil {
		return err
	}
	decodeInt32s(b, s.info.FirstIndexPos[:])
	return nil
}

// SaveMotorLimits writes each motor's limits as a separate 16-byte
// transfer, matching the companion device's I2C buffer size.
func (s *Store) SaveMotorLimits() error {
	if err := s.link.FramWrite(AddrMotorLimits, encodeInt32s(s.info.MotorLimits[0][:])); err != nil {
		return err
	}
	addr := AddrMotorLimits + uint16(4*len(s.info.MotorLimits[0]))
	return s.link.FramWrite(addr, encodeInt32s(s.info.MotorLimits[1][:]))
}

// LoadMotorLimits reads both motors' limits, falls back to the board
// defaults on failure, and applies whichever values resulted to m1/m2.
func (s *Store) LoadMotorLimits(m1, m2 *motor.Motor) error {
	b, err := s.link.FramRead(AddrMotorLimits, 32)
	if err != nil {
		defaults := [4]int32{0, 64000, 4000, 60000}
		s.info.MotorLimits[0] = defaults
		s.info.MotorLimits[1] = defaults
	} else {
		decodeInt32s(b[:16], s.info.MotorLimits[0][:])
		decodeInt32s(b[16:], s.info.MotorLimits[1][:])
	}
	applyLimits(m1, s.info.MotorLimits[0])
	applyLimits(m2, s.info.MotorLimits[1])
	return err
}

func applyLimits(m *motor.Motor, l [4]int32) {
	if m == nil {
		return
	}
	m.SetLimits(motor.Limits{Min: l[0], Max: l[1], LowerLimit: l[2], UpperLimit: l[3]})
}

// SaveMotorCaps writes both motors' capacitance range in one transfer.
func (s *Store) SaveMotorCaps(m1, m2 *motor.Motor) error {
	if m1 != nil {
		r := m1.CapRange()
		s.info.MotorCaps[0] = [2]int32{r.MinCap, r.MaxCap}
	}
	if m2 != nil {
		r := m2.CapRange()
		s.info.MotorCaps[1] = [2]int32{r.MinCap, r.MaxCap}
	}
	return s.link.FramWrite(AddrMotorCaps, encodeInt32s([]int32{
		s.info.MotorCaps[0][0], s.info.MotorCaps[0][1],
		s.info.MotorCaps[1][0], s.info.MotorCaps[1][1],
	}))
}

// LoadMotorCaps loads both motors' capacitance range, defaulting to
// 0..1000.00pF (pF x100) on a read failure, and applies it to m1/m2.
func (s *Store) LoadMotorCaps(m1, m2 *motor.Motor) error {
	b, err := s.link.FramRead(AddrMotorCaps, 16)
	if err != nil {
		s.info.MotorCaps[0] = [2]int32{0, 100000}
		s.info.MotorCaps[1] = [2]int32{0, 100000}
	} else {
		flat := make([]int32, 4)
		decodeInt32s(b, flat)
		s.info.MotorCaps[0] = [2]int32{flat[0], flat[1]}
		s.info.MotorCaps[1] = [2]int32{flat[2], flat[3]}
	}
	if m1 != nil {
		m1.SetCapRange(motor.CapRange{MinCap: s.info.MotorCaps[0][0], MaxCap: s.info.MotorCaps[0][1]})
	}
	if m2 != nil {
		m2.SetCapRange(motor.CapRange{MinCap: s.info.MotorCaps[1][0], MaxCap: s.info.MotorCaps[1][1]})
	}
	return err
}

// SaveMotorFitCoeffs writes each motor's four fit coefficients as a
// separate 16-byte transfer.
func (s *Store) SaveMotorFitCoeffs(m1, m2 *motor.Motor) error {
	if m1 != nil {
		f := m1.FitCoeffs()
		s.info.MotorFitCoeffs[0] = [4]float32{float32(f.A0), float32(f.A1), float32(f.A2), float32(f.A3)}
	}
	if m2 != nil {
		f := m2.FitCoeffs()
		s.info.MotorFitCoeffs[1] = [4]float32{float32(f.A0), float32(f.A1), float32(f.A2), float32(f.A3)}
	}
	if err := s.link.FramWrite(AddrMotorFitCoeffs, encodeFloat32s(s.info.MotorFitCoeffs[0][:])); err != nil {
		return err
	}
	addr := AddrMotorFitCoeffs + uint16(4*len(s.info.MotorFitCoeffs[0]))
	return s.link.FramWrite(addr, encodeFloat32s(s.info.MotorFitCoeffs[1][:]))
}

// LoadMotorFitCoeffs reads each motor's four fit coefficients as a
// separate transfer, zeroing (meaning "not fitted") on a read failure,
// and applies the result to m1/m2.
func (s *Store) LoadMotorFitCoeffs(m1, m2 *motor.Motor) error {
	var firstErr error
	if b, err := s.link.FramRead(AddrMotorFitCoeffs, 16); err == nil {
		decodeFloat32s(b, s.info.MotorFitCoeffs[0][:])
	} else {
		s.info.MotorFitCoeffs[0] = [4]float32{}
		firstErr = err
	}
	addr := AddrMotorFitCoeffs + uint16(4*len(s.info.MotorFitCoeffs[0]))
	if b, err := s.link.FramRead(addr, 16); err == nil {
		decodeFloat32s(b, s.info.MotorFitCoeffs[1][:])
	} else {
		s.info.MotorFitCoeffs[1] = [4]float32{}
		if firstErr == nil {
			firstErr = err
		}
	}
	applyFit(m1, s.info.MotorFitCoeffs[0])
	applyFit(m2, s.info.MotorFitCoeffs[1])
	return firstErr
}

func applyFit(m *motor.Motor, c [4]float32) {
	if m == nil {
		return
	}
	m.SetFitCoeffs(motor.FitCoeffs{A0: float64(c[0]), A1: float64(c[1]), A2: float64(c[2]), A3: float64(c[3])})
}

func (s *Store) SaveStreamSettings() error {
	return s.link.FramWrite(AddrStreamSettings, encodeInt32s([]int32{
		s.info.ImpStreamRate, s.info.ViStreamRate, s.info.MotorPosStreamRate,
	}))
}

// LoadStreamSettings loads the three stream rates, validating each
// against [10, 5000]ms independently and falling back to 100ms for any
// that fail validation or could not be read.
func (s *Store) LoadStreamSettings() error {
	b, err := s.link.FramRead(AddrStreamSettings, 12)
	if err != nil {
		s.info.ImpStreamRate = 100
		s.info.ViStreamRate = 100
		s.info.MotorPosStreamRate = 100
		return err
	}
	vals := make([]int32, 3)
	decodeInt32s(b, vals)
	s.info.ImpStreamRate = validateRange(vals[0], 10, 5000, 100)
	s.info.ViStreamRate = validateRange(vals[1], 10, 5000, 100)
	s.info.MotorPosStreamRate = validateRange(vals[2], 10, 5000, 100)
	return nil
}

func validateRange(v, lo, hi, fallback int32) int32 {
	if v >= lo && v <= hi {
		return v
	}
	return fallback
}

func (s *Store) SaveVswrSettings() error {
	return s.link.FramWrite(AddrVswrSettings, encodeFloat32s([]float32{
		s.info.VswrStart, s.info.VswrStop, s.info.VswrRestart,
	}))
}

// LoadVswrSettings loads the three VSWR thresholds, validating each of
// start, stop, and restart independently against its own range and
// falling back to the board default for any value that fails validation
// or could not be read — a value failing its check never borrows another
// field's fallback.
func (s *Store) LoadVswrSettings() error {
	b, err := s.link.FramRead(AddrVswrSettings, 12)
	if err != nil {
		s.info.VswrStart = 1.04
		s.info.VswrStop = 1.02
		s.info.VswrRestart = 1.04
		return err
	}
	vals := make([]float32, 3)
	decodeFloat32s(b, vals)
	s.info.VswrStart = validateRangeF(vals[0], 1.0, 10.0, 1.04)
	s.info.VswrStop = validateRangeF(vals[1], 1.0, 5.0, 1.02)
	s.info.VswrRestart = validateRangeF(vals[2], 1.0, 10.0, 1.04)
	return nil
}

func validateRangeF(v, lo, hi, fallback float32) float32 {
	if v >= lo && v <= hi {
		return v
	}
	return fallback
}

func (s *Store) SaveAmsSettings() error {
	return s.link.FramWrite(AddrAmsSettings, encodeInt32s([]int32{
		s.info.AmsInterval, s.info.AmsTimeout, s.info.AmsLogInterval,
	}))
}

// LoadAmsSettings loads the AMS tick interval, watchdog timeout, and log
// interval, validating each independently.
func (s *Store) LoadAmsSettings() error {
	b, err := s.link.FramRead(AddrAmsSettings, 12)
	if err != nil {
		s.info.AmsInterval = 10
		s.info.AmsTimeout = 0
		s.info.AmsLogInterval = 10
		return err
	}
	vals := make([]int32, 3)
	decodeInt32s(b, vals)
	s.info.AmsInterval = validateRange(vals[0], 1, 1000, 10)
	s.info.AmsTimeout = validateRange(vals[1], 0, 60000, 0)
	s.info.AmsLogInterval = validateRange(vals[2], 1, 1000, 10)
	return nil
}

type invalidMotorIndexError struct{}

func (invalidMotorIndexError) Error() string { return "persist: motor index out of range" }

var errInvalidMotorIndex = invalidMotorIndexError{}
