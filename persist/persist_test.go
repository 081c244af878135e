package persist

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"rfmatch/hal"
	"rfmatch/motor"
	"rfmatch/sensor"
)

func newTestStore(t *testing.T) (*Store, *hal.SimI2C) {
	t.Helper()
	sim := hal.NewSimI2C()
	hal.SetI2CDriver(sim)
	link := motor.NewLink(0x50)
	return New(link), sim
}

func TestSaveModelNameWritesFixedWidthField(t *testing.T) {
	store, sim := newTestStore(t)
	sim.OnRecv(0x50, func(n int) []byte { return make([]byte, n) })

	store.SetInfo(MatcherInfo{ModelName: "RFM-2000"})
	if err := store.SaveModelName(); err != nil {
		t.Fatalf("SaveModelName: %v", err)
	}

	last := sim.LastSendTo(0x50)
	if len(last) != 4+modelNameLen {
		t.Fatalf("send length = %d, want %d", len(last), 4+modelNameLen)
	}
	if string(last[4:12]) != "RFM-2000" {
		t.Errorf("payload = %q, want RFM-2000 prefix", last[4:])
	}
}

func TestLoadCalibrationInfoDefaultsOnReadFailure(t *testing.T) {
	store, _ := newTestStore(t)
	// Every transfer fails, so both calibration reads take the default path.
	hal.SetI2CDriver(failingI2C{})

	inSensor := sensor.New(sensor.Addresses{})
	outSensor := sensor.New(sensor.Addresses{})
	inSensor.SetVoltageGain(7)
	outSensor.SetCurrentGain(7)
	store.LoadCalibrationInfo(inSensor, outSensor)

	if got := inSensor.VoltageGain(); got != 1.0 {
		t.Errorf("input VoltageGain() = %v, want default 1.0", got)
	}
	if got := outSensor.CurrentGain(); got != 1.0 {
		t.Errorf("output CurrentGain() = %v, want default 1.0", got)
	}
	if got := store.Info().InputCal; got != [3]float32{1.0, 1.0, 0.0} {
		t.Errorf("InputCal = %v, want defaults [1 1 0]", got)
	}
}

// failingI2C rejects every transfer, standing in for a bus error.
type failingI2C struct{}

func (failingI2C) Send(uint8, []byte) error { return errors.New("nak") }
func (failingI2C) Recv(uint8, []byte) error { return errors.New("nak") }

func TestLoadVswrSettingsValidatesEachFieldIndependently(t *testing.T) {
	store, sim := newTestStore(t)

	// start=0.5 (invalid, below 1.0), stop=1.5 (valid), restart=99 (invalid, above 10.0)
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(99.0))

	sim.OnRecv(0x50, func(n int) []byte {
		out := make([]byte, n)
		copy(out[1:], buf)
		return out
	})

	if err := store.LoadVswrSettings(); err != nil {
		t.Fatalf("LoadVswrSettings: %v", err)
	}

	info := store.Info()
	if info.VswrStart != 1.04 {
		t.Errorf("VswrStart = %v, want fallback 1.04 (out of range)", info.VswrStart)
	}
	if info.VswrStop != 1.5 {
		t.Errorf("VswrStop = %v, want 1.5 (in range, kept)", info.VswrStop)
	}
	if info.VswrRestart != 1.04 {
		t.Errorf("VswrRestart = %v, want fallback 1.04 (out of range)", info.VswrRestart)
	}
}

func TestLoadMotorLimitsAppliesToBothMotors(t *testing.T) {
	store, sim := newTestStore(t)

	buf := make([]byte, 32)
	m1Limits := []int32{100, 50000, 5000, 45000}
	m2Limits := []int32{200, 60000, 6000, 55000}
	for i, v := range m1Limits {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	for i, v := range m2Limits {
		binary.LittleEndian.PutUint32(buf[16+i*4:], uint32(v))
	}
	sim.OnRecv(0x50, func(n int) []byte {
		out := make([]byte, n)
		copy(out[1:], buf)
		return out
	})

	link := motor.NewLink(0x50)
	m1 := motor.New(motor.Addresses{}, link, 1)
	m2 := motor.New(motor.Addresses{}, link, 2)

	if err := store.LoadMotorLimits(m1, m2); err != nil {
		t.Fatalf("LoadMotorLimits: %v", err)
	}

	if got := m1.Limits(); got.Min != 100 || got.Max != 50000 {
		t.Errorf("m1.Limits() = %+v, want Min=100 Max=50000", got)
	}
	if got := m2.Limits(); got.Min != 200 || got.Max != 60000 {
		t.Errorf("m2.Limits() = %+v, want Min=200 Max=60000", got)
	}
}

func TestSaveFirstIndexPosForWritesSingleMotorSlot(t *testing.T) {
	store, sim := newTestStore(t)
	sim.OnRecv(0x50, func(n int) []byte { return make([]byte, n) })

	if err := store.SaveFirstIndexPosFor(1, 9999); err != nil {
		t.Fatalf("SaveFirstIndexPosFor: %v", err)
	}

	last := sim.LastSendTo(0x50)
	// [cmdFramWrite, addrHi, addrLo, len, data...]
	addr := uint16(last[1])<<8 | uint16(last[2])
	wantAddr := AddrIndexPos + 4
	if addr != wantAddr {
		t.Errorf("FRAM address = %#x, want %#x", addr, wantAddr)
	}
	if store.Info().FirstIndexPos[1] != 9999 {
		t.Errorf("FirstIndexPos[1] = %d, want 9999", store.Info().FirstIndexPos[1])
	}
}

func TestSaveFirstIndexPosForRejectsOutOfRangeIndex(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.SaveFirstIndexPosFor(5, 1); err == nil {
		t.Fatalf("expected an error for an out-of-range motor index")
	}
}

func TestSessionIDIsStableAcrossCalls(t *testing.T) {
	store, _ := newTestStore(t)
	a := store.SessionID()
	b := store.SessionID()
	if a != b {
		t.Errorf("SessionID() changed between calls: %v != %v", a, b)
	}
}
