package sensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"rfmatch/hal"
)

func newTestSensor(t *testing.T) (*Sensor, *hal.SimMMIO, Addresses) {
	t.Helper()
	mmio := hal.NewSimMMIO()
	hal.SetMMIODriver(mmio)

	addrs := Addresses{
		VRe:    0x1000,
		VIm:    0x2000,
		IRe:    0x3000,
		IIm:    0x4000,
		Hold:   0x5000,
		Status: 0x5004,
	}
	return New(addrs), mmio, addrs
}

func seedBin(mmio *hal.SimMMIO, base uintptr, idx int, val float32) {
	mmio.WriteFloat32(base+uintptr(idx*wordSize), val)
}

func TestSampleReturnsZeroOnHoldTimeout(t *testing.T) {
	s, _, _ := newTestSensor(t)
	// Status register never sets the ack bit: hold never acquired.
	got := s.Sample(4)
	want := Sample{}
	if got != want {
		t.Errorf("Sample() = %+v, want zero value", got)
	}
}

func TestSamplePerfectMatchGivesR50X0(t *testing.T) {
	s, mmio, addrs := newTestSensor(t)

	// Status register reports hold acknowledged with write index 10.
	mmio.WriteWord(addrs.Status, holdAckBit|10)

	// V = 50, I = 1 (in-phase), for every bin in the averaging window.
	for idx := 0; idx < BinCount; idx++ {
		seedBin(mmio, addrs.VRe, idx, 50.0)
		seedBin(mmio, addrs.VIm, idx, 0.0)
		seedBin(mmio, addrs.IRe, idx, 1.0)
		seedBin(mmio, addrs.IIm, idx, 0.0)
	}

	got := s.Sample(8)

	require.InDelta(t, 50.0, got.R, 1e-6)
	require.InDelta(t, 0.0, got.X, 1e-6)
}

func TestSampleAppliesCalibrationGains(t *testing.T) {
	s, mmio, addrs := newTestSensor(t)
	mmio.WriteWord(addrs.Status, holdAckBit|4)

	for idx := 0; idx < BinCount; idx++ {
		seedBin(mmio, addrs.VRe, idx, 10.0)
		seedBin(mmio, addrs.VIm, idx, 0.0)
		seedBin(mmio, addrs.IRe, idx, 1.0)
		seedBin(mmio, addrs.IIm, idx, 0.0)
	}

	s.SetVoltageGain(5.0) // effective V = 50
	got := s.Sample(4)

	require.InDelta(t, 50.0, got.R, 1e-6)
}

func TestSetAveragingCountClamps(t *testing.T) {
	s, _, _ := newTestSensor(t)

	s.SetAveragingCount(0)
	if s.GetAveragingCount() != 1 {
		t.Errorf("GetAveragingCount() = %d, want 1 after clamping 0", s.GetAveragingCount())
	}

	s.SetAveragingCount(BinCount + 100)
	if s.GetAveragingCount() != BinCount {
		t.Errorf("GetAveragingCount() = %d, want %d after clamping overflow", s.GetAveragingCount(), BinCount)
	}
}

func TestLastDebuggedTracksMostRecentSample(t *testing.T) {
	s, mmio, addrs := newTestSensor(t)

	if _, ok := s.LastDebugged(); ok {
		t.Fatalf("expected no last-debugged sample before any Sample() call")
	}

	mmio.WriteWord(addrs.Status, holdAckBit|2)
	for idx := 0; idx < BinCount; idx++ {
		seedBin(mmio, addrs.VRe, idx, 1.0)
		seedBin(mmio, addrs.IRe, idx, 1.0)
	}
	got := s.Sample(2)

	last, ok := s.LastDebugged()
	if !ok {
		t.Fatalf("expected a last-debugged sample after Sample()")
	}
	if last != got {
		t.Errorf("LastDebugged() = %+v, want %+v", last, got)
	}
}

func TestReadFftMagnitudesReadsVoltageChannel(t *testing.T) {
	s, mmio, addrs := newTestSensor(t)
	for idx := 0; idx < BinCount; idx++ {
		seedBin(mmio, addrs.VRe, idx, 3.0)
		seedBin(mmio, addrs.VIm, idx, 4.0)
		seedBin(mmio, addrs.IRe, idx, 1.0)
		seedBin(mmio, addrs.IIm, idx, 0.0)
	}

	out := make([]float64, BinCount)
	s.ReadFftMagnitudes(out)

	want := 5.0 / float64(BinCount)
	require.InDelta(t, want, out[0], 1e-9)
}

func TestReadFftMagnitudesCurrentReadsCurrentChannel(t *testing.T) {
	s, mmio, addrs := newTestSensor(t)
	for idx := 0; idx < BinCount; idx++ {
		seedBin(mmio, addrs.VRe, idx, 1.0)
		seedBin(mmio, addrs.VIm, idx, 0.0)
		seedBin(mmio, addrs.IRe, idx, 3.0)
		seedBin(mmio, addrs.IIm, idx, 4.0)
	}

	out := make([]float64, BinCount)
	s.ReadFftMagnitudesCurrent(out)

	want := 5.0 / float64(BinCount)
	require.InDelta(t, want, out[0], 1e-9)
}

func TestSetPhaseDiffDegRoundTrips(t *testing.T) {
	s, _, _ := newTestSensor(t)
	s.SetPhaseDiffDeg(90.0)
	require.InDelta(t, math.Pi/2, s.PhaseDiffRad(), 1e-9)
	require.InDelta(t, 90.0, s.PhaseDiffDeg(), 1e-9)
}
