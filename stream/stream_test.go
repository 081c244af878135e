package stream

import (
	"strings"
	"testing"

	"rfmatch/core"
	"rfmatch/diag"
	"rfmatch/hal"
	"rfmatch/motor"
	"rfmatch/sensor"
)

func newTestEngine(t *testing.T) (*Engine, *core.SystemClock, *hal.SimMMIO, *diag.SliceSink) {
	t.Helper()
	mmio := hal.NewSimMMIO()
	hal.SetMMIODriver(mmio)

	inSensor := sensor.New(sensor.Addresses{VRe: 0x1000, VIm: 0x2000, IRe: 0x3000, IIm: 0x4000, Hold: 0x5000, Status: 0x5004})
	outSensor := sensor.New(sensor.Addresses{VRe: 0x6000, VIm: 0x7000, IRe: 0x8000, IIm: 0x9000, Hold: 0xA000, Status: 0xA004})
	mmio.WriteWord(0x5004, 0x80000000|4)
	mmio.WriteWord(0xA004, 0x80000000|4)

	link := motor.NewLink(0x50)
	m1 := motor.New(motor.Addresses{TargetPos: 0x100, OriginCtrl: 0x104, Pos: 0x200, RPM: 0x204}, link, 1)
	m2 := motor.New(motor.Addresses{TargetPos: 0x108, OriginCtrl: 0x10C, Pos: 0x208, RPM: 0x20C}, link, 2)

	clock := core.NewSystemClock()
	sink := &diag.SliceSink{}
	e := New(clock, inSensor, outSensor, m1, m2, sink)
	return e, clock, mmio, sink
}

func TestTickEmitsNothingWhenDisabled(t *testing.T) {
	e, clock, _, sink := newTestEngine(t)
	clock.Advance(1000)
	e.Tick()
	if len(sink.Lines) != 0 {
		t.Errorf("expected no output while disabled, got %v", sink.Lines)
	}
}

func TestEnableResetsEmissionClocksSoNoImmediateBurst(t *testing.T) {
	e, _, _, sink := newTestEngine(t)
	e.Enable()
	e.Tick() // 0ms elapsed since Enable: nothing due yet
	if len(sink.Lines) != 0 {
		t.Errorf("expected no output immediately after Enable, got %v", sink.Lines)
	}
}

func TestTickEmitsAllThreeStreamsIndependently(t *testing.T) {
	e, clock, _, sink := newTestEngine(t)
	e.SetRates(Rates{Impedance: 50, VI: 100, MotorPos: 200})
	e.Enable()

	clock.Advance(50)
	e.Tick()
	if !containsPrefix(sink.Lines, "ZI,") {
		t.Errorf("expected a ZI line after 50ms, got %v", sink.Lines)
	}
	if containsPrefix(sink.Lines, "VI,") {
		t.Errorf("did not expect a VI line yet (100ms interval), got %v", sink.Lines)
	}

	clock.Advance(50) // total 100ms
	e.Tick()
	if !containsPrefix(sink.Lines, "VI,") {
		t.Errorf("expected a VI line after 100ms, got %v", sink.Lines)
	}
	if containsPrefix(sink.Lines, "MPB,") {
		t.Errorf("expected no MPB line yet at 100ms (200ms interval), got %v", sink.Lines)
	}
}

func TestMotorPosStreamReportsBothMotors(t *testing.T) {
	e, clock, mmio, sink := newTestEngine(t)
	mmio.WriteWord(0x200, uint32(int32(1000)))
	mmio.WriteWord(0x208, uint32(int32(2000)))
	e.SetRates(Rates{Impedance: 1000, VI: 1000, MotorPos: 10})
	e.Enable()

	clock.Advance(10)
	e.Tick()

	var mpb string
	for _, l := range sink.Lines {
		if strings.HasPrefix(l, "MPB,") {
			mpb = l
		}
	}
	if mpb == "" {
		t.Fatalf("expected an MPB line, got %v", sink.Lines)
	}
	fields := strings.Split(strings.TrimSuffix(mpb, ",EN"), ",")
	if fields[1] != "1000" || fields[4] != "2000" {
		t.Errorf("MPB positions = %v, want pos0=1000 pos1=2000", fields)
	}
}

func containsPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
