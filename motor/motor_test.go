package motor

import (
	"testing"
	"time"

	"rfmatch/hal"
)

func newTestMotor(t *testing.T) (*Motor, *hal.SimMMIO) {
	t.Helper()
	mmio := hal.NewSimMMIO()
	hal.SetMMIODriver(mmio)
	hal.SetI2CDriver(hal.NewSimI2C())

	addrs := Addresses{
		TargetPos:   0x100,
		OriginCtrl:  0x104,
		Pos:         0x200,
		RPM:         0x204,
		IndexStatus: 0x300,
		OverrideRPM: 0x304,
	}
	link := NewLink(0x50)
	m := New(addrs, link, 1)
	return m, mmio
}

func stubSleep(t *testing.T) {
	t.Helper()
	orig := hal.Sleep
	hal.Sleep = func(time.Duration) {}
	t.Cleanup(func() { hal.Sleep = orig })
}

func TestReadPosAppliesOffset(t *testing.T) {
	m, mmio := newTestMotor(t)
	mmio.WriteWord(0x200, uint32(int32(500)))
	m.SetPosOffset(100)

	if got := m.ReadPos(); got != 600 {
		t.Errorf("ReadPos() = %d, want 600", got)
	}
}

func TestRunToClampsWithinLimits(t *testing.T) {
	m, mmio := newTestMotor(t)
	m.SetLimits(Limits{Min: 0, Max: 64000, LowerLimit: 4000, UpperLimit: 60000})

	got := m.RunTo(70000)
	if got != 60000 {
		t.Errorf("RunTo(70000) clamped = %d, want 60000", got)
	}
	if mmio.ReadWord(0x100) != 60000 {
		t.Errorf("TargetPos register = %d, want 60000", mmio.ReadWord(0x100))
	}

	got = m.RunTo(-50)
	if got != 4000 {
		t.Errorf("RunTo(-50) clamped = %d, want 4000", got)
	}
}

func TestRunToForceBypassesClamp(t *testing.T) {
	m, mmio := newTestMotor(t)
	m.SetLimits(Limits{Min: 0, Max: 64000, LowerLimit: 4000, UpperLimit: 60000})

	m.RunToForce(-100000)
	if got := int32(mmio.ReadWord(0x100)); got != -100000 {
		t.Errorf("TargetPos register = %d, want -100000", got)
	}
}

func TestSetOriginWritesTargetThenTriggerSequence(t *testing.T) {
	m, mmio := newTestMotor(t)
	stubSleep(t)

	m.SetOrigin(1234)

	if got := int32(mmio.ReadWord(0x100)); got != 1234 {
		t.Errorf("TargetPos register = %d, want 1234", got)
	}
	// Trigger register must end cleared (base value, no trigger bit set).
	if got := mmio.ReadWord(0x104); got != uint32(1234)<<2 {
		t.Errorf("OriginCtrl register = %#x, want %#x", got, uint32(1234)<<2)
	}
}

func TestSetOriginOnIndexDoesNotTouchTargetPos(t *testing.T) {
	m, mmio := newTestMotor(t)
	stubSleep(t)
	mmio.WriteWord(0x100, 999)

	m.SetOriginOnIndex(5555)

	if got := mmio.ReadWord(0x100); got != 999 {
		t.Errorf("TargetPos register changed to %d, want untouched 999", got)
	}
}

func TestCapAtLinearFallback(t *testing.T) {
	m, _ := newTestMotor(t)
	m.SetLimits(Limits{Min: 0, Max: 1000})
	m.SetCapRange(CapRange{MinCap: 0, MaxCap: 10000}) // 0..100pF x100

	if got := m.CapAt(500); got != 5000 {
		t.Errorf("CapAt(500) = %d, want 5000", got)
	}
	if got := m.CapAt(0); got != 0 {
		t.Errorf("CapAt(0) = %d, want 0", got)
	}
	if got := m.CapAt(1000); got != 10000 {
		t.Errorf("CapAt(1000) = %d, want 10000", got)
	}
}

func TestStepOfCapInvertsCapAtLinear(t *testing.T) {
	m, _ := newTestMotor(t)
	m.SetLimits(Limits{Min: 0, Max: 1000, LowerLimit: 0, UpperLimit: 1000})
	m.SetCapRange(CapRange{MinCap: 0, MaxCap: 10000})

	step := m.StepOfCap(50.0) // 50pF -> midpoint
	if step < 490 || step > 510 {
		t.Errorf("StepOfCap(50.0) = %d, want ~500", step)
	}
}

func TestStepOfCapUsesCubicFitWhenPresent(t *testing.T) {
	m, _ := newTestMotor(t)
	m.SetLimits(Limits{Min: 0, Max: 1000, LowerLimit: 0, UpperLimit: 1000})
	// cap(x) = 100*x, a pure linear "cubic" fit so Newton-Raphson has an
	// exact closed-form answer to check against.
	m.SetFitCoeffs(FitCoeffs{A0: 0, A1: 100, A2: 0, A3: 0})

	step := m.StepOfCap(50.0)
	if step < 490 || step > 510 {
		t.Errorf("StepOfCap(50.0) with linear fit = %d, want ~500", step)
	}
}

func TestRewindStopsOnStallAndBacksOff(t *testing.T) {
	m, mmio := newTestMotor(t)
	m.SetLimits(Limits{Min: 0, Max: 64000, LowerLimit: 4000, UpperLimit: 60000})
	mmio.WriteWord(0x200, uint32(int32(5000)))

	// hal.Sleep drives the simulated rewind: each call nudges the
	// position register down until it hits the physical limit, then
	// holds still so the stall detector trips.
	pos := int32(5000)
	floor := int32(200)
	orig := hal.Sleep
	hal.Sleep = func(time.Duration) {
		if pos > floor {
			pos -= 100
		}
		mmio.WriteWord(0x200, uint32(pos))
	}
	t.Cleanup(func() { hal.Sleep = orig })

	result := m.Rewind()

	if !result.Completed {
		t.Fatalf("expected Rewind to complete, got %+v", result)
	}
	if result.FinalPos != floor+RewindOffset {
		t.Errorf("FinalPos = %d, want %d", result.FinalPos, floor+RewindOffset)
	}
}

func TestFindIndexDetectsIndexPulse(t *testing.T) {
	m, mmio := newTestMotor(t)
	mmio.WriteWord(0x300, 0) // index position starts at 0, no stall

	ticks := 0
	orig := hal.Sleep
	hal.Sleep = func(time.Duration) {
		ticks++
		mmio.WriteWord(0x200, uint32(int32(ticks*10)))
		if ticks == 5 {
			mmio.WriteWord(0x300, 777)
		}
		mmio.WriteWord(0x204, 100) // keep RPM nonzero so it isn't mistaken for a stall
	}
	t.Cleanup(func() { hal.Sleep = orig })

	result := m.FindIndex(6000, 30, time.Millisecond)

	if !result.Found {
		t.Fatalf("expected FindIndex to report found, got %+v", result)
	}
	if result.IndexPos != 777 {
		t.Errorf("IndexPos = %d, want 777", result.IndexPos)
	}
}

func TestSetDriverConfigWritesRegistersOverI2C(t *testing.T) {
	m, _ := newTestMotor(t)
	stubSleep(t)

	sim := hal.NewSimI2C()
	sim.OnRecv(0x50, func(n int) []byte { return make([]byte, n) }) // status 0 = success
	hal.SetI2CDriver(sim)

	if err := m.SetDriverConfig(DefaultDriverConfig()); err != nil {
		t.Fatalf("SetDriverConfig: %v", err)
	}

	last := sim.LastSendTo(0x50)
	if len(last) == 0 || last[0] != cmdWriteReg {
		t.Errorf("expected last command to be a register write, got %v", last)
	}
}
