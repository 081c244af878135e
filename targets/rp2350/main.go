//go:build rp2350

package main

import (
	"time"

	"machine"

	"rfmatch/ams"
	"rfmatch/core"
	"rfmatch/diag"
	"rfmatch/hal"
	"rfmatch/matching"
	"rfmatch/motor"
	"rfmatch/persist"
	"rfmatch/sensor"
	"rfmatch/serialbuf"
	"rfmatch/shell"
	"rfmatch/stream"
)

// Register map for the DSP fabric, mapped into the RP2350's QSPI XIP
// window. Each RF sensor block holds four 1024-entry float32 bin arrays
// (VRe, VIm, IRe, IIm) at 0x1000 apart plus a hold/status pair, for a
// 0x4008-byte footprint; motor-controller blocks are a handful of scalar
// registers. The motion-link/FRAM companion board sits behind I2C, not
// this window.
const (
	fabricBase = 0x18000000

	sensorBlockSize = 0x4100

	inputSensorBase  = fabricBase + 0*sensorBlockSize
	outputSensorBase = fabricBase + 1*sensorBlockSize
	motorBlockBase   = fabricBase + 2*sensorBlockSize
	motor1Base       = motorBlockBase + 0x0000
	motor2Base       = motorBlockBase + 0x0100

	motionLinkI2CAddr = 0x50
)

func sensorAddrs(base uintptr) sensor.Addresses {
	return sensor.Addresses{
		VRe: base + 0x0000, VIm: base + 0x1000,
		IRe: base + 0x2000, IIm: base + 0x3000,
		Hold: base + 0x4000, Status: base + 0x4004,
	}
}

func motorAddrs(base uintptr) motor.Addresses {
	return motor.Addresses{
		TargetPos: base + 0x00, OriginCtrl: base + 0x04,
		Pos: base + 0x08, RPM: base + 0x0C,
		IndexStatus: base + 0x10, OverrideRPM: base + 0x14,
	}
}

var (
	inputBuffer = serialbuf.NewFifoBuffer(256)
	sess        *shell.Session
	registry    *shell.Registry
	sysClock    *core.SystemClock
	hwClock     *rp2350Clock
	amsEngine   *ams.Engine
	streamEng   *stream.Engine
	sched       *core.Scheduler
)

func ledBlink(count int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < count; i++ {
		led.High()
		time.Sleep(150 * time.Millisecond)
		led.Low()
		time.Sleep(150 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)
}

func main() {
	InitUSB()
	InitDebugUART()

	hal.SetMMIODriver(directMMIO{})
	hal.SetI2CDriver(newMachineI2C())

	sysClock = core.NewSystemClock()
	hwClock = newRP2350Clock(sysClock)
	sched = core.NewScheduler(sysClock)

	ledBlink(1)

	inSensor := sensor.New(sensorAddrs(inputSensorBase))
	outSensor := sensor.New(sensorAddrs(outputSensorBase))
	link := motor.NewLink(motionLinkI2CAddr)
	m1 := motor.New(motorAddrs(motor1Base), link, 1)
	m2 := motor.New(motorAddrs(motor2Base), link, 2)
	alg := matching.New()
	store := persist.New(link)
	store.LoadAll(m1, m2, inSensor, outSensor)

	sink := diag.NewAsyncSink(usbSink{}, 64)

	amsEngine = ams.New(sysClock, inSensor, outSensor, m1, m2, alg, sink)
	streamEng = stream.New(sysClock, inSensor, outSensor, m1, m2, sink)

	sess = shell.NewSession(sysClock, sink, inSensor, outSensor, m1, m2, link, alg, store, amsEngine, streamEng)
	registry = shell.NewDefaultRegistry()

	ledBlink(3)

	// Drive the two periodic engines from the cooperative scheduler rather
	// than an unconditional tick every loop pass.
	sched.After(20, func(t *core.Timer) uint8 {
		amsEngine.Tick()
		streamEng.Tick()
		t.WakeTime = sysClock.NowMillis() + 20
		return core.SF_RESCHEDULE
	})

	DebugPrintln("entering main loop")
	ledBlink(4)

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					inputBuffer.Reset()
				}
			}()

			hwClock.UpdateSystemClock()

			for USBAvailable() > 0 {
				b, err := USBRead()
				if err != nil {
					break
				}
				inputBuffer.WriteByte(b)
			}

			for {
				data := inputBuffer.Data()
				idx := inputBuffer.IndexByte('\r')
				if idx < 0 {
					break
				}
				line := string(data[:idx])
				inputBuffer.Pop(idx + 1)
				registry.Dispatch(sess, line)
			}

			sched.Dispatch()
		}()

		time.Sleep(1 * time.Millisecond)
	}
}
