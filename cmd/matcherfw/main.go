// Command matcherfw runs the same session/registry wiring the rp2350
// target boots, against simulated MMIO/I2C backends instead of real
// hardware. It reads opcode lines from stdin and writes response lines
// to stdout, so the firmware's command logic can be driven and tested on
// a development machine without a board attached.
package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"rfmatch/ams"
	"rfmatch/core"
	"rfmatch/diag"
	"rfmatch/hal"
	"rfmatch/matching"
	"rfmatch/motor"
	"rfmatch/persist"
	"rfmatch/sensor"
	"rfmatch/shell"
	"rfmatch/stream"
)

type stdoutSink struct{}

func (stdoutSink) Emit(line string) { fmt.Println(line) }

func main() {
	mmio := hal.NewSimMMIO()
	hal.SetMMIODriver(mmio)
	i2c := hal.NewSimI2C()
	hal.SetI2CDriver(i2c)

	inAddrs := sensor.Addresses{VRe: 0x1000, VIm: 0x2000, IRe: 0x3000, IIm: 0x4000, Hold: 0x5000, Status: 0x5004}
	outAddrs := sensor.Addresses{VRe: 0x6000, VIm: 0x7000, IRe: 0x8000, IIm: 0x9000, Hold: 0xA000, Status: 0xA004}
	inSensor := sensor.New(inAddrs)
	outSensor := sensor.New(outAddrs)
	// Mark both hold registers ready so a one-shot rz/rf works without an
	// explicit rr/ri first, mirroring how the fabric presents at reset.
	mmio.WriteWord(inAddrs.Status, 0x80000000|4)
	mmio.WriteWord(outAddrs.Status, 0x80000000|4)

	link := motor.NewLink(0x50)
	m1 := motor.New(motor.Addresses{TargetPos: 0x100, OriginCtrl: 0x104, Pos: 0x200, RPM: 0x204, IndexStatus: 0x208, OverrideRPM: 0x20C}, link, 1)
	m2 := motor.New(motor.Addresses{TargetPos: 0x110, OriginCtrl: 0x114, Pos: 0x210, RPM: 0x214, IndexStatus: 0x218, OverrideRPM: 0x21C}, link, 2)

	clock := core.NewSystemClock()
	sched := core.NewScheduler(clock)
	sink := diag.Sink(stdoutSink{})

	alg := matching.New()
	store := persist.New(link)
	store.LoadAll(m1, m2, inSensor, outSensor)
	amsEngine := ams.New(clock, inSensor, outSensor, m1, m2, alg, sink)
	streamEngine := stream.New(clock, inSensor, outSensor, m1, m2, sink)

	sess := shell.NewSession(clock, sink, inSensor, outSensor, m1, m2, link, alg, store, amsEngine, streamEngine)
	registry := shell.NewDefaultRegistry()

	sched.After(20, func(t *core.Timer) uint8 {
		amsEngine.Tick()
		streamEngine.Tick()
		t.WakeTime = clock.NowMillis() + 20
		return core.SF_RESCHEDULE
	})

	// There's no hardware timer or USB interrupt to interleave with a
	// blocking stdin read here, so the clock advances once per line
	// instead of on a free-running ticker; the rp2350 target drives the
	// same scheduler continuously via rp2350Clock.UpdateSystemClock in
	// its own non-blocking main loop.
	lastLine := time.Now()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		clock.Advance(uint64(time.Since(lastLine).Milliseconds()))
		lastLine = time.Now()
		sched.Dispatch()
		registry.Dispatch(sess, scanner.Text())
	}
}
