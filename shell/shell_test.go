package shell

import (
	"strings"
	"testing"

	"rfmatch/ams"
	"rfmatch/core"
	"rfmatch/diag"
	"rfmatch/hal"
	"rfmatch/matching"
	"rfmatch/motor"
	"rfmatch/persist"
	"rfmatch/sensor"
	"rfmatch/stream"
)

func newTestSession(t *testing.T) (*Session, *Registry, *core.SystemClock, *hal.SimMMIO, *diag.SliceSink) {
	t.Helper()
	mmio := hal.NewSimMMIO()
	hal.SetMMIODriver(mmio)
	i2c := hal.NewSimI2C()
	hal.SetI2CDriver(i2c)

	inAddrs := sensor.Addresses{VRe: 0x1000, VIm: 0x2000, IRe: 0x3000, IIm: 0x4000, Hold: 0x5000, Status: 0x5004}
	outAddrs := sensor.Addresses{VRe: 0x6000, VIm: 0x7000, IRe: 0x8000, IIm: 0x9000, Hold: 0xA000, Status: 0xA004}
	inSensor := sensor.New(inAddrs)
	outSensor := sensor.New(outAddrs)
	mmio.WriteWord(inAddrs.Status, 0x80000000|4)
	mmio.WriteWord(outAddrs.Status, 0x80000000|4)

	link := motor.NewLink(0x50)
	m1 := motor.New(motor.Addresses{TargetPos: 0x100, OriginCtrl: 0x104, Pos: 0x200, RPM: 0x204, IndexStatus: 0x208, OverrideRPM: 0x20C}, link, 1)
	m2 := motor.New(motor.Addresses{TargetPos: 0x110, OriginCtrl: 0x114, Pos: 0x210, RPM: 0x214, IndexStatus: 0x218, OverrideRPM: 0x21C}, link, 2)

	clock := core.NewSystemClock()
	sink := &diag.SliceSink{}
	alg := matching.New()
	store := persist.New(link)
	amsEngine := ams.New(clock, inSensor, outSensor, m1, m2, alg, sink)
	streamEngine := stream.New(clock, inSensor, outSensor, m1, m2, sink)

	sess := NewSession(clock, sink, inSensor, outSensor, m1, m2, link, alg, store, amsEngine, streamEngine)
	return sess, NewDefaultRegistry(), clock, mmio, sink
}

func lastLine(sink *diag.SliceSink) string {
	if len(sink.Lines) == 0 {
		return ""
	}
	return sink.Lines[len(sink.Lines)-1]
}

func TestDispatchUnknownCommand(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "zzz")
	if !strings.HasPrefix(lastLine(sink), "Unknown command") {
		t.Errorf("expected unknown-command line, got %v", sink.Lines)
	}
}

func TestDispatchBlankLineIsNoop(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "   ")
	if len(sink.Lines) != 0 {
		t.Errorf("expected no output for a blank line, got %v", sink.Lines)
	}
}

func TestDispatchMissingArgsReportsUsage(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "mr 0")
	if !strings.HasPrefix(lastLine(sink), "Usage: mr") {
		t.Errorf("expected a usage line, got %v", sink.Lines)
	}
}

func TestDeviceGetSetInfoRoundTrips(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "dsi Acme,2026-01-01,SN123")
	if lastLine(sink) != "ACK,dsi,OK" {
		t.Fatalf("expected dsi to ack OK, got %v", sink.Lines)
	}
	reg.Dispatch(sess, "dgi")
	if lastLine(sink) != "DGI,Acme,2026-01-01,SN123,EN" {
		t.Errorf("expected dgi to read back saved info, got %q", lastLine(sink))
	}
}

func TestRFSetAndGetAveragingCount(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "rsa i 64")
	if lastLine(sink) != "ACK,rsa,OK" {
		t.Fatalf("expected rsa to ack OK, got %v", sink.Lines)
	}
	reg.Dispatch(sess, "rga i")
	if lastLine(sink) != "RGA,i,64,EN" {
		t.Errorf("expected rga to report 64, got %q", lastLine(sink))
	}
}

func TestRFSetAveragingCountOutOfRangeDoesNotAck(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "rsa i 9999")
	if lastLine(sink) == "ACK,rsa,OK" {
		t.Errorf("expected an out-of-range count to be rejected, got %v", sink.Lines)
	}
}

func TestRFInvalidSensorSelectorErrors(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "rr x")
	if !strings.HasPrefix(lastLine(sink), "ERR,rr,") {
		t.Errorf("expected an ERR line for an invalid selector, got %v", sink.Lines)
	}
}

func TestMotorRunClampsToLimits(t *testing.T) {
	sess, reg, _, mmio, sink := newTestSession(t)
	sess.M1.SetLimits(motor.Limits{Min: 0, Max: 64000, LowerLimit: 4000, UpperLimit: 60000})
	reg.Dispatch(sess, "mr 0 999999")
	if lastLine(sink) != "ACK,mr,0,60000,OK" {
		t.Errorf("expected mr to clamp to 60000, got %q", lastLine(sink))
	}
	if got := int32(mmio.ReadWord(0x100)); got != 60000 {
		t.Errorf("target register = %d, want 60000", got)
	}
}

func TestMotorGetPosReportsPercent(t *testing.T) {
	sess, reg, _, mmio, sink := newTestSession(t)
	sess.M1.SetLimits(motor.Limits{Min: 0, Max: 1000, LowerLimit: 0, UpperLimit: 1000})
	mmio.WriteWord(0x200, uint32(int32(500)))
	reg.Dispatch(sess, "mgp 0")
	if lastLine(sink) != "MGP,0,500,50,EN" {
		t.Errorf("expected MGP,0,500,50,EN, got %q", lastLine(sink))
	}
}

func TestMotorStreamToggleTracksIndependently(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "mrp run 20")
	if !sess.Stream.Enabled() {
		t.Fatalf("expected mrp run to enable the stream engine")
	}
	reg.Dispatch(sess, "mrp stop")
	if sess.Stream.Enabled() {
		t.Errorf("expected mrp stop to disable the stream engine once nothing else is running")
	}
	if lastLine(sink) != "ACK,mrp,STOP" {
		t.Errorf("expected ACK,mrp,STOP, got %q", lastLine(sink))
	}
}

func TestStreamsStayEnabledUntilAllThreeStop(t *testing.T) {
	sess, reg, _, _, _ := newTestSession(t)
	reg.Dispatch(sess, "rrs i run 50")
	reg.Dispatch(sess, "mrp run 20")
	reg.Dispatch(sess, "rrs i stop")
	if !sess.Stream.Enabled() {
		t.Errorf("expected the stream engine to stay enabled while mrp is still running")
	}
	reg.Dispatch(sess, "mrp stop")
	if sess.Stream.Enabled() {
		t.Errorf("expected the stream engine to disable once every stream has stopped")
	}
}

func TestAutoMatchCalculateEmitsAMCLine(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "amc 45 10")
	found := false
	for _, l := range sink.Lines {
		if strings.HasPrefix(l, "AMC,") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an AMC line, got %v", sink.Lines)
	}
	if lastLine(sink) != "ACK,amc,OK" {
		t.Errorf("expected a trailing ACK,amc,OK, got %q", lastLine(sink))
	}
}

func TestAutoMatchStartStopDrivesAmsEngine(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "ams 10 0 1")
	if !sess.AMS.Enabled() {
		t.Fatalf("expected ams to enable the AMS engine")
	}
	if lastLine(sink) != "ACK,ams,START" {
		t.Errorf("expected ACK,ams,START, got %q", lastLine(sink))
	}
	reg.Dispatch(sess, "ams stop")
	if sess.AMS.Enabled() {
		t.Errorf("expected ams stop to disable the AMS engine")
	}
}

func TestVswrThresholdsRoundTripThroughFram(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "asv 1.1 1.03 1.2")
	if lastLine(sink) != "ACK,asv,OK" {
		t.Fatalf("expected asv to ack OK, got %v", sink.Lines)
	}
	reg.Dispatch(sess, "agv")
	want := "VSW," + f6(1.1) + "," + f6(1.03) + "," + f6(1.2) + ",EN"
	if got := sink.Lines[len(sink.Lines)-2]; got != want {
		t.Errorf("agv = %q, want %q", got, want)
	}
}

func TestHelpListsEveryRegisteredCommand(t *testing.T) {
	sess, reg, _, _, sink := newTestSession(t)
	reg.Dispatch(sess, "dh")
	if len(sink.Lines) < len(reg.Commands()) {
		t.Errorf("expected at least one line per registered command, got %d lines for %d commands", len(sink.Lines), len(reg.Commands()))
	}
}
