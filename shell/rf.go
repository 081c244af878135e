package shell

import (
	"fmt"
	"strconv"
	"strings"
)

// RegisterRF adds the r* (RF sensor) family: init (ri validates its
// selector and acknowledges; it performs no ADC bring-up), the two rate-gated
// streams' run/stop toggles, one-shot FFT dump, one-shot impedance, the
// AC/DC coupling toggle, reset, calibration get/set, and averaging-count
// get/set.
//
// Grounded in DebugMode.hpp's RF-command handlers (ri/rrs/rf/rrv/rz/rk/
// rr/rsc/rgc/rsa/rga), wired to sensor.Sensor's averaging/calibration API
// and to the shared stream.Engine for the two rate-gated streams.
func RegisterRF(r *Registry) {
	r.Register("ri", "ri [i|o]", handleRFInit)
	r.Register("rrs", "rrs [i|o] [run|stop] [rate_ms]", handleRFRunImpedanceStream)
	r.Register("rf", "rf [i|o]", handleRFFftDump)
	r.Register("rrv", "rrv [i|o] [run|stop] [rate_ms]", handleRFRunViStream)
	r.Register("rz", "rz [i|o] [avg]", handleRFImpedance)
	r.Register("rk", "rk [i|o] [ac|dc]", handleRFCoupling)
	r.Register("rr", "rr [i|o]", handleRFReset)
	r.Register("rsc", "rsc [i|o] [v|i|p] [value]", handleRFSetCal)
	r.Register("rgc", "rgc [i|o]", handleRFGetCal)
	r.Register("rsa", "rsa [i|o] [count]", handleRFSetAvg)
	r.Register("rga", "rga [i|o]", handleRFGetAvg)
}

func handleRFInit(sess *Session, args []string) error {
	if len(args) < 2 {
		return errUsage("ri [i|o]")
	}
	if _, ok := sess.sensorFor(args[1]); !ok {
		return fmt.Errorf("invalid sensor selector %q", args[1])
	}
	sess.Sink.Emit("ACK,ri,OK")
	return nil
}

func handleRFRunImpedanceStream(sess *Session, args []string) error {
	if len(args) < 3 {
		return errUsage("rrs [i|o] [run|stop] [rate_ms]")
	}
	if _, ok := sess.sensorFor(args[1]); !ok {
		return fmt.Errorf("invalid sensor selector %q", args[1])
	}
	run := args[2] == "run"
	if run && len(args) >= 4 {
		if rate, err := strconv.Atoi(args[3]); err == nil && rate >= 10 && rate <= 5000 {
			rates := sess.Stream.Rates()
			rates.Impedance = uint64(rate)
			sess.Stream.SetRates(rates)
		}
	}
	sess.streams.impRun = run
	sess.applyStreamState()
	sess.Sink.Emit(fmt.Sprintf("ACK,rrs,%s", ackWord(run)))
	return nil
}

func handleRFRunViStream(sess *Session, args []string) error {
	if len(args) < 3 {
		return errUsage("rrv [i|o] [run|stop] [rate_ms]")
	}
	if _, ok := sess.sensorFor(args[1]); !ok {
		return fmt.Errorf("invalid sensor selector %q", args[1])
	}
	run := args[2] == "run"
	if run && len(args) >= 4 {
		if rate, err := strconv.Atoi(args[3]); err == nil && rate >= 10 && rate <= 5000 {
			rates := sess.Stream.Rates()
			rates.VI = uint64(rate)
			sess.Stream.SetRates(rates)
		}
	}
	sess.streams.viRun = run
	sess.applyStreamState()
	sess.Sink.Emit(fmt.Sprintf("ACK,rrv,%s", ackWord(run)))
	return nil
}

func handleRFFftDump(sess *Session, args []string) error {
	if len(args) < 2 {
		return errUsage("rf [i|o]")
	}
	sel := args[1]
	sen, ok := sess.sensorFor(sel)
	if !ok {
		return fmt.Errorf("invalid sensor selector %q", sel)
	}
	vOpcode, iOpcode := "FI", "CI"
	if sel == "o" {
		vOpcode, iOpcode = "FO", "CO"
	}

	mags := make([]float64, 1024)
	sen.ReadFftMagnitudes(mags)
	parts := make([]string, len(mags))
	for i, m := range mags {
		parts[i] = f6(m)
	}
	sess.Sink.Emit(vOpcode + "," + strings.Join(parts, ",") + ",EN")

	currentMags := make([]float64, 1024)
	sen.ReadFftMagnitudesCurrent(currentMags)
	for i, m := range currentMags {
		parts[i] = f6(m)
	}
	sess.Sink.Emit(iOpcode + "," + strings.Join(parts, ",") + ",EN")
	return nil
}

func handleRFImpedance(sess *Session, args []string) error {
	if len(args) < 2 {
		return errUsage("rz [i|o] [avg]")
	}
	sel := args[1]
	sen, ok := sess.sensorFor(sel)
	if !ok {
		return fmt.Errorf("invalid sensor selector %q", sel)
	}
	avg := -1
	if len(args) >= 3 {
		if n, err := strconv.Atoi(args[2]); err == nil {
			avg = n
		}
	}
	sample := sen.Sample(avg)
	opcode := "ZI"
	if sel == "o" {
		opcode = "ZO"
	}
	sess.Sink.Emit(fmt.Sprintf("%s,%s,%s,%s,%s,%s,EN", opcode,
		f6(sample.R), f6(sample.X), f6(sample.VMag), f6(sample.IMag), f6(sample.PhaseDeg)))
	return nil
}

func handleRFCoupling(sess *Session, args []string) error {
	if len(args) < 3 {
		return errUsage("rk [i|o] [ac|dc]")
	}
	sel := args[1]
	if _, ok := sess.sensorFor(sel); !ok {
		return fmt.Errorf("invalid sensor selector %q", sel)
	}
	mode := strings.ToLower(args[2])
	if mode != "ac" && mode != "dc" {
		return fmt.Errorf("invalid coupling mode %q", args[2])
	}
	if sel == "i" {
		sess.couplingInput = mode
	} else {
		sess.couplingOutput = mode
	}
	sess.Sink.Emit(fmt.Sprintf("ACK,rk,%s", strings.ToUpper(mode)))
	return nil
}

func handleRFReset(sess *Session, args []string) error {
	if len(args) < 2 {
		return errUsage("rr [i|o]")
	}
	sen, ok := sess.sensorFor(args[1])
	if !ok {
		return fmt.Errorf("invalid sensor selector %q", args[1])
	}
	sen.Reset()
	sess.Sink.Emit("ACK,rr,OK")
	return nil
}

func handleRFSetCal(sess *Session, args []string) error {
	if len(args) < 4 {
		return errUsage("rsc [i|o] [v|i|p] [value]")
	}
	sel := args[1]
	sen, ok := sess.sensorFor(sel)
	if !ok {
		return fmt.Errorf("invalid sensor selector %q", sel)
	}
	val, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	info := sess.Store.Info()
	cal := &info.InputCal
	if sel == "o" {
		cal = &info.OutputCal
	}
	switch args[2] {
	case "v":
		sen.SetVoltageGain(val)
		cal[0] = float32(val)
	case "i":
		sen.SetCurrentGain(val)
		cal[1] = float32(val)
	case "p":
		sen.SetPhaseDiffDeg(val)
		cal[2] = float32(val)
	default:
		return fmt.Errorf("invalid calibration field %q", args[2])
	}
	sess.Store.SetInfo(info)

	if err := sess.Store.SaveCalibrationInfo(); err != nil {
		sess.Sink.Emit("ACK,rsc,OK_SAVE_FAIL")
		return nil
	}
	sess.Sink.Emit("ACK,rsc,OK_SAVED")
	return nil
}

func handleRFGetCal(sess *Session, args []string) error {
	if len(args) < 2 {
		return errUsage("rgc [i|o]")
	}
	sel := args[1]
	sen, ok := sess.sensorFor(sel)
	if !ok {
		return fmt.Errorf("invalid sensor selector %q", sel)
	}
	sess.Sink.Emit(fmt.Sprintf("RGC,%s,%s,%s,%s,EN", sel,
		f6(sen.VoltageGain()), f6(sen.CurrentGain()), f6(sen.PhaseDiffDeg())))
	return nil
}

func handleRFSetAvg(sess *Session, args []string) error {
	if len(args) < 3 {
		return errUsage("rsa [i|o] [count]")
	}
	sen, ok := sess.sensorFor(args[1])
	if !ok {
		return fmt.Errorf("invalid sensor selector %q", args[1])
	}
	count, err := strconv.Atoi(args[2])
	if err != nil || count < 1 || count > 512 {
		sess.Sink.Emit("Average count must be between 1 and 512")
		return nil
	}
	sen.SetAveragingCount(count)
	sess.Sink.Emit("ACK,rsa,OK")
	return nil
}

func handleRFGetAvg(sess *Session, args []string) error {
	if len(args) < 2 {
		return errUsage("rga [i|o]")
	}
	sen, ok := sess.sensorFor(args[1])
	if !ok {
		return fmt.Errorf("invalid sensor selector %q", args[1])
	}
	sess.Sink.Emit(fmt.Sprintf("RGA,%s,%d,EN", args[1], sen.GetAveragingCount()))
	return nil
}
