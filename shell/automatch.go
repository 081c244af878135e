package shell

import (
	"fmt"
	"strconv"

	"rfmatch/ams"
	"rfmatch/matching"
	"rfmatch/motor"
)

// RegisterAutoMatch adds the a* (auto-matching) family: one-shot forward
// and inverse circuit-model calculations, one-shot goal-commanded move,
// the continuous AMS loop's start/stop, and VSWR-threshold/AMS-tuning
// get/set.
//
// Grounded in DebugMode.hpp's auto-matching handlers (amc/amg/amr/ams/
// asv/agv/ass/ags), wired to matching.Algorithm for the solve and to
// ams.Engine for the continuous loop the shell only starts and stops.
func RegisterAutoMatch(r *Registry) {
	r.Register("amc", "amc <Rm> <Xm> [Rpm] [Xpm]", handleCalculateImpedances)
	r.Register("amg", "amg <Rm> <Xm> [Rpm] [Xpm]", handleCalculateGoals)
	r.Register("amr", "amr <Rm> <Xm> [Rpm] [Xpm]", handleRunToGoal)
	r.Register("ams", "ams stop | ams [start] [interval] [timeout] [logInterval]", handleAmsStartStop)
	r.Register("asv", "asv <start> <stop> <restart>", handleSetVswrThresholds)
	r.Register("agv", "agv", handleGetVswrThresholds)
	r.Register("ass", "ass <interval> <timeout> <logInterval>", handleSetAmsSettings)
	r.Register("ags", "ags", handleGetAmsSettings)
}

func parseRmXm(args []string) (float64, float64, error) {
	if len(args) < 3 {
		return 0, 0, errUsage("<Rm> <Xm> [Rpm] [Xpm]")
	}
	Rm, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid Rm: %w", err)
	}
	Xm, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid Xm: %w", err)
	}
	return Rm, Xm, nil
}

// parseOutputSensorInput reads the optional Rpm/Xpm trailing pair and
// gates their use on VSWR exceeding the high-mismatch fallback threshold,
// matching the board's own output-sensor fallback condition.
func parseOutputSensorInput(args []string, vswr float64) matching.OutputSensorInput {
	if len(args) < 5 {
		return matching.OutputSensorInput{}
	}
	Rpm, err1 := strconv.ParseFloat(args[3], 64)
	Xpm, err2 := strconv.ParseFloat(args[4], 64)
	if err1 != nil || err2 != nil {
		return matching.OutputSensorInput{}
	}
	return matching.OutputSensorInput{Rpm: Rpm, Xpm: Xpm, UseOutputForRC: vswr > 2.0}
}

func handleCalculateImpedances(sess *Session, args []string) error {
	Rm, Xm, err := parseRmXm(args)
	if err != nil {
		return err
	}
	vswr := matching.VSWR(Rm, Xm)
	vvc0 := float64(sess.M1.Cap()) / 100.0
	vvc1 := float64(sess.M2.Cap()) / 100.0
	pts := sess.Alg.CalculateImpedances(Rm, Xm, vvc0, vvc1)

	sess.Sink.Emit(fmt.Sprintf("Point A: R=%s X=%s", f6(pts.RA), f6(pts.XA)))
	sess.Sink.Emit(fmt.Sprintf("Point B: R=%s X=%s", f6(pts.RB), f6(pts.XB)))
	sess.Sink.Emit(fmt.Sprintf("Point C: R=%s X=%s", f6(pts.RC), f6(pts.XC)))
	sess.Sink.Emit(fmt.Sprintf("Point D: R=%s X=%s", f6(pts.RD), f6(pts.XD)))
	sess.Sink.Emit(fmt.Sprintf("Point E: R=%s X=%s", f6(pts.RE), f6(pts.XE)))
	sess.Sink.Emit(fmt.Sprintf("Plasma:  R=%s X=%s VSWR=%s", f6(pts.Rp), f6(pts.Xp), f6(vswr)))

	sess.Sink.Emit(fmt.Sprintf("AMC,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,EN",
		f6(pts.RA), f6(pts.XA), f6(pts.RB), f6(pts.XB), f6(pts.RC), f6(pts.XC),
		f6(pts.RD), f6(pts.XD), f6(pts.RE), f6(pts.XE), f6(pts.Rp), f6(pts.Xp), f6(vswr)))
	sess.Sink.Emit("ACK,amc,OK")
	return nil
}

func handleCalculateGoals(sess *Session, args []string) error {
	Rm, Xm, err := parseRmXm(args)
	if err != nil {
		return err
	}
	vswr := matching.VSWR(Rm, Xm)
	out := parseOutputSensorInput(args, vswr)

	vvc0 := float64(sess.M1.Cap()) / 100.0
	vvc1 := float64(sess.M2.Cap()) / 100.0
	goals := sess.Alg.CalculateMatchingGoals(Rm, Xm, vvc0, vvc1, out)

	step0g0 := sess.M1.StepOfCap(goals.VVC0Goal0)
	step1g0 := sess.M2.StepOfCap(goals.VVC1Goal0)
	step0g1 := sess.M1.StepOfCap(goals.VVC0Goal1)
	step1g1 := sess.M2.StepOfCap(goals.VVC1Goal1)

	sess.Sink.Emit(fmt.Sprintf("RA goal=%s XA goal=%s", f6(goals.RAGoal), f6(goals.XAGoal)))
	sess.Sink.Emit(fmt.Sprintf("RC=%s XC=%s XD=%s", f6(goals.RCCalculated), f6(goals.XCCalculated), f6(goals.XDCalculated)))
	sess.Sink.Emit(fmt.Sprintf("Goal 0: VVC0=%s VVC1=%s valid=%v", f6(goals.VVC0Goal0), f6(goals.VVC1Goal0), goals.Valid0))
	sess.Sink.Emit(fmt.Sprintf("Goal 1: VVC0=%s VVC1=%s valid=%v", f6(goals.VVC0Goal1), f6(goals.VVC1Goal1), goals.Valid1))

	sess.Sink.Emit(fmt.Sprintf("AMG,%s,%s,%d,%d,%d,%s,%s,%d,%d,%d,EN",
		f6(goals.VVC0Goal0), f6(goals.VVC1Goal0), step0g0, step1g0, boolToInt(goals.Valid0),
		f6(goals.VVC0Goal1), f6(goals.VVC1Goal1), step0g1, step1g1, boolToInt(goals.Valid1)))
	sess.Sink.Emit("ACK,amg,OK")
	return nil
}

func withinMotorCapRange(m *motor.Motor, capPF float64) bool {
	r := m.CapRange()
	return capPF >= float64(r.MinCap)/100.0 && capPF <= float64(r.MaxCap)/100.0
}

func handleRunToGoal(sess *Session, args []string) error {
	Rm, Xm, err := parseRmXm(args)
	if err != nil {
		return err
	}
	vswr := matching.VSWR(Rm, Xm)
	out := parseOutputSensorInput(args, vswr)

	vvc0 := float64(sess.M1.Cap()) / 100.0
	vvc1 := float64(sess.M2.Cap()) / 100.0
	goals := sess.Alg.CalculateMatchingGoals(Rm, Xm, vvc0, vvc1, out)

	goal0Valid := goals.Valid0 && withinMotorCapRange(sess.M1, goals.VVC0Goal0) && withinMotorCapRange(sess.M2, goals.VVC1Goal0)
	goal1Valid := goals.Valid1 && withinMotorCapRange(sess.M1, goals.VVC0Goal1) && withinMotorCapRange(sess.M2, goals.VVC1Goal1)

	selected := -1
	var step0, step1 int32
	switch {
	case goal0Valid:
		selected = 0
		step0 = sess.M1.StepOfCap(goals.VVC0Goal0)
		step1 = sess.M2.StepOfCap(goals.VVC1Goal0)
	case goal1Valid:
		selected = 1
		step0 = sess.M1.StepOfCap(goals.VVC0Goal1)
		step1 = sess.M2.StepOfCap(goals.VVC1Goal1)
	}
	if selected < 0 {
		sess.Sink.Emit("No valid matching goal found within motor capacitance ranges")
		sess.Sink.Emit("ACK,amr,NO_VALID_GOAL")
		return nil
	}

	step0 = sess.M1.RunTo(step0)
	step1 = sess.M2.RunTo(step1)
	sess.Sink.Emit(fmt.Sprintf("AMR,%d,%d,%d,EN", selected, step0, step1))
	sess.Sink.Emit("ACK,amr,OK")
	return nil
}

func handleAmsStartStop(sess *Session, args []string) error {
	if len(args) >= 2 && args[1] == "stop" {
		sess.AMS.Stop()
		sess.Sink.Emit("ACK,ams,STOP")
		return nil
	}
	if len(args) >= 2 && args[1] == "start" {
		args = append([]string{args[0]}, args[2:]...)
	}

	interval := 1
	timeout := 0
	logInterval := 1
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			interval = clampInt(n, 1, 1000)
		}
	}
	if len(args) >= 3 {
		if n, err := strconv.Atoi(args[2]); err == nil {
			if n != 0 {
				n = clampInt(n, 100, 60000)
			}
			timeout = n
		}
	}
	if len(args) >= 4 {
		if n, err := strconv.Atoi(args[3]); err == nil {
			logInterval = clampInt(n, 1, 1000)
		}
	}

	sess.Sink.Emit(fmt.Sprintf("Starting AMS: interval=%dms timeout=%dms logInterval=%d", interval, timeout, logInterval))
	sess.AMS.Start(uint64(interval), uint64(timeout), logInterval)
	sess.Sink.Emit("ACK,ams,START")
	return nil
}

func handleSetVswrThresholds(sess *Session, args []string) error {
	if len(args) < 4 {
		return errUsage("asv <start> <stop> <restart>")
	}
	start, err1 := strconv.ParseFloat(args[1], 64)
	stop, err2 := strconv.ParseFloat(args[2], 64)
	restart, err3 := strconv.ParseFloat(args[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return fmt.Errorf("invalid VSWR value")
	}
	if start < 1.0 || start > 10.0 {
		start = 1.04
	}
	if stop < 1.0 || stop > 5.0 {
		stop = 1.02
	}
	if restart < 1.0 || restart > 10.0 {
		restart = 1.04
	}
	sess.AMS.SetThresholds(ams.Thresholds{Start: start, Stop: stop, Restart: restart})

	info := sess.Store.Info()
	info.VswrStart, info.VswrStop, info.VswrRestart = float32(start), float32(stop), float32(restart)
	sess.Store.SetInfo(info)
	if err := sess.Store.SaveVswrSettings(); err != nil {
		sess.Sink.Emit("ACK,asv,FRAM_ERROR")
		return nil
	}
	sess.Sink.Emit("ACK,asv,OK")
	return nil
}

func handleGetVswrThresholds(sess *Session, args []string) error {
	t := sess.AMS.Thresholds()
	sess.Sink.Emit(fmt.Sprintf("VSW,%s,%s,%s,EN", f6(t.Start), f6(t.Stop), f6(t.Restart)))
	sess.Sink.Emit("ACK,agv,OK")
	return nil
}

func handleSetAmsSettings(sess *Session, args []string) error {
	if len(args) < 4 {
		return errUsage("ass <interval> <timeout> <logInterval>")
	}
	interval, err1 := strconv.Atoi(args[1])
	timeout, err2 := strconv.Atoi(args[2])
	logInterval, err3 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return fmt.Errorf("invalid AMS settings")
	}
	interval = clampInt(interval, 1, 1000)
	if timeout != 0 {
		timeout = clampInt(timeout, 100, 60000)
	}
	logInterval = clampInt(logInterval, 1, 1000)

	info := sess.Store.Info()
	info.AmsInterval, info.AmsTimeout, info.AmsLogInterval = int32(interval), int32(timeout), int32(logInterval)
	sess.Store.SetInfo(info)
	if err := sess.Store.SaveAmsSettings(); err != nil {
		sess.Sink.Emit("ACK,ass,FRAM_ERROR")
		return nil
	}
	sess.Sink.Emit("ACK,ass,OK")
	return nil
}

func handleGetAmsSettings(sess *Session, args []string) error {
	info := sess.Store.Info()
	sess.Sink.Emit(fmt.Sprintf("AST,%d,%d,%d,EN", info.AmsInterval, info.AmsTimeout, info.AmsLogInterval))
	sess.Sink.Emit("ACK,ags,OK")
	return nil
}
