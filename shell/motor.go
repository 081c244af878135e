package shell

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rfmatch/motor"
)

// RegisterMotor adds the m* (motor) family: driver bring-up, clamped and
// forced moves, origin setting, limits/capacitance-range/fit-coefficient
// get-set, raw DRV8711 register access, status readback, the combined
// position stream toggle, stream-rate get/set, encoder-index readback,
// override-RPM get/set, index search, origin-on-index arming, rewind,
// sleep, and hardware reset.
//
// Grounded in DebugMode.hpp's motor-command handlers (mi/mr/mf/mo/mgp/
// mrp/mss/msg/msc/mst/mgs/msl/mgl/mfc/msd/mgi/mor/mfi/moi/mrw/mis/msw/
// mhr), wired to motor.Motor/motor.Link and to persist.Store for every
// setting the board persists across power cycles.
func RegisterMotor(r *Registry) {
	r.Register("mi", "mi [0|1]", handleMotorInit)
	r.Register("mr", "mr [0|1] [position]", handleMotorRun)
	r.Register("mf", "mf [0|1] [position]", handleMotorRunForce)
	r.Register("mo", "mo [0|1]", handleMotorSetOrigin)
	r.Register("mgp", "mgp [0|1]", handleMotorGetPos)
	r.Register("mrp", "mrp [run|stop] [rate_ms]", handleMotorPosStream)
	r.Register("mss", "mss [impRate] [viRate] [posRate]", handleSetStreamRates)
	r.Register("msg", "msg", handleGetStreamRates)
	r.Register("msc", "msc [0|1] [value]", handleMotorSetCtrlReg)
	r.Register("mst", "mst [0|1] [value]", handleMotorSetTorqueReg)
	r.Register("mgs", "mgs [0|1]", handleMotorGetStatus)
	r.Register("msl", "msl [0|1] min,max,lower,upper[,minCap,maxCap]", handleMotorSetLimits)
	r.Register("mgl", "mgl [0|1]", handleMotorGetLimits)
	r.Register("mfc", "mfc [0|1] [a0,a1,a2,a3]", handleMotorFitCoeffs)
	r.Register("msd", "msd [0|1] standby,disable,ctrl,torque,off,blank,decay,stall,drive", handleMotorSetDriverSettings)
	r.Register("mgi", "mgi [0|1]", handleMotorGetIndex)
	r.Register("mor", "mor [0|1] [rpm]", handleMotorOverrideRPM)
	r.Register("mfi", "mfi [0|1] [targetPos] [rpm]", handleMotorFindIndex)
	r.Register("moi", "moi [0|1] [position]", handleMotorOriginOnIndex)
	r.Register("mrw", "mrw [0|1]", handleMotorRewind)
	r.Register("mis", "mis [0|1] [indexPos]", handleMotorSaveIndexPos)
	r.Register("msw", "msw [0|1] [0|1]", handleMotorSleep)
	r.Register("mhr", "mhr [0|1]", handleMotorHardwareReset)
}

func motorArg(sess *Session, args []string, pos int) (*motor.Motor, int, error) {
	if len(args) <= pos {
		return nil, 0, fmt.Errorf("missing motor index")
	}
	idx, err := parseMotorIndex(args[pos])
	if err != nil {
		return nil, 0, fmt.Errorf("invalid motor index %q", args[pos])
	}
	m, ok := sess.motorFor(idx)
	if !ok {
		return nil, 0, fmt.Errorf("motor index out of range: %d", idx)
	}
	return m, idx, nil
}

func handleMotorInit(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if err := m.SetDriverConfig(motor.DefaultDriverConfig()); err != nil {
		sess.Sink.Emit(fmt.Sprintf("ACK,mi,%d,FAIL", idx))
		return nil
	}
	sess.Sink.Emit(fmt.Sprintf("ACK,mi,%d,OK", idx))
	return nil
}

func handleMotorRun(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errUsage("mr [0|1] [position]")
	}
	pos, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid position: %w", err)
	}
	clamped := m.RunTo(int32(pos))
	sess.Sink.Emit(fmt.Sprintf("ACK,mr,%d,%d,OK", idx, clamped))
	return nil
}

func handleMotorRunForce(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errUsage("mf [0|1] [position]")
	}
	pos, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid position: %w", err)
	}
	sess.Sink.Emit(fmt.Sprintf("Warning: mf bypasses motor %d's configured limits", idx))
	m.RunToForce(int32(pos))
	sess.Sink.Emit("ACK,mf,OK")
	return nil
}

func handleMotorSetOrigin(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	m.SetOrigin(0)
	sess.Sink.Emit(fmt.Sprintf("ACK,mo,%d,OK", idx))
	return nil
}

func handleMotorGetPos(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	sess.Sink.Emit(fmt.Sprintf("MGP,%d,%d,%d,EN", idx, m.ReadPos(), m.PositionPercent()))
	return nil
}

func handleMotorPosStream(sess *Session, args []string) error {
	if len(args) < 2 {
		return errUsage("mrp [run|stop] [rate_ms]")
	}
	run := args[1] == "run"
	if run && len(args) >= 3 {
		if rate, err := strconv.Atoi(args[2]); err == nil && rate >= 10 && rate <= 5000 {
			rates := sess.Stream.Rates()
			rates.MotorPos = uint64(rate)
			sess.Stream.SetRates(rates)
		}
	}
	sess.streams.posRun = run
	sess.applyStreamState()
	sess.Sink.Emit(fmt.Sprintf("ACK,mrp,%s", ackWord(run)))
	return nil
}

func handleSetStreamRates(sess *Session, args []string) error {
	if len(args) < 4 {
		return errUsage("mss [impRate] [viRate] [posRate]")
	}
	impRate, err1 := strconv.Atoi(args[1])
	viRate, err2 := strconv.Atoi(args[2])
	posRate, err3 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return fmt.Errorf("invalid stream rate")
	}
	rates := sess.Stream.Rates()
	if impRate >= 10 && impRate <= 5000 {
		rates.Impedance = uint64(impRate)
	}
	if viRate >= 10 && viRate <= 5000 {
		rates.VI = uint64(viRate)
	}
	if posRate >= 10 && posRate <= 5000 {
		rates.MotorPos = uint64(posRate)
	}
	sess.Stream.SetRates(rates)

	info := sess.Store.Info()
	info.ImpStreamRate = int32(rates.Impedance)
	info.ViStreamRate = int32(rates.VI)
	info.MotorPosStreamRate = int32(rates.MotorPos)
	sess.Store.SetInfo(info)
	if err := sess.Store.SaveStreamSettings(); err != nil {
		sess.Sink.Emit("ACK,mss,SAVE_FAIL")
		return nil
	}
	sess.Sink.Emit("ACK,mss,OK")
	return nil
}

func handleGetStreamRates(sess *Session, args []string) error {
	rates := sess.Stream.Rates()
	sess.Sink.Emit(fmt.Sprintf("SST,%d,%d,EN", rates.Impedance, rates.VI))
	sess.Sink.Emit(fmt.Sprintf("MST,%d,EN", rates.MotorPos))
	return nil
}

func handleMotorSetCtrlReg(sess *Session, args []string) error {
	_, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errUsage("msc [0|1] [value]")
	}
	val, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	if err := sess.Link.WriteReg(spiFor(idx), motor.RegCtrl, uint16(val)); err != nil {
		sess.Sink.Emit("ACK,msc,FAIL")
		return nil
	}
	sess.Sink.Emit("ACK,msc,OK")
	return nil
}

func handleMotorSetTorqueReg(sess *Session, args []string) error {
	_, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errUsage("mst [0|1] [value]")
	}
	val, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	if err := sess.Link.WriteReg(spiFor(idx), motor.RegTorque, uint16(val)); err != nil {
		sess.Sink.Emit("ACK,mst,FAIL")
		return nil
	}
	sess.Sink.Emit("ACK,mst,OK")
	return nil
}

func handleMotorGetStatus(sess *Session, args []string) error {
	_, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	regs, err := sess.Link.GetStatus(spiFor(idx))
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	names := []string{"CTRL", "TORQUE", "OFF", "BLANK", "DECAY", "STALL", "DRIVE", "STATUS"}
	for i, name := range names {
		sess.Sink.Emit(fmt.Sprintf("  %-7s 0x%04X", name, regs[i]))
	}
	hexRegs := make([]string, len(regs))
	for i, v := range regs {
		hexRegs[i] = fmt.Sprintf("%04X", v)
	}
	sess.Sink.Emit(fmt.Sprintf("MGS,%d,%s,EN", idx, strings.Join(hexRegs, ",")))
	return nil
}

func handleMotorSetLimits(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errUsage("msl [0|1] min,max,lower,upper[,minCap,maxCap]")
	}
	fields := strings.Split(args[2], ",")
	if len(fields) != 4 && len(fields) != 6 {
		return fmt.Errorf("expected 4 or 6 comma-separated values, got %d", len(fields))
	}
	vals := make([]int32, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", f, err)
		}
		vals[i] = int32(n)
	}
	m.SetLimits(motor.Limits{Min: vals[0], Max: vals[1], LowerLimit: vals[2], UpperLimit: vals[3]})

	info := sess.Store.Info()
	info.MotorLimits[idx] = [4]int32{vals[0], vals[1], vals[2], vals[3]}
	sess.Store.SetInfo(info)
	if err := sess.Store.SaveMotorLimits(); err != nil {
		sess.Sink.Emit("ACK,msl,SAVE_FAIL")
		return nil
	}

	if len(vals) == 6 {
		m.SetCapRange(motor.CapRange{MinCap: vals[4], MaxCap: vals[5]})
		if err := sess.Store.SaveMotorCaps(sess.M1, sess.M2); err != nil {
			sess.Sink.Emit("ACK,msl,SAVE_FAIL")
			return nil
		}
	}
	sess.Sink.Emit(fmt.Sprintf("Motor %d limits saved: min=%d max=%d lower=%d upper=%d", idx, vals[0], vals[1], vals[2], vals[3]))
	sess.Sink.Emit("ACK,msl,OK")
	return nil
}

func handleMotorGetLimits(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	l := m.Limits()
	c := m.CapRange()
	sess.Sink.Emit(fmt.Sprintf("MGL,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,EN",
		idx, l.Min, l.Max, l.LowerLimit, l.UpperLimit, c.MinCap, c.MaxCap,
		m.ReadPos(), m.PositionPercent(), m.Cap()))
	return nil
}

func handleMotorFitCoeffs(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) >= 3 {
		fields := strings.Split(args[2], ",")
		if len(fields) != 4 {
			return fmt.Errorf("expected 4 comma-separated coefficients, got %d", len(fields))
		}
		vals := make([]float64, 4)
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return fmt.Errorf("invalid coefficient %q: %w", f, err)
			}
			vals[i] = v
		}
		m.SetFitCoeffs(motor.FitCoeffs{A0: vals[0], A1: vals[1], A2: vals[2], A3: vals[3]})
		if err := sess.Store.SaveMotorFitCoeffs(sess.M1, sess.M2); err != nil {
			sess.Sink.Emit("ACK,mfc,SAVE_FAIL")
			return nil
		}
		sess.Sink.Emit(fmt.Sprintf("Motor %d fit coefficients saved", idx))
	}
	f := m.FitCoeffs()
	sess.Sink.Emit(fmt.Sprintf("MFC,%d,%s,%s,%s,%s,EN", idx, f6(f.A0), f6(f.A1), f6(f.A2), f6(f.A3)))
	if len(args) >= 3 {
		sess.Sink.Emit("ACK,mfc,OK")
	}
	return nil
}

func handleMotorSetDriverSettings(sess *Session, args []string) error {
	_, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errUsage("msd [0|1] standby,disable,ctrl,torque,off,blank,decay,stall,drive")
	}
	fields := strings.Split(args[2], ",")
	if len(fields) != 9 {
		return fmt.Errorf("expected 9 comma-separated values, got %d", len(fields))
	}
	vals := make([]uint16, 9)
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", f, err)
		}
		vals[i] = uint16(n)
	}
	spi := spiFor(idx)
	// standby, disable, and ctrl go straight to the CTRL register in
	// sequence, matching the board's bring-up order; the rest apply
	// through InitDriver's normal register set.
	if err := sess.Link.WriteReg(spi, motor.RegCtrl, vals[0]); err != nil {
		return fmt.Errorf("set standby: %w", err)
	}
	if err := sess.Link.WriteReg(spi, motor.RegCtrl, vals[1]); err != nil {
		return fmt.Errorf("set disable: %w", err)
	}
	if err := sess.Link.WriteReg(spi, motor.RegCtrl, vals[2]); err != nil {
		return fmt.Errorf("set ctrl: %w", err)
	}
	cfg := motor.DriverConfig{Torque: vals[3], Off: vals[4], Blank: vals[5], Decay: vals[6], Stall: vals[7], Drive: vals[8]}
	if err := sess.Link.InitDriver(spi, cfg); err != nil {
		return fmt.Errorf("apply driver settings: %w", err)
	}
	sess.Sink.Emit(fmt.Sprintf("Motor %d driver settings applied", idx))
	sess.Sink.Emit("ACK,msd,OK")
	return nil
}

func handleMotorGetIndex(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	sess.Sink.Emit(fmt.Sprintf("MXI,%d,%d,%d,EN", idx, m.ReadIndexPos(), boolToInt(m.IsStallDetected())))
	return nil
}

func handleMotorOverrideRPM(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		sess.Sink.Emit(fmt.Sprintf("Motor %d Override RPM: %d", idx, m.GetOverrideRPM()))
		return nil
	}
	rpm, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid rpm: %w", err)
	}
	m.SetOverrideRPM(uint32(rpm))
	sess.Sink.Emit("ACK,mor,OK")
	return nil
}

func handleMotorFindIndex(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) < 4 {
		return errUsage("mfi [0|1] [targetPos] [rpm]")
	}
	targetPos, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid target position: %w", err)
	}
	rpm, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid rpm: %w", err)
	}
	result := m.FindIndex(int32(targetPos), uint32(rpm), time.Millisecond)
	sess.Sink.Emit(fmt.Sprintf("MFI,%d,%d,%d,%d,%d,EN", idx,
		boolToInt(result.Found), result.IndexPos, result.MotorPosAtIndex, result.FinalPos))
	return nil
}

func handleMotorOriginOnIndex(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	pos := 0
	if len(args) >= 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid position: %w", err)
		}
		pos = n
	}
	m.SetOriginOnIndex(int32(pos))
	sess.Sink.Emit(fmt.Sprintf("Motor %d armed to latch origin %d on next index pulse", idx, pos))
	sess.Sink.Emit("ACK,moi,OK")
	return nil
}

func handleMotorRewind(sess *Session, args []string) error {
	m, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	result := m.Rewind()
	sess.Sink.Emit(fmt.Sprintf("MRW,%d,%d,%d,%d,EN", idx, boolToInt(result.Completed), result.FinalPos, result.Movement))
	return nil
}

func handleMotorSaveIndexPos(sess *Session, args []string) error {
	_, idx, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errUsage("mis [0|1] [indexPos]")
	}
	pos, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid index position: %w", err)
	}
	if err := sess.Store.SaveFirstIndexPosFor(idx, int32(pos)); err != nil {
		sess.Sink.Emit("ACK,mis,FAIL")
		return nil
	}
	sess.Sink.Emit("ACK,mis,OK")
	return nil
}

func handleMotorSleep(sess *Session, args []string) error {
	m, _, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errUsage("msw [0|1] [0|1]")
	}
	level, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if err := m.SetSleep(level == 0); err != nil {
		sess.Sink.Emit("ACK,msw,FAIL")
		return nil
	}
	sess.Sink.Emit("ACK,msw,OK")
	return nil
}

func handleMotorHardwareReset(sess *Session, args []string) error {
	m, _, err := motorArg(sess, args, 1)
	if err != nil {
		return err
	}
	if err := m.HardwareReset(motor.DefaultDriverConfig()); err != nil {
		sess.Sink.Emit("ACK,mhr,FAIL")
		return nil
	}
	sess.Sink.Emit("ACK,mhr,OK")
	return nil
}
