package shell

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// RegisterDevice adds the d* (device) family: help, leave-shell, product
// info, and FRAM backup/restore/single-write.
//
// Grounded in DebugMode.hpp's device-command handlers (dh/da/dsi/dgi/dfb/
// dfr/dfw), using motor.Link's companion-device FRAM transfer for the raw
// byte plumbing and persist.Store for the product-info fields.
func RegisterDevice(r *Registry) {
	r.Register("dh", "dh", handleHelp(r))
	r.Register("da", "da", handleLeaveShell)
	r.Register("dsi", "dsi Model,Date,Serial", handleSetInfo)
	r.Register("dgi", "dgi", handleGetInfo)
	r.Register("dfb", "dfb [length]", handleFramBackup)
	r.Register("dfr", "dfr [length] [hex_data]", handleFramRestore)
	r.Register("dfw", "dfw [addr_hex] [data_hex]", handleFramWrite)
}

func handleHelp(r *Registry) Handler {
	return func(sess *Session, args []string) error {
		sess.Sink.Emit("=== Command Reference ===")
		sess.Sink.Emit("Pattern: [category][action][target]")
		sess.Sink.Emit("r=RF, m=Motor, d=Device")
		for _, cmd := range r.Commands() {
			sess.Sink.Emit(fmt.Sprintf("  %-5s %s", cmd.Name, cmd.Usage))
		}
		return nil
	}
}

func handleLeaveShell(sess *Session, args []string) error {
	sess.Sink.Emit("ACK,da,OK")
	return nil
}

func handleSetInfo(sess *Session, args []string) error {
	if len(args) < 2 {
		return errUsage("dsi Model,Date,Serial")
	}
	fields := strings.SplitN(args[1], ",", 3)
	if len(fields) != 3 {
		sess.Sink.Emit("Invalid format, use: dsi Model,Date,Serial")
		return nil
	}
	info := sess.Store.Info()
	info.ModelName, info.MakeDate, info.SerialNum = fields[0], fields[1], fields[2]
	sess.Store.SetInfo(info)
	if err := sess.Store.SaveModelName(); err != nil {
		sess.Sink.Emit("ACK,dsi,SAVE_FAIL")
		return nil
	}
	if err := sess.Store.SaveMakeDate(); err != nil {
		sess.Sink.Emit("ACK,dsi,SAVE_FAIL")
		return nil
	}
	if err := sess.Store.SaveSerialNum(); err != nil {
		sess.Sink.Emit("ACK,dsi,SAVE_FAIL")
		return nil
	}
	sess.Sink.Emit("ACK,dsi,OK")
	return nil
}

func handleGetInfo(sess *Session, args []string) error {
	info := sess.Store.Info()
	sess.Sink.Emit(fmt.Sprintf("DGI,%s,%s,%s,EN", info.ModelName, info.MakeDate, info.SerialNum))
	return nil
}

const (
	defaultFramBackupLength = 0x0150
	framBackupMin           = 16
	framBackupMax           = 2048
	framChunkSize           = 32
	framRestoreMaxBytes     = 512
	framWriteMaxBytes       = 64
)

func handleFramBackup(sess *Session, args []string) error {
	length := defaultFramBackupLength
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			length = n
		}
	}
	length = clampInt(length, framBackupMin, framBackupMax)

	sess.Sink.Emit(fmt.Sprintf("--- FRAM Backup (%d bytes) ---", length))
	var buf strings.Builder
	for addr := 0; addr < length; addr += framChunkSize {
		readLen := framChunkSize
		if addr+readLen > length {
			readLen = length - addr
		}
		data, err := sess.Link.FramRead(uint16(addr), uint8(readLen))
		if err != nil {
			return fmt.Errorf("fram read at 0x%04X: %w", addr, err)
		}
		buf.WriteString(hex.EncodeToString(data))
	}
	sess.Sink.Emit(fmt.Sprintf("DFB,%d,%s,EN", length, strings.ToUpper(buf.String())))
	return nil
}

func handleFramRestore(sess *Session, args []string) error {
	if len(args) < 3 {
		return errUsage("dfr [length] [hex_data]")
	}
	expected, _ := strconv.Atoi(args[1])
	data, err := hex.DecodeString(args[2])
	if err != nil {
		return fmt.Errorf("invalid hex data: %w", err)
	}
	if len(data) != expected {
		sess.Sink.Emit(fmt.Sprintf("Warning: expected %d bytes, got %d", expected, len(data)))
	}
	if len(data) > framRestoreMaxBytes {
		data = data[:framRestoreMaxBytes]
	}
	for addr := 0; addr < len(data); addr += framChunkSize {
		end := addr + framChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := sess.Link.FramWrite(uint16(addr), data[addr:end]); err != nil {
			return fmt.Errorf("fram write at 0x%04X: %w", addr, err)
		}
	}
	sess.Sink.Emit("ACK,dfr,OK")
	return nil
}

func handleFramWrite(sess *Session, args []string) error {
	if len(args) < 3 {
		return errUsage("dfw [addr_hex] [data_hex]")
	}
	addr, err := strconv.ParseUint(args[1], 16, 16)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	data, err := hex.DecodeString(args[2])
	if err != nil {
		return fmt.Errorf("invalid hex data: %w", err)
	}
	if len(data) > framWriteMaxBytes {
		data = data[:framWriteMaxBytes]
	}
	if err := sess.Link.FramWrite(uint16(addr), data); err != nil {
		sess.Sink.Emit("ACK,dfw,FAIL")
		return nil
	}
	sess.Sink.Emit("ACK,dfw,OK")
	return nil
}
