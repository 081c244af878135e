//go:build rp2350

package main

import (
	"machine"

	"rfmatch/diag"
)

var (
	debugUART    *machine.UART
	debugEnabled bool
)

// InitDebugUART initializes UART1 on GPIO36 (TX) and GPIO37 (RX) for boot
// diagnostics. It carries nothing else once the main loop is running; the
// shell's ASCII responses go out over USB CDC through usbSink.
func InitDebugUART() {
	debugUART = machine.UART1

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO36,
		RX:       machine.GPIO37,
	})
	if err != nil {
		debugEnabled = false
		return
	}
	debugEnabled = true
	DebugPrintln("=== RP2350 impedance matcher boot ===")
}

// DebugPrintln writes a line to the debug UART, if configured.
func DebugPrintln(s string) {
	if !debugEnabled || debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}

// debugSink adapts the debug UART to diag.Sink so it can be handed to
// diag.AsyncSink as a secondary, best-effort trace target alongside the
// primary USB sink.
type debugSink struct{}

func (debugSink) Emit(line string) { DebugPrintln(line) }

var _ diag.Sink = debugSink{}
