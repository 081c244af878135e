//go:build rp2350

package main

import (
	"machine"

	"rfmatch/diag"
)

// InitUSB initializes USB serial communication
// TinyGo automatically sets up USB CDC-ACM on RP2040
func InitUSB() {
	// Configure machine.Serial (which is USB CDC on RP2040)
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}

	// Note: On RP2040, machine.Serial is actually USB CDC, not UART
	// The USB descriptors are set by TinyGo's runtime
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes multiple bytes to USB
func USBWriteBytes(data []byte) (int, error) {
	n, err := machine.Serial.Write(data)
	return n, err
}

// usbSink is the diag.Sink that carries the shell's ASCII response lines
// out over USB CDC. It is the only sink wired into the session's AsyncSink
// on this target.
type usbSink struct{}

func (usbSink) Emit(line string) {
	_, _ = USBWriteBytes([]byte(line))
	_, _ = USBWriteBytes([]byte("\r\n"))
}

var _ diag.Sink = usbSink{}
