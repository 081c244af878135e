// Package hostserial is the host-side counterpart to the board's USB CDC
// shell: a thin serial-port abstraction plus a line-oriented client that
// speaks the ASCII opcode/ACK protocol from shell.Registry.
package hostserial

import "io"

// Port represents a serial port connection. Distinct implementations
// back it: NativePort (github.com/tarm/serial, used on Linux/macOS/
// Windows) today, a mock for tests.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data.
	Flush() error
}

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g. "/dev/ttyACM0", "COM3").
	Device string

	// Baud rate. USB CDC ignores this but some OS serial stacks still
	// require a value to open the port.
	Baud int

	// Read timeout in milliseconds (0 = blocking).
	ReadTimeout int
}

// DefaultConfig returns a Config for a USB CDC-ACM device at the given
// path.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        921600,
		ReadTimeout: 200,
	}
}
