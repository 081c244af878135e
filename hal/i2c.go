package hal

import "time"

// I2C is the bus used for the FRAM/motion-board link. Every transfer is
// send-then-receive with a fixed post-send delay, matching the single
// I²C master's no-reentrancy contract in the concurrency model: there is
// never more than one transfer in flight.
type I2C interface {
	// Send writes data to the device at addr.
	Send(addr uint8, data []byte) error
	// Recv reads len(data) bytes from the device at addr into data.
	Recv(addr uint8, data []byte) error
}

var globalI2C I2C

// SetI2CDriver installs the I2C backend.
func SetI2CDriver(d I2C) {
	globalI2C = d
}

// MustI2C returns the installed I2C backend, panicking if none was set.
func MustI2C() I2C {
	if globalI2C == nil {
		panic("hal: I2C driver not configured")
	}
	return globalI2C
}

// PostSendDelay is the fixed settle time the companion motion-board
// device needs between receiving a command and being ready to respond,
// grounded in the original firmware's usleep(5000) calls around every
// FRAM and register transfer.
const PostSendDelay = 5 * time.Millisecond

// Sleep is a package-level hook so tests can stub out the real delay;
// production code always calls hal.Sleep rather than time.Sleep directly.
var Sleep = time.Sleep
