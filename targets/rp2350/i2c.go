//go:build rp2350

package main

import (
	"machine"

	"rfmatch/hal"
)

// machineI2C implements hal.I2C over TinyGo's machine.I2C0, the bus the
// FRAM chip and the motion-controller board share. There is only ever one
// transfer in flight, matching hal.I2C's no-reentrancy contract.
type machineI2C struct {
	bus *machine.I2C
}

func newMachineI2C() *machineI2C {
	bus := machine.I2C0
	bus.Configure(machine.I2CConfig{Frequency: machine.KHz400})
	return &machineI2C{bus: bus}
}

func (m *machineI2C) Send(addr uint8, data []byte) error {
	return m.bus.Tx(uint16(addr), data, nil)
}

func (m *machineI2C) Recv(addr uint8, data []byte) error {
	return m.bus.Tx(uint16(addr), nil, data)
}

var _ hal.I2C = (*machineI2C)(nil)
