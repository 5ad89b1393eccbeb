// Package drvshim lets a driver be constructed once, outside any job, and
// still only reach the bus from inside the worker that owns it.
package drvshim

import (
	"sensorcode-go/errcode"

	"tinygo.org/x/drivers"
)

var _ drivers.I2C = (*HotI2C)(nil)

// HotI2C is a drivers.I2C whose backing bus is bound per job. Transactions
// attempted while unbound fail with errcode.Busy.
type HotI2C struct {
	bus drivers.I2C
}

// Bind attaches the worker's bus. Pass nil to detach.
func (h *HotI2C) Bind(bus drivers.I2C) { h.bus = bus }

// Bound reports whether a bus is attached.
func (h *HotI2C) Bound() bool { return h.bus != nil }

func (h *HotI2C) Tx(addr uint16, w, r []byte) error {
	if h.bus == nil {
		return errcode.Busy
	}
	return h.bus.Tx(addr, w, r)
}
