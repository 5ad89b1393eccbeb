package platform

import (
	"sensorcode-go/services/hal/internal/core"

	"tinygo.org/x/drivers"
)

var _ core.Factories = Static{}

// Static serves fixed buses and lines. Anything not listed is unknown.
type Static struct {
	Buses map[core.ResourceID]drivers.I2C
	Lines map[int]core.Line
}

func (s Static) I2C(id core.ResourceID) (drivers.I2C, bool) {
	b, ok := s.Buses[id]
	return b, ok
}

func (s Static) Line(pin int) (core.Line, bool) {
	l, ok := s.Lines[pin]
	return l, ok
}
