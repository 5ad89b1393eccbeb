//go:build rp2040 || rp2350

package platform

import (
	"machine"
	"runtime/interrupt"
	"time"

	"sensorcode-go/drivers/line"
	"sensorcode-go/services/hal/internal/core"
	"sensorcode-go/services/hal/internal/platform/boards"

	"tinygo.org/x/drivers"
)

// NewFactories configures the plan's I²C controllers and sensor lines.
func NewFactories(plan ResourcePlan) core.Factories {
	s := Static{
		Buses: make(map[core.ResourceID]drivers.I2C),
		Lines: make(map[int]core.Line),
	}
	for _, p := range plan.I2C {
		var hw *machine.I2C
		switch p.ID {
		case "i2c0":
			hw = machine.I2C0
		case "i2c1":
			hw = machine.I2C1
		default:
			continue
		}
		sda := machine.Pin(p.SDA)
		scl := machine.Pin(p.SCL)
		err := hw.Configure(machine.I2CConfig{
			SCL:       scl,
			SDA:       sda,
			Frequency: p.Hz,
		})
		if err != nil {
			continue
		}
		s.Buses[core.ResourceID(p.ID)] = hw
	}
	for _, n := range plan.Lines {
		if !boards.Pico.InRange(n) {
			continue
		}
		s.Lines[n] = core.Line{Pin: &rp2Pin{p: machine.Pin(n)}, Critical: critical, Number: n}
	}
	return s
}

// rp2Pin emulates open drain: low is an output driving 0, high is an input
// with the pull-up enabled.
type rp2Pin struct{ p machine.Pin }

var _ line.Pin = (*rp2Pin)(nil)

func (r *rp2Pin) ReadLevel() bool { return r.p.Get() }

func (r *rp2Pin) DriveLow() {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Low()
}

func (r *rp2Pin) Release() {
	r.p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

func (r *rp2Pin) BusyWaitMicros(us uint32) {
	end := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(end) {
	}
}

// critical masks interrupts on the calling core for the duration of fn.
func critical(fn func()) {
	state := interrupt.Disable()
	fn()
	interrupt.Restore(state)
}
