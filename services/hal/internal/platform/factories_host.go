//go:build !rp2040 && !rp2350

package platform

import (
	"sync"
	"time"

	"sensorcode-go/drivers/line"
	"sensorcode-go/services/hal/internal/core"
	"sensorcode-go/services/hal/internal/platform/boards"

	"tinygo.org/x/drivers"
)

// ----------------------------- I²C (host) ------------------------------------

// HostI2C implements tinygo drivers.I2C for host runs. Every transaction
// succeeds and reads back zeros.
type HostI2C struct {
	mu     sync.Mutex
	LastTx struct {
		Addr uint16
		W    []byte
		Rn   int
	}
}

func (h *HostI2C) Tx(addr uint16, w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastTx.Addr = addr
	h.LastTx.W = append([]byte(nil), w...)
	h.LastTx.Rn = len(r)
	clear(r)
	return nil
}

// ----------------------------- Lines (host) ----------------------------------

// HostPin is an open-drain line with only a pull-up attached: it reads low
// while driven and high otherwise.
type HostPin struct {
	mu  sync.Mutex
	low bool
}

var _ line.Pin = (*HostPin)(nil)

func (p *HostPin) ReadLevel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.low
}

func (p *HostPin) DriveLow() {
	p.mu.Lock()
	p.low = true
	p.mu.Unlock()
}

func (p *HostPin) Release() {
	p.mu.Lock()
	p.low = false
	p.mu.Unlock()
}

func (p *HostPin) BusyWaitMicros(us uint32) { spinMicros(us) }

func spinMicros(us uint32) {
	end := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(end) {
	}
}

// NewFactories builds inert host hardware for the plan's buses and lines.
func NewFactories(plan ResourcePlan) core.Factories {
	s := Static{
		Buses: make(map[core.ResourceID]drivers.I2C),
		Lines: make(map[int]core.Line),
	}
	for _, p := range plan.I2C {
		if boards.Pico.HasI2C(p.ID) {
			s.Buses[core.ResourceID(p.ID)] = &HostI2C{}
		}
	}
	for _, n := range plan.Lines {
		if boards.Pico.InRange(n) {
			s.Lines[n] = core.Line{Pin: &HostPin{}, Critical: line.NoCritical, Number: n}
		}
	}
	return s
}
