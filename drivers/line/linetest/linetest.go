// Package linetest provides a virtual-time line.Pin for driver tests.
package linetest

// Segment is one stretch of constant level driven by the simulated device.
type Segment struct {
	High bool
	Us   uint32
}

// Low and High build segments.
func Low(us uint32) Segment  { return Segment{High: false, Us: us} }
func High(us uint32) Segment { return Segment{High: true, Us: us} }

// WavePin replays Wave every time the host releases the line after pulling
// it low. Time only advances through BusyWaitMicros, so polling loops see a
// deterministic timeline. Outside the wave the line idles high (pull-up).
type WavePin struct {
	Wave []Segment

	now      uint64
	start    uint64
	armed    bool
	low      bool
	lowSince uint64

	// LowPulses records how long the host held the line low, per pulse.
	LowPulses []uint32
	// Reads counts ReadLevel calls.
	Reads int
}

func (p *WavePin) ReadLevel() bool {
	p.Reads++
	if p.low {
		return false
	}
	if !p.armed {
		return true
	}
	t := p.now - p.start
	var acc uint64
	for _, s := range p.Wave {
		acc += uint64(s.Us)
		if t < acc {
			return s.High
		}
	}
	return true
}

func (p *WavePin) DriveLow() {
	if p.low {
		return
	}
	p.low = true
	p.lowSince = p.now
}

func (p *WavePin) Release() {
	if !p.low {
		return
	}
	p.low = false
	p.LowPulses = append(p.LowPulses, uint32(p.now-p.lowSince))
	p.armed = true
	p.start = p.now
}

func (p *WavePin) BusyWaitMicros(us uint32) { p.now += uint64(us) }

// Now returns the virtual time in microseconds.
func (p *WavePin) Now() uint64 { return p.now }

// Driving reports whether the host is currently pulling the line low.
func (p *WavePin) Driving() bool { return p.low }
