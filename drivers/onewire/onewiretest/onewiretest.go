// Package onewiretest simulates a 1-Wire bus populated with DS18B20-like
// devices at the byte/bit level of onewire.Bus.
package onewiretest

import "sensorcode-go/drivers/onewire"

// MakeROM builds a ROM with a valid CRC.
func MakeROM(family byte, serial uint64) onewire.ROM {
	var r onewire.ROM
	r[0] = family
	for i := 1; i < 7; i++ {
		r[i] = byte(serial)
		serial >>= 8
	}
	r[7] = onewire.CRC8(r[:7])
	return r
}

// Device is one simulated slave.
type Device struct {
	ROM        onewire.ROM
	Scratchpad [9]byte
	Alarm      bool
	Parasite   bool
	// ConvertPolls is how many status reads report "busy" after 0x44.
	// Negative means the conversion never completes.
	ConvertPolls int

	converting bool
	polls      int
}

// SetScratchpad stores sp and fixes up its CRC byte.
func (d *Device) SetScratchpad(sp [8]byte) {
	copy(d.Scratchpad[:8], sp[:])
	d.Scratchpad[8] = onewire.CRC8(sp[:])
}

type mode int

const (
	modeROM mode = iota
	modeMatch
	modeReadROM
	modeSearch
	modeFunction
	modeConvert
	modeReadScratch
	modeWriteScratch
	modePower
	modeIdle
)

// Bus implements onewire.Bus over a set of simulated devices.
type Bus struct {
	Devices []*Device
	// Written logs every byte the master sent, including ROM commands.
	Written []byte
	Resets  int
	Waited  uint32

	mode     mode
	selected []*Device
	buf      []byte
	pos      int

	// search state
	bitIdx   int
	phase    int
	searched []*Device
}

var _ onewire.Bus = (*Bus)(nil)

func (b *Bus) Reset() bool {
	b.Resets++
	b.mode = modeROM
	b.selected = nil
	b.buf = b.buf[:0]
	b.pos = 0
	return len(b.Devices) > 0
}

func (b *Bus) WriteByte(v byte) {
	b.Written = append(b.Written, v)
	switch b.mode {
	case modeROM:
		switch v {
		case onewire.CmdReadROM:
			b.mode = modeReadROM
			if len(b.Devices) > 0 {
				b.selected = b.Devices[:1]
			}
			b.pos = 0
		case onewire.CmdMatchROM:
			b.mode = modeMatch
			b.buf = b.buf[:0]
		case onewire.CmdSkipROM:
			b.selected = b.Devices
			b.mode = modeFunction
		case onewire.CmdSearchROM, onewire.CmdSearchAlarm:
			b.searched = b.searched[:0]
			for _, d := range b.Devices {
				if v == onewire.CmdSearchROM || d.Alarm {
					b.searched = append(b.searched, d)
				}
			}
			b.mode = modeSearch
			b.bitIdx, b.phase = 0, 0
		default:
			b.mode = modeIdle
		}
	case modeMatch:
		b.buf = append(b.buf, v)
		if len(b.buf) == 8 {
			var r onewire.ROM
			copy(r[:], b.buf)
			b.selected = nil
			for _, d := range b.Devices {
				if d.ROM == r {
					b.selected = append(b.selected, d)
				}
			}
			b.mode = modeFunction
		}
	case modeFunction:
		b.function(v)
	case modeWriteScratch:
		for _, d := range b.selected {
			d.Scratchpad[2+b.pos] = v
		}
		b.pos++
		if b.pos == 3 {
			for _, d := range b.selected {
				d.Scratchpad[8] = onewire.CRC8(d.Scratchpad[:8])
			}
			b.mode = modeIdle
		}
	}
}

func (b *Bus) function(v byte) {
	switch v {
	case 0x44:
		for _, d := range b.selected {
			d.converting = true
			d.polls = 0
		}
		b.mode = modeConvert
	case 0xBE:
		b.mode = modeReadScratch
		b.pos = 0
	case 0x4E:
		b.mode = modeWriteScratch
		b.pos = 0
	case 0xB4:
		b.mode = modePower
	default:
		b.mode = modeIdle
	}
}

func (b *Bus) ReadBit() bool {
	switch b.mode {
	case modeSearch:
		return b.searchBit()
	case modeConvert:
		done := true
		for _, d := range b.selected {
			if !d.converting {
				continue
			}
			if d.ConvertPolls < 0 || d.polls < d.ConvertPolls {
				d.polls++
				done = false
				continue
			}
			d.converting = false
		}
		return done
	case modePower:
		for _, d := range b.selected {
			if d.Parasite {
				return false
			}
		}
		return true
	}
	return true
}

// searchBit returns the wired-AND of the current bit (phase 0) or its
// complement (phase 1) over all remaining participants.
func (b *Bus) searchBit() bool {
	v := true
	for _, d := range b.searched {
		bit := romBit(d.ROM, b.bitIdx)
		if b.phase == 1 {
			bit = !bit
		}
		v = v && bit
	}
	b.phase++
	return v
}

func (b *Bus) WriteBit(v bool) {
	if b.mode != modeSearch || b.phase != 2 {
		return
	}
	keep := b.searched[:0]
	for _, d := range b.searched {
		if romBit(d.ROM, b.bitIdx) == v {
			keep = append(keep, d)
		}
	}
	b.searched = keep
	b.bitIdx++
	b.phase = 0
	if b.bitIdx == 64 {
		b.mode = modeIdle
	}
}

func (b *Bus) ReadByte() byte {
	switch b.mode {
	case modeReadROM:
		if len(b.selected) == 0 || b.pos >= 8 {
			return 0xFF
		}
		v := b.selected[0].ROM[b.pos]
		b.pos++
		return v
	case modeReadScratch:
		if len(b.selected) == 0 || b.pos >= 9 {
			return 0xFF
		}
		v := b.selected[0].Scratchpad[b.pos]
		b.pos++
		return v
	}
	var v byte
	for i := 0; i < 8; i++ {
		if b.ReadBit() {
			v |= 1 << i
		}
	}
	return v
}

func (b *Bus) Write(p []byte) {
	for _, v := range p {
		b.WriteByte(v)
	}
}

func (b *Bus) Read(p []byte) {
	for i := range p {
		p[i] = b.ReadByte()
	}
}

func (b *Bus) Select(rom onewire.ROM) {
	b.WriteByte(onewire.CmdMatchROM)
	b.Write(rom[:])
}

func (b *Bus) Wait(us uint32) { b.Waited += us }

func romBit(r onewire.ROM, i int) bool { return r[i/8]&(1<<(i%8)) != 0 }
