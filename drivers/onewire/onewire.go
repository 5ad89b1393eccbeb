// Package onewire implements the Dallas/Maxim 1-Wire transport used by
// device drivers such as ds18b20.
//
// Bus is the surface drivers consume. Master is a bit-banged implementation
// over a line.Pin using the standard-speed slot timings.
package onewire

import (
	"encoding/hex"

	"sensorcode-go/drivers/line"
	"sensorcode-go/errcode"

	ow "periph.io/x/conn/v3/onewire"
)

// ROM commands.
const (
	CmdReadROM     = 0x33
	CmdMatchROM    = 0x55
	CmdSkipROM     = 0xCC
	CmdSearchROM   = 0xF0
	CmdSearchAlarm = 0xEC
)

// Errors returned by the transport.
var (
	ErrNoDevice = errcode.New("onewire", errcode.NoDevice, "no presence pulse")
	ErrBadCRC   = errcode.New("onewire", errcode.BadCRC, "rom crc mismatch")
)

// ROM is a 64-bit registration code: family byte, 48-bit serial, CRC byte.
type ROM [8]byte

// Family returns the family code.
func (r ROM) Family() byte { return r[0] }

// Valid reports whether the trailing CRC matches.
func (r ROM) Valid() bool { return ow.CheckCRC(r[:]) }

// IsZero reports an unset ROM.
func (r ROM) IsZero() bool { return r == ROM{} }

// Address returns the ROM as a periph onewire.Address (family in the low byte).
func (r ROM) Address() ow.Address {
	var a uint64
	for i := 7; i >= 0; i-- {
		a = a<<8 | uint64(r[i])
	}
	return ow.Address(a)
}

func (r ROM) String() string { return hex.EncodeToString(r[:]) }

// ParseROM parses the 16 hex digit form produced by String.
func ParseROM(s string) (ROM, error) {
	var r ROM
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(r) {
		return r, errcode.InvalidParams
	}
	copy(r[:], b)
	return r, nil
}

// CRC8 returns the 1-Wire CRC (x^8+x^5+x^4+1, seed 0) of data.
// A buffer that ends in its own valid CRC yields 0.
func CRC8(data []byte) byte { return ow.CalcCRC(data) }

// Bus is the 1-Wire transport consumed by device drivers.
// Implementations are not safe for concurrent use.
type Bus interface {
	// Reset issues a reset pulse and reports whether any device answered.
	Reset() bool
	WriteBit(b bool)
	ReadBit() bool
	WriteByte(b byte)
	ReadByte() byte
	Write(p []byte)
	Read(p []byte)
	// Select addresses one device (match ROM) after a reset.
	Select(rom ROM)
	// Wait busy-waits for us microseconds.
	Wait(us uint32)
}

// Slot timings in µs (standard speed).
const (
	resetLowUs      = 480
	presenceWaitUs  = 70
	resetRecoveryUs = 410

	write1LowUs  = 6
	write1RestUs = 64
	write0LowUs  = 60
	write0RestUs = 10

	readLowUs    = 6
	readSampleUs = 9
	readRestUs   = 55
)

// Master drives a 1-Wire bus by bit-banging one open-drain line.
type Master struct {
	pin      line.Pin
	critical line.Critical
}

// NewMaster releases pin to its pull-up and returns a bus master.
// critical may be nil.
func NewMaster(pin line.Pin, critical line.Critical) *Master {
	if critical == nil {
		critical = line.NoCritical
	}
	pin.Release()
	return &Master{pin: pin, critical: critical}
}

func (m *Master) Reset() bool {
	var present bool
	m.pin.DriveLow()
	m.pin.BusyWaitMicros(resetLowUs)
	m.critical(func() {
		m.pin.Release()
		m.pin.BusyWaitMicros(presenceWaitUs)
		present = !m.pin.ReadLevel()
	})
	m.pin.BusyWaitMicros(resetRecoveryUs)
	return present
}

func (m *Master) WriteBit(b bool) {
	m.critical(func() {
		m.pin.DriveLow()
		if b {
			m.pin.BusyWaitMicros(write1LowUs)
			m.pin.Release()
			m.pin.BusyWaitMicros(write1RestUs)
			return
		}
		m.pin.BusyWaitMicros(write0LowUs)
		m.pin.Release()
		m.pin.BusyWaitMicros(write0RestUs)
	})
}

func (m *Master) ReadBit() bool {
	var b bool
	m.critical(func() {
		m.pin.DriveLow()
		m.pin.BusyWaitMicros(readLowUs)
		m.pin.Release()
		m.pin.BusyWaitMicros(readSampleUs)
		b = m.pin.ReadLevel()
	})
	m.pin.BusyWaitMicros(readRestUs)
	return b
}

// WriteByte sends b LSB first.
func (m *Master) WriteByte(b byte) {
	for i := 0; i < 8; i++ {
		m.WriteBit(b&(1<<i) != 0)
	}
}

// ReadByte receives one byte LSB first.
func (m *Master) ReadByte() byte {
	var b byte
	for i := 0; i < 8; i++ {
		if m.ReadBit() {
			b |= 1 << i
		}
	}
	return b
}

func (m *Master) Write(p []byte) {
	for _, b := range p {
		m.WriteByte(b)
	}
}

func (m *Master) Read(p []byte) {
	for i := range p {
		p[i] = m.ReadByte()
	}
}

func (m *Master) Select(rom ROM) {
	m.WriteByte(CmdMatchROM)
	m.Write(rom[:])
}

func (m *Master) Wait(us uint32) { m.pin.BusyWaitMicros(us) }

// ReadROM reads the code of the only device on the bus.
func ReadROM(b Bus) (ROM, error) {
	var r ROM
	if !b.Reset() {
		return r, ErrNoDevice
	}
	b.WriteByte(CmdReadROM)
	b.Read(r[:])
	if !r.Valid() {
		return ROM{}, ErrBadCRC
	}
	return r, nil
}
