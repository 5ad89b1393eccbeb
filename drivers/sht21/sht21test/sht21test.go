// Package sht21test provides a scripted SHT21 behind drivers.I2C.
package sht21test

import (
	"errors"
	"sync"

	"sensorcode-go/drivers/sht21"

	"tinygo.org/x/drivers"
)

// ErrNack is returned for transactions to any other address.
var ErrNack = errors.New("sht21test: nack")

// Fake answers SHT21 commands. Raw words include the two status bits.
type Fake struct {
	mu sync.Mutex

	RawRH    uint16
	RawT     uint16
	User     byte
	Heater   byte
	Serial   [8]byte
	Firmware byte

	// CorruptCRC flips the checksum of measurement replies.
	CorruptCRC bool
	// CorruptSerialA and CorruptSerialB flip one CRC byte in the first
	// (SNB) and second (SNC/SNA) serial replies.
	CorruptSerialA bool
	CorruptSerialB bool
	// Err, when set, fails every transaction.
	Err error

	// Writes logs the write half of every transaction.
	Writes [][]byte

	lastT uint16
}

var _ drivers.I2C = (*Fake)(nil)

// New returns a sensor reading about 23.4 °C / 48.7 %RH with the power-on
// user register.
func New() *Fake {
	return &Fake{
		RawRH:    0x7000,
		RawT:     0x6664,
		User:     0x02,
		Serial:   [8]byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0},
		Firmware: 0x20,
	}
}

func (f *Fake) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	if addr != sht21.Address {
		return ErrNack
	}
	f.Writes = append(f.Writes, append([]byte(nil), w...))

	switch {
	case len(w) == 1 && w[0] == 0xE5:
		f.lastT = f.RawT
		f.word(r, f.RawRH, true)
	case len(w) == 1 && w[0] == 0xE3:
		f.word(r, f.RawT, true)
	case len(w) == 1 && w[0] == 0xE0:
		f.word(r, f.lastT, false)
	case len(w) == 1 && w[0] == 0xE7:
		r[0] = f.User
	case len(w) == 2 && w[0] == 0xE6:
		f.User = w[1]
	case len(w) == 1 && w[0] == 0x11:
		r[0] = f.Heater
	case len(w) == 2 && w[0] == 0x51:
		f.Heater = w[1]
	case len(w) == 2 && w[0] == 0xFA && w[1] == 0x0F:
		crc := byte(0)
		for i := 0; i < 4; i++ {
			crc = sht21.CRC8(crc, f.Serial[i:i+1])
			r[2*i], r[2*i+1] = f.Serial[i], crc
		}
		if f.CorruptSerialA {
			r[3] ^= 0x01
		}
	case len(w) == 2 && w[0] == 0xFC && w[1] == 0xC9:
		crc := byte(0)
		for i := 0; i < 2; i++ {
			s := f.Serial[4+2*i : 6+2*i]
			crc = sht21.CRC8(crc, s)
			r[3*i], r[3*i+1], r[3*i+2] = s[0], s[1], crc
		}
		if f.CorruptSerialB {
			r[5] ^= 0x01
		}
	case len(w) == 2 && w[0] == 0x84 && w[1] == 0xB8:
		r[0] = f.Firmware
	case len(w) == 1 && w[0] == 0xFE:
		f.User = 0x02
		f.Heater = 0
	}
	return nil
}

func (f *Fake) word(r []byte, v uint16, crc bool) {
	r[0], r[1] = byte(v>>8), byte(v)
	if crc && len(r) > 2 {
		r[2] = sht21.CRC8(0, r[:2])
		if f.CorruptCRC {
			r[2] ^= 0x80
		}
	}
}
