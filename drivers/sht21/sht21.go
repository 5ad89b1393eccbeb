// Package sht21 provides a driver for the Sensirion SHT21 (HTU21D-compatible)
// humidity/temperature sensor.
//
// All measurements use the hold-master commands, so every read is a single
// write-then-read I2C transaction. Replies are validated with the Sensirion
// CRC-8; a mismatch yields ErrDataCorrupted and no value. Bus errors are
// returned unchanged.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package sht21

import (
	"time"

	"sensorcode-go/errcode"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// Address is the fixed I2C address.
const Address = 0x40

const (
	cmdHumidityHold    = 0xE5
	cmdTemperatureHold = 0xE3
	cmdTemperatureLast = 0xE0
	cmdSoftReset       = 0xFE

	regUserRead    = 0xE7
	regUserWrite   = 0xE6
	regHeaterRead  = 0x11
	regHeaterWrite = 0x51

	userHeaterBit = 0x04
	userResMask   = 0x81
	heaterLevel   = 0x0F
)

var (
	cmdSerialA  = []byte{0xFA, 0x0F}
	cmdSerialB  = []byte{0xFC, 0xC9}
	cmdFirmware = []byte{0x84, 0xB8}
)

// ErrDataCorrupted is returned when a reply fails its checksum.
var ErrDataCorrupted = errcode.New("sht21", errcode.DataCorrupted, "crc mismatch")

// Resolution selects the RH/T measurement resolution (user register bits 7
// and 0).
type Resolution uint8

const (
	RH12T14 Resolution = 0
	RH8T12  Resolution = 1
	RH10T13 Resolution = 2
	RH11T11 Resolution = 3
)

// Measurement is one humidity reading with the temperature of the same
// conversion.
type Measurement struct {
	Temperature float32 // °C
	Humidity    float32 // %RH
	Time        time.Time
}

// Env converts the reading to periph physical units.
func (m Measurement) Env() physic.Env {
	return physic.Env{
		Temperature: physic.ZeroCelsius + physic.Temperature(float64(m.Temperature)*float64(physic.Celsius)),
		Humidity:    physic.RelativeHumidity(float64(m.Humidity) * float64(physic.PercentRH)),
	}
}

// Device wraps an I2C connection to an SHT21.
type Device struct {
	bus     drivers.I2C
	Address uint16

	// Now stamps measurements. Defaults to time.Now.
	Now func() time.Time

	buf  [3]byte
	last Measurement
}

// New creates a device handle. It does not touch the bus.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address, Now: time.Now}
}

// Humidity triggers a hold-master RH measurement and returns %RH.
func (d *Device) Humidity() (float32, error) {
	raw, err := d.readRaw(cmdHumidityHold, true)
	if err != nil {
		return 0, err
	}
	return DecodeHumidity(raw), nil
}

// Temperature triggers a hold-master temperature measurement and returns °C.
func (d *Device) Temperature() (float32, error) {
	raw, err := d.readRaw(cmdTemperatureHold, true)
	if err != nil {
		return 0, err
	}
	return DecodeTemperature(raw), nil
}

// TemperatureLast returns the temperature taken during the previous humidity
// measurement. The sensor sends no CRC for this command.
func (d *Device) TemperatureLast() (float32, error) {
	raw, err := d.readRaw(cmdTemperatureLast, false)
	if err != nil {
		return 0, err
	}
	return DecodeTemperature(raw), nil
}

// Measure reads humidity and the temperature of the same conversion and
// caches the pair. The cache is left untouched on error.
func (d *Device) Measure() (Measurement, error) {
	rh, err := d.Humidity()
	if err != nil {
		return Measurement{}, err
	}
	t, err := d.TemperatureLast()
	if err != nil {
		return Measurement{}, err
	}
	d.last = Measurement{Temperature: t, Humidity: rh, Time: d.Now()}
	return d.last, nil
}

// Last returns the most recent Measure result.
func (d *Device) Last() Measurement { return d.last }

func (d *Device) readRaw(cmd byte, withCRC bool) (uint16, error) {
	n := 2
	if withCRC {
		n = 3
	}
	data := d.buf[:n]
	if err := d.bus.Tx(d.Address, []byte{cmd}, data); err != nil {
		return 0, err
	}
	if withCRC && CRC8(0, data[:2]) != data[2] {
		return 0, ErrDataCorrupted
	}
	return uint16(data[0])<<8 | uint16(data[1]), nil
}

// SerialNumber reads the 64-bit electronic identification code, SNA/SNB/SNC
// ordered as in the datasheet.
func (d *Device) SerialNumber() ([8]byte, error) {
	var data [14]byte
	if err := d.bus.Tx(d.Address, cmdSerialA, data[:8]); err != nil {
		return [8]byte{}, err
	}
	if err := d.bus.Tx(d.Address, cmdSerialB, data[8:]); err != nil {
		return [8]byte{}, err
	}

	var sn [8]byte
	k := 0
	// First reply: four data bytes, each followed by the running CRC.
	crc := byte(0)
	for i := 0; i < 8; i += 2 {
		crc = CRC8(crc, data[i:i+1])
		if data[i+1] != crc {
			return [8]byte{}, ErrDataCorrupted
		}
		sn[k] = data[i]
		k++
	}
	// Second reply: two words, each followed by the running CRC.
	crc = 0
	for i := 8; i < 14; i += 3 {
		crc = CRC8(crc, data[i:i+2])
		if data[i+2] != crc {
			return [8]byte{}, ErrDataCorrupted
		}
		sn[k], sn[k+1] = data[i], data[i+1]
		k += 2
	}
	return sn, nil
}

// FirmwareRevision returns the firmware revision byte.
func (d *Device) FirmwareRevision() (byte, error) {
	r := d.buf[:1]
	if err := d.bus.Tx(d.Address, cmdFirmware, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

// SoftReset reboots the sensor. Allow 15 ms before the next command.
func (d *Device) SoftReset() error {
	return d.bus.Tx(d.Address, []byte{cmdSoftReset}, nil)
}

// Resolution returns the configured measurement resolution.
func (d *Device) Resolution() (Resolution, error) {
	r, err := d.readReg(regUserRead)
	if err != nil {
		return 0, err
	}
	return Resolution((r>>6)&0x02 | r&0x01), nil
}

// SetResolution updates user register bits 7 and 0, preserving the rest.
func (d *Device) SetResolution(res Resolution) error {
	r, err := d.readReg(regUserRead)
	if err != nil {
		return err
	}
	r &^= userResMask
	r |= byte(res&0x02)<<6 | byte(res&0x01)
	return d.writeReg(regUserWrite, r)
}

// Heater returns the on-chip heater state and its current level (0..15).
func (d *Device) Heater() (on bool, level uint8, err error) {
	r, err := d.readReg(regUserRead)
	if err != nil {
		return false, 0, err
	}
	h, err := d.readReg(regHeaterRead)
	if err != nil {
		return false, 0, err
	}
	return r&userHeaterBit != 0, h & heaterLevel, nil
}

// SetHeater switches the heater and sets its level, preserving the other bits
// of both registers.
func (d *Device) SetHeater(on bool, level uint8) error {
	r, err := d.readReg(regUserRead)
	if err != nil {
		return err
	}
	h, err := d.readReg(regHeaterRead)
	if err != nil {
		return err
	}

	r &^= userHeaterBit
	if on {
		r |= userHeaterBit
	}
	if err := d.writeReg(regUserWrite, r); err != nil {
		return err
	}
	h = h&^heaterLevel | level&heaterLevel
	return d.writeReg(regHeaterWrite, h)
}

func (d *Device) readReg(reg byte) (byte, error) {
	r := d.buf[:1]
	if err := d.bus.Tx(d.Address, []byte{reg}, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (d *Device) writeReg(reg, v byte) error {
	return d.bus.Tx(d.Address, []byte{reg, v}, nil)
}

// DecodeHumidity converts a raw RH word to %RH. Status bits are ignored.
func DecodeHumidity(raw uint16) float32 {
	return 125.0/65536.0*float32(raw&^0x3) - 6
}

// DecodeTemperature converts a raw temperature word to °C. Status bits are
// ignored.
func DecodeTemperature(raw uint16) float32 {
	return 175.72/65536.0*float32(raw&^0x3) - 46.85
}

// CRC8 continues a Sensirion CRC-8 (x^8+x^5+x^4+1, MSB first) from seed.
func CRC8(seed byte, data []byte) byte {
	crc := seed
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
