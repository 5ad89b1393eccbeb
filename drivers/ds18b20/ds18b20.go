// Package ds18b20 drives Maxim DS18B20 1-Wire temperature sensors.
//
// A conversion is started with StartConversion and completes asynchronously:
// the driver polls the bus from a caller-supplied Timer and announces the
// outcome through a Publisher. Bus access is not synchronised; callers must
// serialise StartConversion, Tick and the scratchpad helpers per bus.
package ds18b20

import (
	"sync/atomic"
	"time"

	"sensorcode-go/drivers/onewire"
	"sensorcode-go/errcode"

	"periph.io/x/conn/v3/physic"
)

// FamilyCode identifies DS18B20 devices in a ROM code.
const FamilyCode = 0x28

// Function commands.
const (
	cmdConvert   = 0x44
	cmdReadSP    = 0xBE
	cmdWriteSP   = 0x4E
	cmdReadPower = 0xB4
)

// Event topics handed to Publisher.
const (
	EventTempReady = "ds18b20tReady"
	EventTempError = "ds18b20tError"
)

const (
	// samplesPerTick × samplePeriodUs is the completion window of one tick.
	samplesPerTick = 200
	samplePeriodUs = 5
	// Ticks beyond this many retries abandon the conversion (~750 ms at
	// 12-bit resolution with a 10 ms timer).
	maxRetries = 68

	idle = -1
)

// TickInterval is the recommended Timer period.
const TickInterval = 10 * time.Millisecond

// Errors returned by the driver.
var (
	ErrDeviceNull           = errcode.New("ds18b20", errcode.DeviceNull, "device is nil or released")
	ErrNoDevice             = errcode.New("ds18b20", errcode.NoDevice, "no presence pulse")
	ErrBadCRC               = errcode.New("ds18b20", errcode.BadCRC, "scratchpad crc mismatch")
	ErrConversionInProgress = errcode.New("ds18b20", errcode.ConversionInProgress, "conversion in progress")
	ErrTimer                = errcode.New("ds18b20", errcode.TimerUnavailable, "timer could not be started")
	ErrTimeout              = errcode.New("ds18b20", errcode.Timeout, "conversion did not complete")
)

// Resolution of the temperature register.
type Resolution uint8

const (
	Res9Bit  Resolution = 0
	Res10Bit Resolution = 1
	Res11Bit Resolution = 2
	Res12Bit Resolution = 3
)

// Bits returns the resolution in bits (9..12).
func (r Resolution) Bits() int { return int(r&3) + 9 }

// Timer runs tick repeatedly at a fixed interval for as long as it returns
// true. Start reports whether the timer could be armed.
type Timer interface {
	Start(tick func() bool) bool
}

// Publisher receives conversion outcomes.
type Publisher interface {
	Publish(topic string, d *Device)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(topic string, d *Device)

func (f PublisherFunc) Publish(topic string, d *Device) { f(topic, d) }

// Config wires the asynchronous facilities. Publisher and Now are optional.
type Config struct {
	Timer     Timer
	Publisher Publisher
	Now       func() time.Time
}

// Measurement is one decoded conversion.
type Measurement struct {
	Temperature float32 // °C
	Time        time.Time
}

// Env converts the reading to periph physical units.
func (m Measurement) Env() physic.Env {
	return physic.Env{
		Temperature: physic.ZeroCelsius + physic.Temperature(float64(m.Temperature)*float64(physic.Celsius)),
	}
}

// Device is one sensor together with its conversion session.
type Device struct {
	bus onewire.Bus
	rom onewire.ROM
	cfg Config

	retries  atomic.Int32
	released atomic.Bool

	sp      [9]byte
	last    Measurement
	lastErr error
}

// NewDevice returns an idle handle for the device at rom.
func NewDevice(bus onewire.Bus, rom onewire.ROM, cfg Config) *Device {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	d := &Device{bus: bus, rom: rom, cfg: cfg}
	d.retries.Store(idle)
	return d
}

// ReadROM builds a handle for the only device on the bus.
func ReadROM(bus onewire.Bus, cfg Config) (*Device, error) {
	rom, err := onewire.ReadROM(bus)
	if err != nil {
		return nil, err
	}
	return NewDevice(bus, rom, cfg), nil
}

// ROM returns the device's registration code.
func (d *Device) ROM() onewire.ROM { return d.rom }

// Converting reports whether a conversion is outstanding.
func (d *Device) Converting() bool { return d.retries.Load() >= 0 }

// Retries returns the session counter: -1 when idle, else ticks so far.
func (d *Device) Retries() int { return int(d.retries.Load()) }

// Last returns the last successful conversion. A zero Time means none yet.
func (d *Device) Last() Measurement { return d.last }

// Err returns the error behind the most recent EventTempError, or nil after
// a successful conversion.
func (d *Device) Err() error { return d.lastErr }

// Scratchpad returns a copy of the last scratchpad read (zeroed after a CRC
// failure).
func (d *Device) Scratchpad() [9]byte { return d.sp }

func (d *Device) usable() bool {
	return d != nil && d.bus != nil && !d.released.Load()
}

// StartConversion issues Convert T and arms the timer. The session is left
// untouched when a conversion is already running.
func (d *Device) StartConversion() error {
	if !d.usable() {
		return ErrDeviceNull
	}
	if d.cfg.Timer == nil {
		return ErrTimer
	}
	if d.Converting() {
		return ErrConversionInProgress
	}
	if !d.bus.Reset() {
		return ErrNoDevice
	}
	d.bus.Select(d.rom)
	d.bus.WriteByte(cmdConvert)

	d.retries.Store(0)
	if !d.cfg.Timer.Start(d.Tick) {
		d.retries.Store(idle)
		return ErrTimer
	}
	return nil
}

// Tick performs one completion poll. It returns true while the conversion is
// still pending and the timer should fire again.
func (d *Device) Tick() bool {
	if !d.usable() || d.retries.Load() < 0 {
		return false
	}
	retries := d.retries.Add(1)

	done := false
	for i := 0; i < samplesPerTick; i++ {
		if d.bus.ReadBit() {
			done = true
			break
		}
		d.bus.Wait(samplePeriodUs)
	}

	if done {
		err := d.readTemperature()
		if err != nil {
			d.fail(err)
			return false
		}
		d.lastErr = nil
		d.publish(EventTempReady)
		return false
	}
	if retries > maxRetries {
		d.retries.Store(idle)
		d.fail(ErrTimeout)
		return false
	}
	return true
}

func (d *Device) fail(err error) {
	d.lastErr = err
	d.publish(EventTempError)
}

func (d *Device) publish(topic string) {
	if d.cfg.Publisher != nil {
		d.cfg.Publisher.Publish(topic, d)
	}
}

// readTemperature reads the scratchpad and returns the session to idle.
func (d *Device) readTemperature() error {
	err := d.readScratchpad()
	d.retries.Store(idle)
	if err != nil {
		return err
	}
	raw := uint16(d.sp[0]) | uint16(d.sp[1])<<8
	d.last = Measurement{
		Temperature: DecodeTemperature(raw, d.sp[4]),
		Time:        d.cfg.Now(),
	}
	return nil
}

// ReadScratchpad reads and validates the 9-byte scratchpad.
func (d *Device) ReadScratchpad() ([9]byte, error) {
	if !d.usable() {
		return [9]byte{}, ErrDeviceNull
	}
	err := d.readScratchpad()
	return d.sp, err
}

func (d *Device) readScratchpad() error {
	if !d.bus.Reset() {
		return ErrNoDevice
	}
	d.bus.Select(d.rom)
	d.bus.WriteByte(cmdReadSP)
	d.bus.Read(d.sp[:])
	if onewire.CRC8(d.sp[:]) != 0 {
		d.sp = [9]byte{}
		return ErrBadCRC
	}
	return nil
}

// writeScratchpad sends TH, TL and config (bytes 2..4) only.
func (d *Device) writeScratchpad() error {
	if !d.bus.Reset() {
		return ErrNoDevice
	}
	d.bus.Select(d.rom)
	d.bus.WriteByte(cmdWriteSP)
	d.bus.Write(d.sp[2:5])
	return nil
}

// Alarm returns the alarm trip points. low comes from scratchpad byte 3 and
// high from byte 2.
func (d *Device) Alarm() (low, high int8, err error) {
	if _, err = d.ReadScratchpad(); err != nil {
		return 0, 0, err
	}
	return int8(d.sp[3]), int8(d.sp[2]), nil
}

// SetAlarm updates the alarm trip points, preserving the configuration byte.
func (d *Device) SetAlarm(low, high int8) error {
	if _, err := d.ReadScratchpad(); err != nil {
		return err
	}
	d.sp[3] = byte(low)
	d.sp[2] = byte(high)
	return d.writeScratchpad()
}

// Resolution returns the configured conversion resolution.
func (d *Device) Resolution() (Resolution, error) {
	if _, err := d.ReadScratchpad(); err != nil {
		return 0, err
	}
	return Resolution(d.sp[4]>>5) & 3, nil
}

// SetResolution updates configuration bits 5–6, preserving the alarms.
func (d *Device) SetResolution(r Resolution) error {
	if _, err := d.ReadScratchpad(); err != nil {
		return err
	}
	d.sp[4] = d.sp[4]&^0x60 | byte(r&3)<<5
	return d.writeScratchpad()
}

// DecodeTemperature converts the raw temperature register to °C using the
// resolution in config bits 5–6. Bits below the resolution are ignored.
func DecodeTemperature(raw uint16, config byte) float32 {
	v := raw
	neg := raw&0x8000 != 0
	if neg {
		v = ^raw + 1
	}
	t := float32((v >> 4) & 0x7FF)
	switch Resolution(config>>5) & 3 {
	case Res12Bit:
		t += float32(v&0x0F) * 0.0625
	case Res11Bit:
		t += float32((v>>1)&0x07) * 0.125
	case Res10Bit:
		t += float32((v>>2)&0x03) * 0.25
	case Res9Bit:
		t += float32((v>>3)&0x01) * 0.5
	}
	if neg {
		t = -t
	}
	return t
}

// HasParasite reports whether any device on the bus is parasite powered. A
// parasite-powered device holds the line low during the read slot.
func HasParasite(bus onewire.Bus) bool {
	if !bus.Reset() {
		return false
	}
	bus.WriteByte(onewire.CmdSkipROM)
	bus.WriteByte(cmdReadPower)
	return !bus.ReadBit()
}
