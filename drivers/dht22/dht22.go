// Package dht22 provides a bit-banged driver for the DHT22 (AM2302)
// single-wire temperature/humidity sensor.
//
// The sensor answers a host start pulse with an 80 µs low / 80 µs high
// preamble followed by 40 data bits. Every bit starts with ~50 µs low; the
// length of the following high phase carries the value (~26 µs for 0, ~70 µs
// for 1). The driver samples the line at fixed intervals and discriminates
// bits by counting high samples between falling edges.
//
// Measure must not be called more than once every MinInterval on the same
// sensor; the device needs that long to settle. This is not enforced here.
//
// Measure is not reentrant and performs no locking. Callers own the pin.
package dht22

import (
	"time"

	"sensorcode-go/drivers/line"
	"sensorcode-go/errcode"

	"periph.io/x/conn/v3/physic"
)

// MinInterval is the minimum spacing between two measurements.
const MinInterval = 2 * time.Second

// Timing (µs) and sampling bounds.
const (
	startLowUs     = 820
	startReleaseUs = 25

	preamblePollUs    = 8
	preamblePollLimit = 50
	preambleMin       = 8
	preambleMax       = 10

	samplePeriodUs = 10
	maxSamples     = 480
	oneMinHigh     = 6

	frameLen  = 5
	frameBits = frameLen * 8
)

// Errors returned by the driver.
var (
	ErrDeviceNull  = errcode.New("dht22", errcode.DeviceNull, "device is nil")
	ErrBadResponse = errcode.New("dht22", errcode.BadResponse, "bad response signal")
	ErrParity      = errcode.New("dht22", errcode.Parity, "checksum mismatch")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Critical masks preemption while the frame is sampled.
	// Defaults to line.NoCritical.
	Critical line.Critical
	// Now stamps acquisitions. Defaults to time.Now.
	Now func() time.Time
}

// Measurement is one decoded reading.
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

// Device is a DHT22 attached to one GPIO line.
type Device struct {
	pin      line.Pin
	critical line.Critical
	now      func() time.Time

	last        Measurement
	lastAttempt time.Time
}

// New binds a DHT22 to pin. The line is released to its pull-up; no bus
// traffic is generated.
func New(pin line.Pin, cfgs ...Config) *Device {
	d := &Device{pin: pin, critical: line.NoCritical, now: time.Now}
	if len(cfgs) > 0 {
		if cfgs[0].Critical != nil {
			d.critical = cfgs[0].Critical
		}
		if cfgs[0].Now != nil {
			d.now = cfgs[0].Now
		}
	}
	if pin != nil {
		pin.Release()
	}
	return d
}

// Measure runs one acquisition cycle. On success the cached measurement is
// replaced; on any error it is left untouched.
func (d *Device) Measure() (Measurement, error) {
	if d == nil || d.pin == nil {
		return Measurement{}, ErrDeviceNull
	}

	// Wake the sensor.
	d.pin.DriveLow()
	d.pin.BusyWaitMicros(startLowUs)
	d.pin.Release()
	d.pin.BusyWaitMicros(startReleaseUs)

	var (
		frame [frameLen]byte
		bits  int
		err   error
	)
	d.critical(func() { bits, err = d.sample(&frame) })
	if err != nil {
		return Measurement{}, err
	}

	d.lastAttempt = d.now()
	if bits < frameBits {
		return Measurement{}, ErrBadResponse
	}
	if !Checksum(frame) {
		return Measurement{}, ErrParity
	}

	t, rh := Decode(frame)
	d.last = Measurement{Temperature: t, Humidity: rh, Time: d.lastAttempt}
	return d.last, nil
}

// Last returns the most recent successful measurement. A zero Time means the
// sensor has never been read successfully.
func (d *Device) Last() Measurement { return d.last }

// LastAttempt returns when a frame was last sampled, whether or not it
// passed the checksum.
func (d *Device) LastAttempt() time.Time { return d.lastAttempt }

// sample reads the preamble and up to 40 data bits into frame.
func (d *Device) sample(frame *[frameLen]byte) (int, error) {
	if n := d.holdTime(false); n < preambleMin || n > preambleMax {
		return 0, ErrBadResponse
	}
	if n := d.holdTime(true); n < preambleMin || n > preambleMax {
		return 0, ErrBadResponse
	}

	var (
		bits  int
		highs int
		prev  bool
	)
	for i := 0; i < maxSamples && bits < frameBits; i++ {
		lvl := d.pin.ReadLevel()
		if lvl {
			highs++
		}
		if !lvl && prev {
			if highs >= oneMinHigh {
				frame[bits/8] |= 0x80 >> (bits % 8)
			}
			highs = 0
			bits++
		}
		prev = lvl
		d.pin.BusyWaitMicros(samplePeriodUs)
	}
	return bits, nil
}

// holdTime counts 8 µs polls for which the line stays at level.
func (d *Device) holdTime(level bool) int {
	n := 0
	for n <= preamblePollLimit && d.pin.ReadLevel() == level {
		n++
		d.pin.BusyWaitMicros(preamblePollUs)
	}
	return n
}

// Checksum reports whether byte 4 equals the truncated sum of bytes 0..3.
func Checksum(f [frameLen]byte) bool {
	return f[0]+f[1]+f[2]+f[3] == f[4]
}

// Decode converts a frame to °C and %RH. Temperature is sign-magnitude.
func Decode(f [frameLen]byte) (tempC, rh float32) {
	rh = float32(uint16(f[0])<<8|uint16(f[1])) / 10
	tempC = float32(uint16(f[2]&0x7F)<<8|uint16(f[3])) / 10
	if f[2]&0x80 != 0 {
		tempC = -tempC
	}
	return tempC, rh
}
