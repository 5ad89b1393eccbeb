package dht22

import (
	"errors"
	"testing"
	"time"

	"sensorcode-go/drivers/line/linetest"

	"periph.io/x/conn/v3/physic"
)

// preamble yields 9 low and 9 high polls once the host has waited 25 µs.
func preamble() []linetest.Segment {
	return []linetest.Segment{
		linetest.High(20),
		linetest.Low(75),
		linetest.High(70),
	}
}

// frameWave encodes n bits of f the way the sensor transmits them.
func frameWave(f [5]byte, n int) []linetest.Segment {
	w := preamble()
	for i := 0; i < n; i++ {
		w = append(w, linetest.Low(50))
		if f[i/8]&(0x80>>(i%8)) != 0 {
			w = append(w, linetest.High(70))
		} else {
			w = append(w, linetest.High(26))
		}
	}
	return append(w, linetest.Low(50))
}

func fixedNow() func() time.Time {
	ts := time.Unix(1700000000, 0)
	return func() time.Time { return ts }
}

func TestMeasureDecodesFrame(t *testing.T) {
	frame := [5]byte{0x02, 0x8C, 0x01, 0x11, 0xA0}
	pin := &linetest.WavePin{Wave: frameWave(frame, 40)}
	d := New(pin, Config{Now: fixedNow()})

	m, err := d.Measure()
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if m.Humidity != 65.2 || m.Temperature != 27.3 {
		t.Fatalf("got %v °C %v %%RH, want 27.3 / 65.2", m.Temperature, m.Humidity)
	}
	if m.Time.IsZero() || d.Last() != m {
		t.Fatalf("measurement not cached: %+v", d.Last())
	}
	if len(pin.LowPulses) != 1 || pin.LowPulses[0] != startLowUs {
		t.Fatalf("start pulse = %v, want one %d µs pulse", pin.LowPulses, startLowUs)
	}
}

func TestMeasureNegativeTemperature(t *testing.T) {
	frame := [5]byte{0x01, 0xF4, 0x80, 0x65, 0}
	frame[4] = frame[0] + frame[1] + frame[2] + frame[3]
	d := New(&linetest.WavePin{Wave: frameWave(frame, 40)})

	m, err := d.Measure()
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if m.Temperature != -10.1 || m.Humidity != 50 {
		t.Fatalf("got %v °C %v %%RH", m.Temperature, m.Humidity)
	}
}

func TestMeasureParityKeepsPrevious(t *testing.T) {
	good := [5]byte{0x02, 0x8C, 0x01, 0x11, 0xA0}
	pin := &linetest.WavePin{Wave: frameWave(good, 40)}
	d := New(pin, Config{Now: fixedNow()})
	prev, err := d.Measure()
	if err != nil {
		t.Fatalf("first Measure: %v", err)
	}

	bad := good
	bad[4] ^= 0x01
	pin.Wave = frameWave(bad, 40)
	if _, err := d.Measure(); !errors.Is(err, ErrParity) {
		t.Fatalf("err = %v, want ErrParity", err)
	}
	if d.Last() != prev {
		t.Fatalf("cached measurement changed on parity failure: %+v", d.Last())
	}
	if d.LastAttempt().IsZero() {
		t.Fatal("attempt time not recorded")
	}
}

func TestMeasureBadPreamble(t *testing.T) {
	cases := map[string][]linetest.Segment{
		"short low": {linetest.High(20), linetest.Low(30), linetest.High(70)},
		"long high": {linetest.High(20), linetest.Low(75), linetest.High(200)},
		"no answer": nil,
		"stuck low": {linetest.Low(5000)},
	}
	for name, wave := range cases {
		criticals := 0
		d := New(&linetest.WavePin{Wave: wave}, Config{Critical: func(fn func()) { criticals++; fn() }})
		if _, err := d.Measure(); !errors.Is(err, ErrBadResponse) {
			t.Errorf("%s: err = %v, want ErrBadResponse", name, err)
		}
		if criticals != 1 {
			t.Errorf("%s: critical section entered %d times", name, criticals)
		}
		if !d.LastAttempt().IsZero() {
			t.Errorf("%s: attempt recorded for rejected preamble", name)
		}
	}
}

func TestMeasureTruncatedFrame(t *testing.T) {
	frame := [5]byte{0x02, 0x8C, 0x01, 0x11, 0xA0}
	pin := &linetest.WavePin{Wave: frameWave(frame, 20)}
	d := New(pin)

	if _, err := d.Measure(); !errors.Is(err, ErrBadResponse) {
		t.Fatalf("err = %v, want ErrBadResponse", err)
	}
	// 18 preamble polls + 480 samples.
	if pin.Reads > 18+maxSamples+2 {
		t.Fatalf("sampling not bounded: %d reads", pin.Reads)
	}
}

func TestMeasureNilDevice(t *testing.T) {
	var d *Device
	if _, err := d.Measure(); !errors.Is(err, ErrDeviceNull) {
		t.Fatalf("nil device: err = %v", err)
	}
	if _, err := New(nil).Measure(); !errors.Is(err, ErrDeviceNull) {
		t.Fatalf("nil pin: err = %v", err)
	}
}

func TestChecksumAndDecode(t *testing.T) {
	f := [5]byte{0x02, 0x8C, 0x01, 0x11, 0xA0}
	if !Checksum(f) {
		t.Fatal("checksum should pass")
	}
	tc, rh := Decode(f)
	if tc != 27.3 || rh != 65.2 {
		t.Fatalf("Decode = %v, %v", tc, rh)
	}
	// Sum wraps at 8 bits.
	w := [5]byte{0xFF, 0xFF, 0x01, 0x02, 0x01}
	if !Checksum(w) {
		t.Fatal("wrapped checksum should pass")
	}
}

func TestEnvConversion(t *testing.T) {
	e := Measurement{Temperature: 25, Humidity: 50}.Env()
	if got := float64(e.Temperature-physic.ZeroCelsius) / float64(physic.Celsius); got < 24.999 || got > 25.001 {
		t.Fatalf("temperature = %v", got)
	}
	if got := float64(e.Humidity) / float64(physic.PercentRH); got != 50 {
		t.Fatalf("humidity = %v", got)
	}
}
