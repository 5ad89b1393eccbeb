package hal

import (
	"context"
	"testing"
	"time"

	"sensorcode-go/bus"
	"sensorcode-go/drivers/line"
	"sensorcode-go/drivers/line/linetest"
	"sensorcode-go/drivers/sht21/sht21test"
	dht22dev "sensorcode-go/services/hal/devices/dht22"
	sht21dev "sensorcode-go/services/hal/devices/sht21"
	"sensorcode-go/services/hal/internal/core"
	"sensorcode-go/services/hal/internal/platform"
	"sensorcode-go/types"

	"tinygo.org/x/drivers"
)

func dhtWave(f [5]byte) []linetest.Segment {
	w := []linetest.Segment{linetest.High(20), linetest.Low(75), linetest.High(70)}
	for i := 0; i < 40; i++ {
		w = append(w, linetest.Low(50))
		if f[i/8]&(0x80>>(i%8)) != 0 {
			w = append(w, linetest.High(70))
		} else {
			w = append(w, linetest.High(26))
		}
	}
	return append(w, linetest.Low(50))
}

func next(t *testing.T, sub *bus.Subscription, ok func(*bus.Message) bool) *bus.Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if ok(m) {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out on %v", sub.Topic())
			return nil
		}
	}
}

func anyMsg(*bus.Message) bool { return true }

func TestHALEndToEnd(t *testing.T) {
	b := bus.NewBus(32)
	user := b.NewConnection("test")

	f := platform.Static{
		Buses: map[core.ResourceID]drivers.I2C{"i2c0": sht21test.New()},
		Lines: map[int]core.Line{
			15: {Pin: &linetest.WavePin{Wave: dhtWave([5]byte{0x02, 0x8C, 0x01, 0x11, 0xA0})}, Critical: line.NoCritical, Number: 15},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := user.Subscribe(bus.T("hal", "state"))
	done := make(chan struct{})
	go func() { run(ctx, b.NewConnection("hal"), f); close(done) }()
	next(t, state, func(m *bus.Message) bool { return m.Payload.(types.HALState).Level == "idle" })

	airT := core.CapAddr{Domain: "env", Kind: "temperature", Name: "air"}
	airH := core.CapAddr{Domain: "env", Kind: "humidity", Name: "air"}
	outT := core.CapAddr{Domain: "env", Kind: "temperature", Name: "outdoor"}

	airTV := user.Subscribe(core.ValueTopic(airT))
	airHV := user.Subscribe(core.ValueTopic(airH))
	outTV := user.Subscribe(core.ValueTopic(outT))

	user.Publish(user.NewMessage(bus.T("config", "hal"), types.HALConfig{
		Devices: []types.HALDevice{
			{ID: "air", Type: "sht21", Params: sht21dev.Params{Bus: "i2c0"}},
			{ID: "outdoor", Type: "dht22", Params: dht22dev.Params{Pin: 15}},
		},
		Pollers: []types.PollSpec{{Kind: types.KindTemperature, Name: "air", IntervalMs: 10}},
	}, true))
	next(t, state, func(m *bus.Message) bool { return m.Payload.(types.HALState).Level == "ready" })

	// Poller drives the SHT21.
	if v := next(t, airTV, anyMsg).Payload.(types.TemperatureValue); v.DeciC != 234 {
		t.Fatalf("air temperature = %+v", v)
	}
	if v := next(t, airHV, anyMsg).Payload.(types.HumidityValue); v.RHx100 != 4869 {
		t.Fatalf("air humidity = %+v", v)
	}

	// On-demand DHT22 read through the control topic.
	rctx, rcancel := context.WithTimeout(ctx, time.Second)
	defer rcancel()
	reply, err := user.RequestWait(rctx, user.NewMessage(core.ControlTopic(outT, "read"), nil, false))
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if r, ok := reply.Payload.(types.OKReply); !ok || !r.OK {
		t.Fatalf("reply = %#v", reply.Payload)
	}
	if v := next(t, outTV, anyMsg).Payload.(types.TemperatureValue); v.DeciC != 273 {
		t.Fatalf("outdoor temperature = %+v", v)
	}
	status := user.Subscribe(core.StatusTopic(outT))
	next(t, status, func(m *bus.Message) bool { return m.Payload.(types.CapabilityStatus).Link == types.LinkUp })

	// A second read inside the sensor's minimum interval is refused.
	reply, err = user.RequestWait(rctx, user.NewMessage(core.ControlTopic(outT, "read"), nil, false))
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if r, ok := reply.Payload.(types.ErrorReply); !ok || r.Error != "busy" {
		t.Fatalf("second reply = %#v", reply.Payload)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HAL did not stop")
	}
	next(t, state, func(m *bus.Message) bool { return m.Payload.(types.HALState).Level == "stopped" })
}
