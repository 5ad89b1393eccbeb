package ds18b20dev

import (
	"context"
	"errors"
	"testing"
	"time"

	"sensorcode-go/bus"
	"sensorcode-go/drivers/ds18b20"
	"sensorcode-go/drivers/line"
	"sensorcode-go/drivers/onewire"
	"sensorcode-go/drivers/onewire/onewiretest"
	"sensorcode-go/errcode"
	"sensorcode-go/services/hal/internal/core"
	"sensorcode-go/services/hal/internal/platform"
	"sensorcode-go/types"
)

// 25.0625 °C, TH 75, TL 70, 12-bit.
var sp25 = [8]byte{0x91, 0x01, 0x4B, 0x46, 0x7F, 0xFF, 0x0F, 0x10}

type stubPin struct{}

func (stubPin) ReadLevel() bool       { return true }
func (stubPin) DriveLow()             {}
func (stubPin) Release()              {}
func (stubPin) BusyWaitMicros(uint32) {}

type chanEmitter chan core.Event

func (c chanEmitter) Emit(ev core.Event) bool {
	select {
	case c <- ev:
		return true
	default:
		return false
	}
}

func (c chanEmitter) next(t *testing.T) core.Event {
	t.Helper()
	select {
	case ev := <-c:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event")
		return core.Event{}
	}
}

type harness struct {
	dev *Device
	sim *onewiretest.Bus
	ev  chanEmitter
	reg *core.Registry
}

func setup(t *testing.T, sim *onewiretest.Bus, p Params) (*harness, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	orig := newBus
	newBus = func(core.Line) onewire.Bus { return sim }
	t.Cleanup(func() { newBus = orig })

	reg := core.NewRegistry(ctx, platform.Static{Lines: map[int]core.Line{
		16: {Pin: stubPin{}, Critical: line.NoCritical, Number: 16},
	}})
	ev := make(chanEmitter, 8)
	d, err := builder{}.Build(ctx, core.BuilderInput{
		ID: "probe", Type: "ds18b20", Params: p,
		Res: core.Resources{Reg: reg, Pub: ev},
	})
	if err != nil {
		return nil, err
	}
	if err := d.Init(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return &harness{dev: d.(*Device), sim: sim, ev: ev, reg: reg}, nil
}

func oneSensor(polls int) (*onewiretest.Bus, *onewiretest.Device) {
	s := &onewiretest.Device{ROM: onewiretest.MakeROM(ds18b20.FamilyCode, 0xC0FFEE), ConvertPolls: polls}
	s.SetScratchpad(sp25)
	return &onewiretest.Bus{Devices: []*onewiretest.Device{s}}, s
}

func control(t *testing.T, h *harness, verb string, payload any) core.EnqueueResult {
	t.Helper()
	res, err := h.dev.Control(h.dev.sensors[0].addr, verb, payload)
	if err != nil {
		t.Fatalf("%s: %v", verb, err)
	}
	return res
}

func TestReadPublishesDeciCelsius(t *testing.T) {
	sim, _ := oneSensor(3)
	h, err := setup(t, sim, Params{Pin: 16})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	caps := h.dev.Capabilities()
	if len(caps) != 1 || caps[0].Name != "probe" || caps[0].Kind != types.KindTemperature {
		t.Fatalf("caps = %+v", caps)
	}

	if res := control(t, h, "read", nil); !res.OK {
		t.Fatalf("read = %+v", res)
	}
	ev := h.ev.next(t)
	v, ok := ev.Payload.(types.TemperatureValue)
	if !ok || v.DeciC != 251 || ev.IsEvent || ev.Err != "" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Addr.Name != "probe" || ev.Addr.Domain != "env" {
		t.Fatalf("addr = %+v", ev.Addr)
	}
}

func TestAlarmControls(t *testing.T) {
	sim, s := oneSensor(0)
	h, err := setup(t, sim, Params{Pin: 16, ROM: oneSensorROM(sim)})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	control(t, h, "get_alarm", nil)
	ev := h.ev.next(t)
	if a, ok := ev.Payload.(types.AlarmValue); !ok || a.Low != 70 || a.High != 75 || ev.EventTag != "alarm" {
		t.Fatalf("alarm = %+v", ev)
	}

	if res := control(t, h, "set_alarm", types.AlarmSet{Low: 50, High: 40}); res.OK || res.Error != errcode.InvalidPayload {
		t.Fatalf("inverted alarm = %+v", res)
	}
	if res := control(t, h, "set_alarm", "hot"); res.Error != errcode.InvalidPayload {
		t.Fatalf("bad payload = %+v", res)
	}

	control(t, h, "set_alarm", types.AlarmSet{Low: -10, High: 40})
	ev = h.ev.next(t)
	if a, _ := ev.Payload.(types.AlarmValue); a.Low != -10 || a.High != 40 {
		t.Fatalf("after set = %+v", ev)
	}
	if s.Scratchpad[2] != 40 || int8(s.Scratchpad[3]) != -10 || s.Scratchpad[4] != 0x7F {
		t.Fatalf("scratchpad = % x", s.Scratchpad)
	}
}

func oneSensorROM(b *onewiretest.Bus) string { return b.Devices[0].ROM.String() }

func TestSetResolution(t *testing.T) {
	sim, s := oneSensor(0)
	h, err := setup(t, sim, Params{Pin: 16})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	for _, bits := range []uint8{0, 8, 13} {
		if res := control(t, h, "set_resolution", types.ResolutionSet{Bits: bits}); res.Error != errcode.InvalidPayload {
			t.Fatalf("bits %d = %+v", bits, res)
		}
	}
	if res := control(t, h, "set_resolution", types.ResolutionSet{Bits: 9}); !res.OK {
		t.Fatalf("set 9 = %+v", res)
	}
	// A follow-up alarm read is queued behind the write.
	control(t, h, "get_alarm", nil)
	h.ev.next(t)
	if got := s.Scratchpad[4] & 0x60; got != 0 {
		t.Fatalf("config = %#x", s.Scratchpad[4])
	}
}

func TestIdentifyAndUnsupported(t *testing.T) {
	sim, _ := oneSensor(0)
	sim.Devices[0].Parasite = true
	h, err := setup(t, sim, Params{Pin: 16})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	control(t, h, "identify", nil)
	ev := h.ev.next(t)
	id, ok := ev.Payload.(types.SensorIdentity)
	if !ok || !ev.IsEvent || ev.EventTag != "identity" {
		t.Fatalf("identity = %+v", ev)
	}
	if id.Serial != sim.Devices[0].ROM.String() || !id.Parasite {
		t.Fatalf("identity = %+v", id)
	}

	if res := control(t, h, "blink", nil); res.Error != errcode.Unsupported {
		t.Fatalf("blink = %+v", res)
	}
	other := core.CapAddr{Domain: "env", Kind: "temperature", Name: "else"}
	if res, _ := h.dev.Control(other, "read", nil); res.Error != errcode.UnknownCapability {
		t.Fatalf("foreign addr = %+v", res)
	}
}

func TestBusyWhileConverting(t *testing.T) {
	sim, _ := oneSensor(-1)
	h, err := setup(t, sim, Params{Pin: 16})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	control(t, h, "read", nil)
	deadline := time.Now().Add(time.Second)
	for !h.dev.sensors[0].dev.Converting() {
		if time.Now().After(deadline) {
			t.Fatal("conversion never started")
		}
		time.Sleep(time.Millisecond)
	}
	if res := control(t, h, "read", nil); res.OK || res.Error != errcode.Busy {
		t.Fatalf("second read = %+v", res)
	}

	ev := h.ev.next(t)
	if ev.Err != string(errcode.Timeout) {
		t.Fatalf("event = %+v", ev)
	}
}

func TestSeveralSensorsGetSuffixedNames(t *testing.T) {
	a := &onewiretest.Device{ROM: onewiretest.MakeROM(ds18b20.FamilyCode, 1)}
	b := &onewiretest.Device{ROM: onewiretest.MakeROM(ds18b20.FamilyCode, 2)}
	a.SetScratchpad(sp25)
	b.SetScratchpad(sp25)
	sim := &onewiretest.Bus{Devices: []*onewiretest.Device{a, b}}

	h, err := setup(t, sim, Params{Pin: 16, Name: "tank"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	caps := h.dev.Capabilities()
	if len(caps) != 2 {
		t.Fatalf("caps = %+v", caps)
	}
	seen := map[string]bool{}
	for _, c := range caps {
		seen[c.Name] = true
	}
	for _, d := range sim.Devices {
		if n := "tank-" + d.ROM.String(); !seen[n] {
			t.Fatalf("missing %s in %v", n, seen)
		}
	}
}

func TestInitFailures(t *testing.T) {
	if _, err := setup(t, &onewiretest.Bus{}, Params{Pin: 16}); errcode.Of(err) != errcode.NoDevice {
		t.Fatalf("empty bus: %v", err)
	}
	sim, _ := oneSensor(0)
	if _, err := setup(t, sim, Params{Pin: 3}); !errors.Is(err, errcode.UnknownPin) {
		t.Fatalf("unknown pin: %v", err)
	}
	rom := onewiretest.MakeROM(0x10, 5).String()
	if _, err := setup(t, sim, Params{Pin: 16, ROM: rom}); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("wrong family: %v", err)
	}
	if _, err := setup(t, sim, Params{Pin: -1}); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("negative pin: %v", err)
	}
}

func TestCloseReleasesLine(t *testing.T) {
	sim, _ := oneSensor(0)
	h, err := setup(t, sim, Params{Pin: 16})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := h.reg.ClaimLine("other", 16); !errors.Is(err, errcode.PinInUse) {
		t.Fatalf("claim while held: %v", err)
	}
	h.dev.Close()
	if _, err := h.reg.ClaimLine("other", 16); err != nil {
		t.Fatalf("claim after close: %v", err)
	}
}

func TestHALPollsEverySensorOnTheBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &onewiretest.Device{ROM: onewiretest.MakeROM(ds18b20.FamilyCode, 1)}
	b := &onewiretest.Device{ROM: onewiretest.MakeROM(ds18b20.FamilyCode, 2)}
	a.SetScratchpad(sp25)
	b.SetScratchpad([8]byte{0x50, 0x05, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10}) // 85.0 °C
	sim := &onewiretest.Bus{Devices: []*onewiretest.Device{a, b}}

	orig := newBus
	newBus = func(core.Line) onewire.Bus { return sim }
	t.Cleanup(func() { newBus = orig })

	reg := core.NewRegistry(ctx, platform.Static{Lines: map[int]core.Line{
		16: {Pin: stubPin{}, Critical: line.NoCritical, Number: 16},
	}})
	bb := bus.NewBus(16)
	user := bb.NewConnection("test")
	want := map[string]int16{
		"tank-" + a.ROM.String(): 251,
		"tank-" + b.ROM.String(): 850,
	}
	subs := map[string]*bus.Subscription{}
	for name := range want {
		subs[name] = user.Subscribe(core.ValueTopic(core.CapAddr{Domain: "env", Kind: "temperature", Name: name}))
	}

	go core.NewHAL(bb.NewConnection("hal"), core.Resources{Reg: reg}).Run(ctx)
	user.Publish(user.NewMessage(core.T("config", "hal"), types.HALConfig{
		Devices: []types.HALDevice{{ID: "tank", Type: "ds18b20", Params: Params{Pin: 16}}},
		Pollers: []types.PollSpec{{Kind: types.KindTemperature, Name: "tank", IntervalMs: 10}},
	}, true))

	for name, deci := range want {
		select {
		case m := <-subs[name].Channel():
			if v, ok := m.Payload.(types.TemperatureValue); !ok || v.DeciC != deci {
				t.Fatalf("%s value = %#v", name, m.Payload)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("%s never polled", name)
		}
	}
}
