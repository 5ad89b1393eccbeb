package ds18b20dev

import (
	"context"
	"errors"
	"time"

	"sensorcode-go/drivers/ds18b20"
	"sensorcode-go/drivers/onewire"
	"sensorcode-go/errcode"
	"sensorcode-go/services/hal/internal/core"
	"sensorcode-go/types"
	"sensorcode-go/x/mathx"
)

func init() { core.RegisterBuilder("ds18b20", builder{}) }

// newBus builds the 1-Wire master for a claimed line.
var newBus = func(l core.Line) onewire.Bus { return onewire.NewMaster(l.Pin, l.Critical) }

// Params wires one 1-Wire bus. With ROM empty every DS18B20 found on the bus
// becomes a capability; otherwise only the sensor at ROM is used.
type Params struct {
	Pin  int    // GPIO number of the 1-Wire data line
	ROM  string // optional, 16 hex digits
	Name string // optional; defaults to the device ID
}

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, ok := in.Params.(Params)
	if !ok {
		if pp, ok2 := in.Params.(*Params); ok2 && pp != nil {
			p = *pp
		} else {
			return nil, errcode.InvalidParams
		}
	}
	if p.Pin < 0 {
		return nil, errcode.InvalidParams
	}
	var rom onewire.ROM
	if p.ROM != "" {
		r, err := onewire.ParseROM(p.ROM)
		if err != nil || r.Family() != ds18b20.FamilyCode {
			return nil, errcode.InvalidParams
		}
		rom = r
	}
	own, err := in.Res.Reg.ClaimLine(in.ID, p.Pin)
	if err != nil {
		return nil, err
	}
	name := p.Name
	if name == "" {
		name = in.ID
	}
	return &Device{
		id:   in.ID,
		name: name,
		pin:  p.Pin,
		rom:  rom,
		line: own,
		pub:  in.Res.Pub,
		reg:  in.Res.Reg,
	}, nil
}

type Device struct {
	id   string
	name string
	pin  int
	rom  onewire.ROM // zero => discover

	line *core.LineOwner
	pub  core.EventEmitter
	reg  core.ResourceRegistry

	// Set up by Init on the line worker.
	list     *ds18b20.List
	parasite bool
	sensors  []*sensor
	byAddr   map[core.CapAddr]*sensor
}

type sensor struct {
	dev  *ds18b20.Device
	addr core.CapAddr

	jobStart    *startJob
	jobGetAlarm *alarmJob
}

func (d *Device) ID() string { return d.id }

// Init finds the sensors and probes the power mode. It fails with
// ds18b20.ErrNoDevice when nothing answers.
func (d *Device) Init(ctx context.Context) error {
	return d.line.Do(ctx, core.JobFunc[core.Line](func(l core.Line) error {
		m := newBus(l)
		cfg := ds18b20.Config{
			Timer:     core.WorkerTimer[core.Line]{W: d.line, Period: ds18b20.TickInterval},
			Publisher: ds18b20.PublisherFunc(d.onConversion),
		}

		var devs []*ds18b20.Device
		if !d.rom.IsZero() {
			if !m.Reset() {
				return ds18b20.ErrNoDevice
			}
			devs = []*ds18b20.Device{ds18b20.NewDevice(m, d.rom, cfg)}
		} else {
			list, err := ds18b20.Search(m, false, cfg)
			if err != nil {
				return err
			}
			if list.Len() == 0 {
				return ds18b20.ErrNoDevice
			}
			d.list = list
			devs = list.Devices()
		}
		d.parasite = ds18b20.HasParasite(m)

		d.byAddr = make(map[core.CapAddr]*sensor, len(devs))
		for _, dev := range devs {
			name := d.name
			if len(devs) > 1 {
				name = d.name + "-" + dev.ROM().String()
			}
			s := &sensor{
				dev:  dev,
				addr: core.CapAddr{Domain: "env", Kind: string(types.KindTemperature), Name: name},
			}
			s.jobStart = &startJob{d: d, s: s}
			s.jobGetAlarm = &alarmJob{d: d, s: s}
			d.sensors = append(d.sensors, s)
			d.byAddr[s.addr] = s
		}
		return nil
	}))
}

func (d *Device) Capabilities() []core.CapabilitySpec {
	out := make([]core.CapabilitySpec, 0, len(d.sensors))
	for _, s := range d.sensors {
		out = append(out, core.CapabilitySpec{
			Domain: s.addr.Domain,
			Kind:   types.KindTemperature,
			Name:   s.addr.Name,
			Info: types.Info{
				SchemaVersion: 1, Driver: "ds18b20",
				Detail: types.TemperatureInfo{Sensor: "ds18b20", Pin: d.pin, ROM: s.dev.ROM().String()},
			},
		})
	}
	return out
}

// Close invalidates every sensor handle; a conversion in flight stops at its
// next tick.
func (d *Device) Close() error {
	if d.list != nil {
		d.list.Release()
	}
	if d.reg != nil {
		d.reg.ReleaseLine(d.id, d.pin)
	}
	return nil
}

func (d *Device) Control(addr core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	s := d.byAddr[addr]
	if s == nil {
		return core.EnqueueResult{OK: false, Error: errcode.UnknownCapability}, nil
	}

	switch verb {
	case "identify":
		d.pub.Emit(core.Event{
			Addr:     s.addr,
			Payload:  types.SensorIdentity{Sensor: "ds18b20", Serial: s.dev.ROM().String(), Parasite: d.parasite},
			TS:       time.Now().UnixNano(),
			IsEvent:  true,
			EventTag: "identity",
		})
		return core.EnqueueResult{OK: true}, nil
	}

	if s.dev.Converting() {
		return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
	}

	var j core.LineJob
	switch verb {
	case "read":
		j = s.jobStart
	case "get_alarm":
		j = s.jobGetAlarm
	case "set_alarm":
		v, code := core.As[types.AlarmSet](payload)
		if code != "" {
			return core.EnqueueResult{OK: false, Error: code}, nil
		}
		if v.Low > v.High {
			return core.EnqueueResult{OK: false, Error: errcode.InvalidPayload}, nil
		}
		j = &alarmJob{d: d, s: s, set: &v}
	case "set_resolution":
		v, code := core.As[types.ResolutionSet](payload)
		if code != "" {
			return core.EnqueueResult{OK: false, Error: code}, nil
		}
		if !mathx.Between(v.Bits, 9, 12) {
			return core.EnqueueResult{OK: false, Error: errcode.InvalidPayload}, nil
		}
		j = &resolutionJob{d: d, s: s, res: ds18b20.Resolution(v.Bits - 9)}
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}

	if !d.line.TryEnqueue(j) {
		return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
	}
	return core.EnqueueResult{OK: true}, nil
}

// onConversion runs on the line worker, inside a timer tick.
func (d *Device) onConversion(topic string, dev *ds18b20.Device) {
	s := d.find(dev)
	if s == nil {
		return
	}
	switch topic {
	case ds18b20.EventTempReady:
		m := dev.Last()
		d.pub.Emit(core.Event{
			Addr:    s.addr,
			Payload: core.TemperatureOf(m.Env()),
			TS:      m.Time.UnixNano(),
		})
	case ds18b20.EventTempError:
		d.emitErr(s, dev.Err())
	}
}

func (d *Device) find(dev *ds18b20.Device) *sensor {
	for _, s := range d.sensors {
		if s.dev == dev {
			return s
		}
	}
	return nil
}

func (d *Device) emitErr(s *sensor, err error) {
	d.pub.Emit(core.Event{Addr: s.addr, Err: string(errcode.MapDriverErr(err)), TS: time.Now().UnixNano()})
}

// ---- jobs ----

type startJob struct {
	d *Device
	s *sensor
}

func (j *startJob) Run(core.Line) error {
	err := j.s.dev.StartConversion()
	if errors.Is(err, ds18b20.ErrConversionInProgress) {
		return nil
	}
	if err != nil {
		j.d.emitErr(j.s, err)
	}
	return nil
}

// alarmJob reads the trip points, writing them first when set is non-nil,
// and publishes the result on event/alarm.
type alarmJob struct {
	d   *Device
	s   *sensor
	set *types.AlarmSet
}

func (j *alarmJob) Run(core.Line) error {
	if j.set != nil {
		if err := j.s.dev.SetAlarm(j.set.Low, j.set.High); err != nil {
			j.d.emitErr(j.s, err)
			return nil
		}
	}
	low, high, err := j.s.dev.Alarm()
	if err != nil {
		j.d.emitErr(j.s, err)
		return nil
	}
	j.d.pub.Emit(core.Event{
		Addr:     j.s.addr,
		Payload:  types.AlarmValue{Low: low, High: high},
		TS:       time.Now().UnixNano(),
		IsEvent:  true,
		EventTag: "alarm",
	})
	return nil
}

type resolutionJob struct {
	d   *Device
	s   *sensor
	res ds18b20.Resolution
}

func (j *resolutionJob) Run(core.Line) error {
	if err := j.s.dev.SetResolution(j.res); err != nil {
		j.d.emitErr(j.s, err)
	}
	return nil
}
