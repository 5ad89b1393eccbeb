package dht22dev

import (
	"context"
	"time"

	"sensorcode-go/drivers/dht22"
	"sensorcode-go/errcode"
	"sensorcode-go/services/hal/internal/core"
	"sensorcode-go/types"
)

func init() { core.RegisterBuilder("dht22", builder{}) }

type Params struct {
	Pin  int    // GPIO number of the data line
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
	own, err := in.Res.Reg.ClaimLine(in.ID, p.Pin)
	if err != nil {
		return nil, err
	}
	name := p.Name
	if name == "" {
		name = in.ID
	}
	d := &Device{
		id:   in.ID,
		name: name,
		pin:  p.Pin,
		line: own,
		pub:  in.Res.Pub,
		reg:  in.Res.Reg,
		now:  time.Now,
	}
	d.jobRead = &readJob{d: d}
	return d, nil
}

type Device struct {
	id   string
	name string
	pin  int

	line *core.LineOwner
	pub  core.EventEmitter
	reg  core.ResourceRegistry

	// drv is created on the line worker and only used there.
	drv     *dht22.Device
	jobRead *readJob

	now      func() time.Time
	lastRead time.Time // HAL goroutine only

	addrTemp core.CapAddr
	addrHum  core.CapAddr
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{
		{
			Domain: "env",
			Kind:   types.KindTemperature,
			Name:   d.name,
			Info: types.Info{
				SchemaVersion: 1, Driver: "dht22",
				Detail: types.TemperatureInfo{Sensor: "dht22", Pin: d.pin},
			},
		},
		{
			Domain: "env",
			Kind:   types.KindHumidity,
			Name:   d.name,
			Info: types.Info{
				SchemaVersion: 1, Driver: "dht22",
				Detail: types.HumidityInfo{Sensor: "dht22", Pin: d.pin},
			},
		},
	}
}

// Init releases the line to its pull-up on the worker. No frame is requested.
func (d *Device) Init(ctx context.Context) error {
	d.addrTemp = core.CapAddr{Domain: "env", Kind: string(types.KindTemperature), Name: d.name}
	d.addrHum = core.CapAddr{Domain: "env", Kind: string(types.KindHumidity), Name: d.name}
	return d.line.Do(ctx, core.JobFunc[core.Line](func(l core.Line) error {
		d.drv = dht22.New(l.Pin, dht22.Config{Critical: l.Critical})
		return nil
	}))
}

func (d *Device) Close() error {
	if d.reg != nil {
		d.reg.ReleaseLine(d.id, d.pin)
	}
	return nil
}

// Control accepts "read". Requests closer than dht22.MinInterval to the
// previous accepted one are refused with busy.
func (d *Device) Control(_ core.CapAddr, verb string, _ any) (core.EnqueueResult, error) {
	switch verb {
	case "read":
		now := d.now()
		if !d.lastRead.IsZero() && now.Sub(d.lastRead) < dht22.MinInterval {
			return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
		}
		if !d.line.TryEnqueue(d.jobRead) {
			return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
		}
		d.lastRead = now
		return core.EnqueueResult{OK: true}, nil
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
}

// MinPollInterval lifts scheduled reads to the sensor's minimum spacing.
func (d *Device) MinPollInterval() time.Duration { return dht22.MinInterval }

// Reusable job value.
type readJob struct{ d *Device }

func (j *readJob) Run(core.Line) error {
	d := j.d
	t0 := time.Now().UnixNano()
	m, err := d.drv.Measure()
	if err != nil {
		d.emitErr(string(errcode.MapDriverErr(err)), t0)
		return nil
	}
	env, ts := m.Env(), m.Time.UnixNano()
	d.pub.Emit(core.Event{Addr: d.addrTemp, Payload: core.TemperatureOf(env), TS: ts})
	d.pub.Emit(core.Event{Addr: d.addrHum, Payload: core.HumidityOf(env), TS: ts})
	return nil
}

func (d *Device) emitErr(code string, t0 int64) {
	d.pub.Emit(core.Event{Addr: d.addrTemp, Err: code, TS: t0})
	d.pub.Emit(core.Event{Addr: d.addrHum, Err: code, TS: t0})
}
