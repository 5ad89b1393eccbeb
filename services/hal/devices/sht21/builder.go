package sht21dev

import (
	"context"
	"encoding/hex"
	"time"

	"sensorcode-go/drivers/sht21"
	"sensorcode-go/errcode"
	"sensorcode-go/services/hal/internal/core"
	"sensorcode-go/services/hal/internal/drvshim"
	"sensorcode-go/types"

	"tinygo.org/x/drivers"
)

func init() { core.RegisterBuilder("sht21", builder{}) }

type Params struct {
	Bus  string // e.g. "i2c0"
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
	if p.Bus == "" {
		return nil, errcode.InvalidParams
	}
	own, err := in.Res.Reg.ClaimI2C(in.ID, core.ResourceID(p.Bus))
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
		bus:  p.Bus,
		i2c:  own,
		pub:  in.Res.Pub,
		reg:  in.Res.Reg,
	}
	// The driver is built once over a shim that is bound per job.
	d.hot = &drvshim.HotI2C{}
	d.drv = sht21.New(d.hot)
	d.jobRead = &readJob{d: d}
	d.jobIdentify = &identifyJob{d: d}
	return d, nil
}

type Device struct {
	id   string
	name string
	bus  string

	i2c *core.I2COwner
	pub core.EventEmitter
	reg core.ResourceRegistry

	hot         *drvshim.HotI2C
	drv         *sht21.Device
	jobRead     *readJob
	jobIdentify *identifyJob

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
				SchemaVersion: 1, Driver: "sht21",
				Detail: types.TemperatureInfo{Sensor: "sht21", Addr: sht21.Address, Bus: d.bus},
			},
		},
		{
			Domain: "env",
			Kind:   types.KindHumidity,
			Name:   d.name,
			Info: types.Info{
				SchemaVersion: 1, Driver: "sht21",
				Detail: types.HumidityInfo{Sensor: "sht21", Addr: sht21.Address, Bus: d.bus},
			},
		},
	}
}

// Init sets up addresses without touching the bus.
func (d *Device) Init(ctx context.Context) error {
	d.addrTemp = core.CapAddr{Domain: "env", Kind: string(types.KindTemperature), Name: d.name}
	d.addrHum = core.CapAddr{Domain: "env", Kind: string(types.KindHumidity), Name: d.name}
	return nil
}

func (d *Device) Close() error {
	if d.reg != nil {
		d.reg.ReleaseI2C(d.id, core.ResourceID(d.bus))
	}
	return nil
}

var resolutions = map[uint8]sht21.Resolution{
	12: sht21.RH12T14,
	8:  sht21.RH8T12,
	10: sht21.RH10T13,
	11: sht21.RH11T11,
}

// bitsOf maps a resolution back to its RH bit count.
func bitsOf(r sht21.Resolution) uint8 {
	for bits, res := range resolutions {
		if res == r {
			return bits
		}
	}
	return 0
}

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	var j core.I2CJob
	switch verb {
	case "read":
		j = d.jobRead
	case "identify":
		j = d.jobIdentify
	case "reset":
		j = d.job(func() error { return d.drv.SoftReset() })
	case "set_heater":
		v, code := core.As[types.HeaterSet](payload)
		if code != "" {
			return core.EnqueueResult{OK: false, Error: code}, nil
		}
		if v.Level > 15 {
			return core.EnqueueResult{OK: false, Error: errcode.InvalidPayload}, nil
		}
		j = d.job(func() error { return d.drv.SetHeater(v.On, v.Level) })
	case "get_heater":
		j = d.job(func() error {
			on, level, err := d.drv.Heater()
			if err == nil {
				d.emitEvent("heater", types.HeaterValue{On: on, Level: level})
			}
			return err
		})
	case "get_resolution":
		j = d.job(func() error {
			r, err := d.drv.Resolution()
			if err == nil {
				d.emitEvent("resolution", types.ResolutionValue{Bits: bitsOf(r)})
			}
			return err
		})
	case "set_resolution":
		v, code := core.As[types.ResolutionSet](payload)
		if code != "" {
			return core.EnqueueResult{OK: false, Error: code}, nil
		}
		res, ok := resolutions[v.Bits]
		if !ok {
			return core.EnqueueResult{OK: false, Error: errcode.InvalidPayload}, nil
		}
		j = d.job(func() error { return d.drv.SetResolution(res) })
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}

	if !d.i2c.TryEnqueue(j) {
		return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
	}
	return core.EnqueueResult{OK: true}, nil
}

// job wraps a one-off register write; failures degrade both capabilities.
func (d *Device) job(fn func() error) core.I2CJob {
	return core.JobFunc[drivers.I2C](func(bus drivers.I2C) error {
		d.hot.Bind(bus)
		defer d.hot.Bind(nil)
		if err := fn(); err != nil {
			d.emitErr(string(errcode.MapDriverErr(err)), time.Now().UnixNano())
		}
		return nil
	})
}

// Reusable, closure-free job values.

type readJob struct{ d *Device }

func (j *readJob) Run(bus drivers.I2C) error {
	d := j.d
	d.hot.Bind(bus)
	defer d.hot.Bind(nil)

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

type identifyJob struct{ d *Device }

func (j *identifyJob) Run(bus drivers.I2C) error {
	d := j.d
	d.hot.Bind(bus)
	defer d.hot.Bind(nil)

	t0 := time.Now().UnixNano()
	sn, err := d.drv.SerialNumber()
	if err != nil {
		d.emitErr(string(errcode.MapDriverErr(err)), t0)
		return nil
	}
	fw, err := d.drv.FirmwareRevision()
	if err != nil {
		d.emitErr(string(errcode.MapDriverErr(err)), t0)
		return nil
	}
	d.emitEvent("identity", types.SensorIdentity{Sensor: "sht21", Serial: hex.EncodeToString(sn[:]), Firmware: fw})
	return nil
}

// emitEvent publishes a register readback on the temperature capability.
func (d *Device) emitEvent(tag string, payload any) {
	d.pub.Emit(core.Event{
		Addr:     d.addrTemp,
		Payload:  payload,
		TS:       time.Now().UnixNano(),
		IsEvent:  true,
		EventTag: tag,
	})
}

func (d *Device) emitErr(code string, t0 int64) {
	d.pub.Emit(core.Event{Addr: d.addrTemp, Err: code, TS: t0})
	d.pub.Emit(core.Event{Addr: d.addrHum, Err: code, TS: t0})
}
