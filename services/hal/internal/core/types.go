package core

import (
	"context"
	"time"

	"sensorcode-go/drivers/line"
	"sensorcode-go/errcode"
	"sensorcode-go/types"

	"tinygo.org/x/drivers"
)

// ---- Capability & device model ----

// CapAddr is the public address of one capability:
// hal/cap/<domain>/<kind>/<name>.
type CapAddr struct {
	Domain string
	Kind   string
	Name   string
}

type CapabilitySpec struct {
	Domain string // empty => inferred from Kind
	Kind   types.Kind
	Name   string // empty => device ID
	Info   types.Info
}

// EnqueueResult reports whether a control was accepted for execution.
// Results of the work itself arrive later as Events.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
}

type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	// Init runs once before Capabilities are published. It may block on the
	// device's resource worker.
	Init(ctx context.Context) error
	// Control must not block.
	Control(addr CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error
}

// Paced is implemented by devices whose sensors must not be sampled faster
// than a fixed period. HAL raises poll schedules on them to that period.
type Paced interface {
	MinPollInterval() time.Duration
}

// ---- Device → HAL telemetry (single shape) ----
// By default an Event is a value update published retained to .../value.
// IsEvent selects .../event[/EventTag] (non-retained) instead. A non-empty
// Err publishes only .../status=degraded.

type Event struct {
	Addr     CapAddr
	Payload  any
	TS       int64  // Unix ns
	Err      string // errcode short code
	IsEvent  bool
	EventTag string
}

type EventEmitter interface {
	// Emit must be non-blocking; false indicates a drop under pressure.
	Emit(ev Event) bool
}

// ---- Resources ----

type ResourceID string // e.g. "i2c0"

// Line is an open-drain GPIO data line with the critical-section primitive
// of the platform it lives on.
type Line struct {
	Pin      line.Pin
	Critical line.Critical
	Number   int
}

// Jobs run serially on the worker that owns a bus or line.
type (
	I2CJob  = Job[drivers.I2C]
	LineJob = Job[Line]

	I2COwner  = Worker[drivers.I2C]
	LineOwner = Worker[Line]
)

// Factories provides platform hardware by identifier.
type Factories interface {
	I2C(id ResourceID) (drivers.I2C, bool)
	Line(pin int) (Line, bool)
}

type ResourceRegistry interface {
	// I2C buses are shared: every claimant gets the same worker.
	ClaimI2C(devID string, id ResourceID) (*I2COwner, error)
	ReleaseI2C(devID string, id ResourceID)

	// Lines are exclusive to one device.
	ClaimLine(devID string, pin int) (*LineOwner, error)
	ReleaseLine(devID string, pin int)
}

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // provided by HAL
}

// ---- Builders ----

type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
