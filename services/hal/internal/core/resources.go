package core

import (
	"context"
	"strconv"
	"sync"

	"sensorcode-go/errcode"

	"tinygo.org/x/drivers"
)

var _ ResourceRegistry = (*Registry)(nil)

// Registry hands out resource workers built from platform factories.
// Workers start on first claim and stop when the registry context ends.
type Registry struct {
	ctx context.Context
	f   Factories

	mu         sync.Mutex
	i2c        map[ResourceID]*I2COwner
	i2cUsers   map[ResourceID]map[string]struct{}
	lines      map[int]*LineOwner
	lineOwners map[int]string // pin -> devID
}

func NewRegistry(ctx context.Context, f Factories) *Registry {
	return &Registry{
		ctx:        ctx,
		f:          f,
		i2c:        make(map[ResourceID]*I2COwner),
		i2cUsers:   make(map[ResourceID]map[string]struct{}),
		lines:      make(map[int]*LineOwner),
		lineOwners: make(map[int]string),
	}
}

func (r *Registry) ClaimI2C(devID string, id ResourceID) (*I2COwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.i2c[id]
	if w == nil {
		bus, ok := r.f.I2C(id)
		if !ok {
			return nil, errcode.UnknownBus
		}
		w = NewWorker[drivers.I2C](string(id), bus, 0)
		r.i2c[id] = w
		go w.Run(r.ctx)
	}
	users := r.i2cUsers[id]
	if users == nil {
		users = make(map[string]struct{})
		r.i2cUsers[id] = users
	}
	users[devID] = struct{}{}
	return w, nil
}

// ReleaseI2C drops devID's claim. The worker keeps running for other users.
func (r *Registry) ReleaseI2C(devID string, id ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.i2cUsers[id], devID)
}

func (r *Registry) ClaimLine(devID string, pin int) (*LineOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, taken := r.lineOwners[pin]; taken && owner != devID {
		return nil, errcode.PinInUse
	}
	w := r.lines[pin]
	if w == nil {
		l, ok := r.f.Line(pin)
		if !ok {
			return nil, errcode.UnknownPin
		}
		w = NewWorker[Line]("gpio"+strconv.Itoa(pin), l, 0)
		r.lines[pin] = w
		go w.Run(r.ctx)
	}
	r.lineOwners[pin] = devID
	return w, nil
}

func (r *Registry) ReleaseLine(devID string, pin int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.lineOwners[pin]; ok && owner == devID {
		delete(r.lineOwners, pin)
	}
}

// I2CUsers reports how many devices hold a claim on bus id.
func (r *Registry) I2CUsers(id ResourceID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.i2cUsers[id])
}
