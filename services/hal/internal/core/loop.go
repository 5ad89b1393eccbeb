package core

import (
	"context"
	"time"

	"sensorcode-go/bus"
	"sensorcode-go/errcode"
	"sensorcode-go/types"
	"sensorcode-go/x/console"
	"sensorcode-go/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 8
)

// Control verbs handled by HAL itself rather than the device.
const (
	VerbPollStart = "poll_start"
	VerbPollStop  = "poll_stop"
)

type HAL struct {
	conn *bus.Connection
	res  Resources
	log  console.Logger

	// Device registry
	dev   map[string]Device // devID -> device
	order []string          // build order, for Close

	// Capability index: addr -> devID
	capIndex map[CapAddr]string

	cfgSub  *bus.Subscription
	ctrlSub *bus.Subscription

	// Single-threaded publication of device events
	evCh chan Event

	pollCh chan PollReq
	poller *Poller
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	h := &HAL{
		conn:     conn,
		res:      res,
		log:      console.Logger("hal"),
		dev:      map[string]Device{},
		capIndex: map[CapAddr]string{},
		evCh:     make(chan Event, eventQueueLen),
		pollCh:   make(chan PollReq, pollQueueLen),
	}
	h.poller = NewPoller(h.pollCh)
	// HAL provides the emitter to devices.
	h.res.Pub = h
	return h
}

func (h *HAL) Run(ctx context.Context) {
	h.cfgSub = h.conn.Subscribe(topicConfigHAL())
	h.ctrlSub = h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(h.cfgSub)
	defer h.conn.Unsubscribe(h.ctrlSub)

	go h.poller.Run(ctx)

	h.pubHALState("idle", "awaiting_config")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-h.cfgSub.Channel():
			v, ok := msg.Payload.(types.HALConfig)
			if !ok {
				h.log.Println("ignoring config payload of unexpected type")
				continue
			}
			// Additive: devices already built are left alone.
			h.applyConfig(ctx, v)
			if !ready {
				ready = true
				h.pubHALState("ready", "")
			}
		case m := <-h.ctrlSub.Channel():
			if !ready {
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m) // strictly non-blocking
		case req := <-h.pollCh:
			h.handlePoll(req)
		case ev := <-h.evCh:
			// All device→HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		}
	}
}

func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			h.log.Println("no builder for type:", dc.Type, "id:", dc.ID)
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{
			ID:     dc.ID,
			Type:   dc.Type,
			Params: dc.Params,
			Res:    h.res,
		})
		if err != nil {
			h.log.Println("build failed for:", dc.ID, "err:", err)
			continue
		}
		if err := dev.Init(ctx); err != nil {
			h.log.Println("init failed for:", dc.ID, "err:", err)
			_ = dev.Close()
			continue
		}
		h.dev[dev.ID()] = dev
		h.order = append(h.order, dev.ID())

		// Register capabilities, publish retained info + initial status:down
		for _, cs := range dev.Capabilities() {
			a := addrOf(cs, dev.ID())
			h.capIndex[a] = dev.ID()

			h.conn.Publish(h.conn.NewMessage(capInfo(a), cs.Info, true))
			h.conn.Publish(h.conn.NewMessage(
				capStatus(a),
				types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowNs()},
				true,
			))
		}
		h.log.Println("device up:", dc.ID, "type:", dc.Type)
	}

	for _, ps := range cfg.Pollers {
		a := CapAddr{Domain: ps.Domain, Kind: string(ps.Kind), Name: ps.Name}
		if a.Domain == "" {
			a.Domain = defaultDomainFor(a.Kind)
		}
		targets := h.pollTargets(a)
		if len(targets) == 0 {
			h.log.Println("poller for unknown capability:", capBase(a))
			continue
		}
		verb := ps.Verb
		if verb == "" {
			verb = "read"
		}
		for _, t := range targets {
			h.schedule(t, verb, ps.IntervalMs, ps.JitterMs)
		}
	}
}

// pollTargets resolves a poll address. An exact capability wins; otherwise a
// name equal to a device ID selects every capability of that device with the
// same domain and kind (a 1-Wire bus whose sensors are named <id>-<rom>).
func (h *HAL) pollTargets(a CapAddr) []CapAddr {
	if _, ok := h.capIndex[a]; ok {
		return []CapAddr{a}
	}
	dev := h.dev[a.Name]
	if dev == nil {
		return nil
	}
	var out []CapAddr
	for _, cs := range dev.Capabilities() {
		c := addrOf(cs, dev.ID())
		if c.Domain == a.Domain && c.Kind == a.Kind {
			out = append(out, c)
		}
	}
	return out
}

// schedule arms a poller on a, honouring the owning device's minimum period.
func (h *HAL) schedule(a CapAddr, verb string, intervalMs uint32, jitterMs uint16) {
	s := Schedule{
		Addr:   a,
		Verb:   verb,
		Every:  time.Duration(intervalMs) * time.Millisecond,
		Jitter: time.Duration(jitterMs) * time.Millisecond,
	}
	if p, ok := h.dev[h.capIndex[a]].(Paced); ok {
		s.Floor = p.MinPollInterval()
	}
	if got := h.poller.Upsert(s); got > s.Every {
		h.log.Println("poll period for", capBase(a), "raised to", got)
	}
}

func addrOf(cs CapabilitySpec, devID string) CapAddr {
	a := CapAddr{Domain: cs.Domain, Kind: string(cs.Kind), Name: cs.Name}
	if a.Domain == "" {
		a.Domain = defaultDomainFor(a.Kind)
	}
	if a.Name == "" {
		a.Name = devID
	}
	return a
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() < 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)
	a := CapAddr{Domain: domain, Kind: kind, Name: name}

	ownerID, ok := h.capIndex[a]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}

	switch verb {
	case VerbPollStart:
		p, code := As[types.PollStart](msg.Payload)
		if code != "" || p.IntervalMs == 0 {
			h.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if p.Verb == "" {
			p.Verb = "read"
		}
		h.schedule(a, p.Verb, p.IntervalMs, p.JitterMs)
		h.replyOK(msg)
		return
	case VerbPollStop:
		p, code := As[types.PollStop](msg.Payload)
		if code != "" {
			h.replyErr(msg, code)
			return
		}
		if p.Verb == "" {
			p.Verb = "read"
		}
		h.poller.Stop(a, p.Verb)
		h.replyOK(msg)
		return
	}

	dev := h.dev[ownerID]
	if dev == nil {
		h.replyErr(msg, errcode.Error)
		return
	}
	res, err := dev.Control(a, verb, msg.Payload)
	if err != nil {
		h.replyFromError(msg, err)
		return
	}
	if res.OK {
		h.poller.BumpAfter(a, verb, timex.NowNs())
		h.replyOK(msg)
		return
	}
	code := res.Error
	if code == "" {
		code = errcode.Busy
	}
	h.replyErr(msg, code)
}

func (h *HAL) handlePoll(req PollReq) {
	dev := h.dev[h.capIndex[req.Addr]]
	if dev == nil {
		h.poller.Stop(req.Addr, req.Verb)
		return
	}
	res, err := dev.Control(req.Addr, req.Verb, nil)
	if err != nil {
		h.log.Println("poll", capBase(req.Addr), req.Verb, "failed:", err)
		return
	}
	if !res.OK && res.Error != errcode.Busy {
		h.log.Println("poll", capBase(req.Addr), req.Verb, "rejected:", res.Error)
	}
}

func (h *HAL) handleEvent(ev Event) {
	a := ev.Addr
	if ev.TS == 0 {
		ev.TS = timex.NowNs()
	}

	// 1) Error → retained status:degraded; no value/event published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			capStatus(a),
			types.CapabilityStatus{Link: types.LinkDegraded, TS: ev.TS, Error: ev.Err},
			true,
		))
		return
	}

	// 2) Success: event vs value
	if ev.IsEvent {
		h.conn.Publish(h.conn.NewMessage(capEvent(a, ev.EventTag), ev.Payload, false))
	} else {
		h.conn.Publish(h.conn.NewMessage(capValue(a), ev.Payload, true))
	}
	h.conn.Publish(h.conn.NewMessage(
		capStatus(a),
		types.CapabilityStatus{Link: types.LinkUp, TS: ev.TS},
		true,
	))
}

func (h *HAL) closeAll() {
	for i := len(h.order) - 1; i >= 0; i-- {
		if d := h.dev[h.order[i]]; d != nil {
			if err := d.Close(); err != nil {
				h.log.Println("close failed for:", d.ID(), "err:", err)
			}
		}
	}
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		topicHALState(),
		types.HALState{Level: level, Status: status, TS: timex.NowNs()},
		true,
	))
}

func defaultDomainFor(kind string) string {
	switch kind {
	case string(types.KindTemperature), string(types.KindHumidity):
		return "env"
	default:
		return "io"
	}
}

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}

// Resources returns the resources handed to builders, with HAL as emitter.
func (h *HAL) Resources() Resources { return h.res }
