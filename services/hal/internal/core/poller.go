package core

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"

	"sensorcode-go/x/mathx"
)

// PollReq asks HAL to issue verb on a capability.
type PollReq struct {
	Addr  CapAddr
	Verb  string
	Every time.Duration
}

// Schedule is one periodic control on a capability.
type Schedule struct {
	Addr   CapAddr
	Verb   string
	Every  time.Duration
	Jitter time.Duration // extra random delay in [0, Jitter], capped at Every
	// Floor is the shortest period the sensor tolerates. Every is raised to it.
	Floor time.Duration
}

func (s Schedule) key() pollKey { return pollKey{addr: s.Addr, verb: s.Verb} }

type pollKey struct {
	addr CapAddr
	verb string
}

type entry struct {
	Schedule
	due time.Time
	pos int
}

// dueQueue orders entries by due time, earliest first.
type dueQueue []*entry

func (q dueQueue) Len() int           { return len(q) }
func (q dueQueue) Less(i, j int) bool { return q[i].due.Before(q[j].due) }
func (q dueQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].pos, q[j].pos = i, j
}
func (q *dueQueue) Push(x any) {
	e := x.(*entry)
	e.pos = len(*q)
	*q = append(*q, e)
}
func (q *dueQueue) Pop() any {
	old := *q
	e := old[len(old)-1]
	e.pos = -1
	*q = old[:len(old)-1]
	return e
}

// Poller fires PollReqs on per-capability schedules. A request that finds the
// output channel full is dropped; the schedule is not affected.
type Poller struct {
	mu      sync.Mutex
	entries map[pollKey]*entry
	q       dueQueue
	rng     *rand.Rand

	wake chan struct{}
	out  chan<- PollReq
}

func NewPoller(out chan<- PollReq) *Poller {
	return &Poller{
		entries: make(map[pollKey]*entry),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		wake:    make(chan struct{}, 1),
		out:     out,
	}
}

// Upsert adds or replaces a schedule and returns the period actually used.
// Schedules with no verb or a non-positive period are ignored (0 returned).
// The first fire is one jittered period from now.
func (p *Poller) Upsert(s Schedule) time.Duration {
	if s.Verb == "" || s.Every <= 0 {
		return 0
	}
	if s.Every < s.Floor {
		s.Every = s.Floor
	}
	s.Jitter = mathx.Clamp(s.Jitter, 0, s.Every)

	p.mu.Lock()
	e := p.entries[s.key()]
	if e == nil {
		e = &entry{pos: -1}
		p.entries[s.key()] = e
	}
	e.Schedule = s
	e.due = time.Now().Add(p.period(s))
	if e.pos < 0 {
		heap.Push(&p.q, e)
	} else {
		heap.Fix(&p.q, e.pos)
	}
	p.mu.Unlock()

	p.kick()
	return s.Every
}

func (p *Poller) Stop(a CapAddr, verb string) {
	k := pollKey{addr: a, verb: verb}
	p.mu.Lock()
	if e := p.entries[k]; e != nil {
		heap.Remove(&p.q, e.pos)
		delete(p.entries, k)
	}
	p.mu.Unlock()
	p.kick()
}

// BumpAfter pushes the next fire to one period after lastEmitNs, so an
// on-demand read is not followed at once by a scheduled one.
func (p *Poller) BumpAfter(a CapAddr, verb string, lastEmitNs int64) {
	p.mu.Lock()
	if e := p.entries[pollKey{addr: a, verb: verb}]; e != nil {
		due := time.Unix(0, lastEmitNs).Add(e.Every)
		if now := time.Now(); due.Before(now) {
			due = now
		}
		e.due = due
		heap.Fix(&p.q, e.pos)
	}
	p.mu.Unlock()
	p.kick()
}

// Len returns the number of active schedules.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Every returns the period in force for a schedule, or 0 if none exists.
func (p *Poller) Every(a CapAddr, verb string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e := p.entries[pollKey{addr: a, verb: verb}]; e != nil {
		return e.Every
	}
	return 0
}

func (p *Poller) Run(ctx context.Context) {
	t := time.NewTimer(time.Hour)
	defer t.Stop()

	for {
		req, fire, wait := p.step(time.Now())
		if fire {
			select {
			case p.out <- req:
			default:
			}
			continue
		}

		var tc <-chan time.Time
		if wait > 0 {
			t.Reset(wait)
			tc = t.C
		}
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-tc:
		}
		t.Stop()
	}
}

// step re-arms and returns the earliest schedule if it is due at now.
// Otherwise it returns how long to sleep; 0 means there is nothing scheduled.
func (p *Poller) step(now time.Time) (PollReq, bool, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.q) == 0 {
		return PollReq{}, false, 0
	}
	e := p.q[0]
	if wait := e.due.Sub(now); wait > 0 {
		return PollReq{}, false, wait
	}
	e.due = now.Add(p.period(e.Schedule))
	heap.Fix(&p.q, 0)
	return PollReq{Addr: e.Addr, Verb: e.Verb, Every: e.Every}, true, 0
}

func (p *Poller) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// period must be called with mu held.
func (p *Poller) period(s Schedule) time.Duration {
	if s.Jitter <= 0 {
		return s.Every
	}
	return s.Every + time.Duration(p.rng.Int63n(int64(s.Jitter)+1))
}
