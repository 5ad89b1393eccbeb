// Command pico-hal-main brings up the HAL alone against the selected board
// setup and drives every temperature capability by hand: identify once, then
// read on a fixed cadence. Everything under hal/ is echoed to the console.
//
//	tinygo flash -target pico ./cmd/pico-hal-main
package main

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"sensorcode-go/bus"
	"sensorcode-go/services/hal"
	"sensorcode-go/services/hal/setups"
	"sensorcode-go/types"
	"sensorcode-go/x/console"
)

var log = console.Logger("bench")

const readEvery = 3 * time.Second

func main() {
	time.Sleep(3 * time.Second)
	ctx := context.Background()

	b := bus.NewBus(16)
	halConn := b.NewConnection("hal")
	ui := b.NewConnection("ui")

	state := ui.Subscribe(bus.T("hal", "state"))
	infos := ui.Subscribe(bus.T("hal", "cap", "env", "temperature", "+", "info"))
	mon := ui.Subscribe(bus.T("hal", "cap", "#"))
	go func() {
		for m := range mon.Channel() {
			log.Println("<-", m.Topic, describe(m.Payload))
		}
	}()

	log.Println("starting hal")
	go hal.Run(ctx, halConn)
	waitLevel(state, "idle")

	ui.Publish(ui.NewMessage(bus.T("config", "hal"), setups.SelectedSetup, true))
	waitLevel(state, "ready")

	// Capabilities publish info before HAL reports ready.
	var names []string
	for drained := false; !drained; {
		select {
		case m := <-infos.Channel():
			if name, ok := m.Topic.At(4).(string); ok {
				names = append(names, name)
			}
		case <-time.After(200 * time.Millisecond):
			drained = true
		}
	}
	log.Println("temperature capabilities:", len(names))

	for _, n := range names {
		request(ctx, ui, n, "identify")
	}
	for {
		for _, n := range names {
			request(ctx, ui, n, "read")
		}
		printMem()
		time.Sleep(readEvery)
	}
}

func waitLevel(sub *bus.Subscription, level string) {
	for m := range sub.Channel() {
		if s, ok := m.Payload.(types.HALState); ok && s.Level == level {
			return
		}
	}
}

func request(ctx context.Context, c *bus.Connection, name, verb string) {
	t := bus.T("hal", "cap", "env", "temperature", name, "control", verb)
	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	reply, err := c.RequestWait(rctx, c.NewMessage(t, nil, false))
	if err != nil {
		log.Println(name, verb, "no reply:", err)
		return
	}
	if r, ok := reply.Payload.(types.ErrorReply); ok {
		log.Println(name, verb, "refused:", r.Error)
	}
}

func describe(p any) any {
	switch v := p.(type) {
	case types.TemperatureValue:
		return v.DeciC
	case types.HumidityValue:
		return v.RHx100
	case types.CapabilityStatus:
		return string(v.Link) + " " + v.Error
	case types.SensorIdentity:
		return v.Sensor + " " + v.Serial
	case types.AlarmValue:
		return strconv.Itoa(int(v.Low)) + ".." + strconv.Itoa(int(v.High))
	case types.Info:
		return v.Driver
	}
	return ""
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	log.Println("mem",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
