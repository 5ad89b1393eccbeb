package main

import (
	"context"
	"strconv"
	"time"

	"sensorcode-go/bus"
	"sensorcode-go/services/config"
	"sensorcode-go/services/hal"
	"sensorcode-go/services/heartbeat"
	"sensorcode-go/types"
	"sensorcode-go/x/console"
)

var log = console.Logger("main")

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	log.Println("boot")

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "pico")

	b := bus.NewBus(8)

	// Watch readings before anything is published.
	mon := b.NewConnection("monitor")
	values := mon.Subscribe(bus.T("hal", "cap", "env", "+", "+", "value"))
	status := mon.Subscribe(bus.T("hal", "cap", "env", "+", "+", "status"))
	state := mon.Subscribe(bus.T("hal", "state"))

	go hal.Run(ctx, b.NewConnection("hal"))
	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	if err := (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		log.Println("heartbeat:", err)
	}

	for {
		select {
		case m := <-state.Channel():
			if s, ok := m.Payload.(types.HALState); ok {
				log.Println("hal", s.Level, s.Status)
			}
		case m := <-values.Channel():
			name, _ := m.Topic.At(4).(string)
			switch v := m.Payload.(type) {
			case types.TemperatureValue:
				log.Println(name, "temperature", deci(int32(v.DeciC), 10), "C")
			case types.HumidityValue:
				log.Println(name, "humidity", deci(int32(v.RHx100), 100), "%RH")
			}
		case m := <-status.Channel():
			if s, ok := m.Payload.(types.CapabilityStatus); ok && s.Link == types.LinkDegraded {
				log.Println(m.Topic, "degraded:", s.Error)
			}
		}
	}
}

// deci renders a fixed-point integer with the decimals implied by scale.
func deci(v, scale int32) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	frac := v % scale
	pad := ""
	for s := scale / 10; s > 1 && frac < s; s /= 10 {
		pad += "0"
	}
	return sign + strconv.Itoa(int(v/scale)) + "." + pad + strconv.Itoa(int(frac))
}
