// Package hal runs the hardware abstraction service: it owns the sensor
// buses, builds devices from config/hal and exposes them as capabilities
// under hal/cap/.
package hal

import (
	"context"

	"sensorcode-go/bus"
	"sensorcode-go/services/hal/internal/core"
	"sensorcode-go/services/hal/internal/platform"
	"sensorcode-go/services/hal/setups"

	// Device builders register themselves.
	_ "sensorcode-go/services/hal/devices/dht22"
	_ "sensorcode-go/services/hal/devices/ds18b20"
	_ "sensorcode-go/services/hal/devices/sht21"
)

// Run serves the selected board until ctx is cancelled.
func Run(ctx context.Context, conn *bus.Connection) {
	run(ctx, conn, platform.NewFactories(setups.SelectedPlan))
}

func run(ctx context.Context, conn *bus.Connection, f core.Factories) {
	reg := core.NewRegistry(ctx, f)
	core.NewHAL(conn, core.Resources{Reg: reg}).Run(ctx)
}
