//go:build sensors_minimal

package setups

import (
	sht21dev "sensorcode-go/services/hal/devices/sht21"
	"sensorcode-go/services/hal/internal/platform"
	"sensorcode-go/types"
)

var SelectedPlan = platform.ResourcePlan{
	I2C: []platform.I2CPlan{
		{ID: "i2c0", SDA: 4, SCL: 5, Hz: 100_000},
	},
}

var SelectedSetup = types.HALConfig{
	Devices: []types.HALDevice{
		{ID: "air", Type: "sht21", Params: sht21dev.Params{Bus: "i2c0"}},
	},
	Pollers: []types.PollSpec{
		{Domain: "env", Kind: types.KindTemperature, Name: "air", Verb: "read", IntervalMs: 2_000},
	},
}
