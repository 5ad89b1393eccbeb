//go:build !sensors_minimal

package setups

import (
	dht22dev "sensorcode-go/services/hal/devices/dht22"
	ds18b20dev "sensorcode-go/services/hal/devices/ds18b20"
	sht21dev "sensorcode-go/services/hal/devices/sht21"
	"sensorcode-go/services/hal/internal/platform"
	"sensorcode-go/types"
)

var SelectedPlan = platform.ResourcePlan{
	I2C: []platform.I2CPlan{
		{ID: "i2c0", SDA: 4, SCL: 5, Hz: 100_000},
	},
	Lines: []int{15, 16},
}

var SelectedSetup = types.HALConfig{
	Devices: []types.HALDevice{
		// Enclosure air (public addresses under hal/cap/env/*/air/…)
		{ID: "air", Type: "sht21", Params: sht21dev.Params{Bus: "i2c0"}},

		// Outdoor probe on GP15.
		{ID: "outdoor", Type: "dht22", Params: dht22dev.Params{Pin: 15}},

		// Every DS18B20 on the GP16 1-Wire bus; names become probe-<rom>
		// when more than one answers.
		{ID: "probe", Type: "ds18b20", Params: ds18b20dev.Params{Pin: 16}},
	},

	// Humidity comes with every temperature read, so polling temperature suffices.
	Pollers: []types.PollSpec{
		{Domain: "env", Kind: types.KindTemperature, Name: "air", Verb: "read", IntervalMs: 5_000, JitterMs: 200},
		{Domain: "env", Kind: types.KindTemperature, Name: "outdoor", Verb: "read", IntervalMs: 5_000, JitterMs: 200},
		{Domain: "env", Kind: types.KindTemperature, Name: "probe", Verb: "read", IntervalMs: 5_000, JitterMs: 200},
	},
}
