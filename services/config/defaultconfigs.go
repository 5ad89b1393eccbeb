package config

import (
	"sensorcode-go/services/hal/setups"
	"sensorcode-go/types"
)

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: the bundle for that device. The HAL part follows the board setup
// selected by build tags.
// -----------------------------------------------------------------------------

var embeddedConfigs = map[string]Bundle{
	"pico": {
		HAL:       setups.SelectedSetup,
		Heartbeat: types.HeartbeatConfig{IntervalS: 2},
	},
}
