package config

import (
	"context"
	"errors"

	"sensorcode-go/bus"
	"sensorcode-go/types"
	"sensorcode-go/x/console"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// Bundle is the full configuration of one device. Each field is published
// retained under config/<key>.
type Bundle struct {
	HAL       types.HALConfig
	Heartbeat types.HeartbeatConfig
}

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) (Bundle, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

var (
	errNoDevice = errors.New("missing device ID in context")
	errNoConfig = errors.New("no embedded config for device")
)

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	log  console.Logger
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName, log: console.Logger(serviceName)}
}

// publishConfig resolves the device's bundle and publishes it as retained
// messages.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errNoDevice
	}

	b, ok := EmbeddedConfigLookup(device)
	if !ok {
		return errNoConfig
	}

	conn.Publish(conn.NewMessage(bus.T(configPrefix, "hal"), b.HAL, true))
	conn.Publish(conn.NewMessage(bus.T(configPrefix, "heartbeat"), b.Heartbeat, true))
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			s.log.Println("publish failed:", err)
		}
	}()
}
