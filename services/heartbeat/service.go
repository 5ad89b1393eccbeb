package heartbeat

import (
	"context"
	"time"

	"sensorcode-go/bus"
	"sensorcode-go/types"
	"sensorcode-go/x/console"
)

var topicConfigHeartbeat = bus.T("config", "heartbeat")

const defaultInterval = time.Second

type Service struct {
	log console.Logger
	// beat is called on every tick; nil logs the time.
	beat func(t time.Time)
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			s.log.Println("stopping")
			return
		case t := <-tick.C:
			if s.beat != nil {
				s.beat(t)
			} else {
				s.log.Println(t.Format("15:04:05"), "heartbeat")
			}
		case msg := <-cfgSub.Channel():
			cfg, ok := msg.Payload.(types.HeartbeatConfig)
			if !ok {
				s.log.Println("ignoring config payload of unexpected type")
				continue
			}
			if cfg.IntervalS > 0 {
				tick.Reset(time.Duration(cfg.IntervalS) * time.Second)
				s.log.Println("interval set to", cfg.IntervalS, "seconds")
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.log == "" {
		s.log = console.Logger("heartbeat")
	}
	go s.serviceLoop(ctx, conn)
	return nil
}
