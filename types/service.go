package types

// HeartbeatConfig is published retained on config/heartbeat.
type HeartbeatConfig struct {
	IntervalS uint32 `json:"interval"` // seconds; 0 keeps the current interval
}
