package platform

// ResourcePlan specifies wiring and operating parameters chosen by a setup.
// NewFactories consumes it to instantiate the buses and lines.
type ResourcePlan struct {
	I2C   []I2CPlan
	Lines []int // GPIO numbers usable as open-drain sensor lines
}

type I2CPlan struct {
	ID  string // e.g. "i2c0"
	SDA int    // GPIO number
	SCL int    // GPIO number
	Hz  uint32 // bus frequency
}
