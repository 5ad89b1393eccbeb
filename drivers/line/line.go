// Package line is the minimal GPIO surface used by bit-banged bus drivers.
//
// A Pin models an open-drain data line with an external (or internal) pull-up:
// the driver can only pull it low or let it float high. Keeping the surface this
// small lets the timing-sensitive decoders run against a simulated line in tests.
package line

// Pin is a single open-drain data line.
type Pin interface {
	// ReadLevel samples the line; true is high.
	ReadLevel() bool
	// DriveLow actively pulls the line low.
	DriveLow()
	// Release stops driving the line and lets the pull-up take it high.
	Release()
	// BusyWaitMicros spins for approximately us microseconds.
	BusyWaitMicros(us uint32)
}

// Critical runs fn with preemption masked (interrupts off on MCU targets).
// Implementations must always run fn exactly once.
type Critical func(fn func())

// NoCritical runs fn directly. It is the default on hosts and in tests.
func NoCritical(fn func()) { fn() }
