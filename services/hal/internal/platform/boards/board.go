// Package boards describes what the PCB/SoC can do. Wiring choices live in
// services/hal/setups.
package boards

// Board lists controller identities and the usable GPIO range.
type Board struct {
	Name             string
	GPIOMin, GPIOMax int
	I2C              []string
}

// HasI2C reports whether the board has I2C controller id.
func (b Board) HasI2C(id string) bool {
	for _, c := range b.I2C {
		if c == id {
			return true
		}
	}
	return false
}

// InRange reports whether n is a user GPIO.
func (b Board) InRange(n int) bool { return n >= b.GPIOMin && n <= b.GPIOMax }

// Pico covers the Raspberry Pi Pico and Pico 2 (GP0..GP28).
var Pico = Board{
	Name:    "pico",
	GPIOMin: 0,
	GPIOMax: 28,
	I2C:     []string{"i2c0", "i2c1"},
}
