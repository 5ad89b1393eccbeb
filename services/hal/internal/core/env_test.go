package core

import (
	"testing"

	"periph.io/x/conn/v3/physic"
)

func TestEnvConversions(t *testing.T) {
	cases := []struct {
		name  string
		env   physic.Env
		deciC int16
		rh    uint16
	}{
		{"room", physic.Env{Temperature: physic.ZeroCelsius + 25062500*physic.MicroKelvin, Humidity: 4869 * 100 * physic.MicroRH}, 251, 4869},
		{"freezing", physic.Env{Temperature: physic.ZeroCelsius - 10125*physic.MilliKelvin}, -101, 0},
		{"saturated", physic.Env{Temperature: physic.ZeroCelsius, Humidity: 104 * physic.PercentRH}, 0, 10000},
		{"cold", physic.Env{Temperature: physic.ZeroCelsius - 40*physic.Kelvin}, -400, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TemperatureOf(tc.env).DeciC; got != tc.deciC {
				t.Fatalf("DeciC = %d, want %d", got, tc.deciC)
			}
			if got := HumidityOf(tc.env).RHx100; got != tc.rh {
				t.Fatalf("RHx100 = %d, want %d", got, tc.rh)
			}
		})
	}
}
