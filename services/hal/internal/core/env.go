package core

import (
	"math"

	"sensorcode-go/types"
	"sensorcode-go/x/mathx"

	"periph.io/x/conn/v3/physic"
)

// TemperatureOf converts a reading to tenths of a degree Celsius.
func TemperatureOf(e physic.Env) types.TemperatureValue {
	c := float32(e.Temperature.Celsius())
	return types.TemperatureValue{DeciC: mathx.Fixed[int16](c, 10, math.MinInt16, math.MaxInt16)}
}

// HumidityOf converts a reading to hundredths of a percent, within 0..100 %RH.
func HumidityOf(e physic.Env) types.HumidityValue {
	rh := float32(float64(e.Humidity) / float64(physic.PercentRH))
	return types.HumidityValue{RHx100: mathx.Fixed[uint16](rh, 100, 0, 10000)}
}
