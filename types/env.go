package types

// ------------------------
// Temperature & humidity
// ------------------------

// TemperatureInfo describes where a temperature capability is wired.
// I2C sensors fill Addr/Bus; single-wire and 1-Wire sensors fill Pin (and ROM).
type TemperatureInfo struct {
	Sensor string `json:"sensor"` // "dht22", "ds18b20", "sht21"
	Addr   uint16 `json:"addr,omitempty"`
	Bus    string `json:"bus,omitempty"`
	Pin    int    `json:"pin,omitempty"`
	ROM    string `json:"rom,omitempty"` // 16 hex digits, family first
}

type HumidityInfo struct {
	Sensor string `json:"sensor"`
	Addr   uint16 `json:"addr,omitempty"`
	Bus    string `json:"bus,omitempty"`
	Pin    int    `json:"pin,omitempty"`
}

type TemperatureValue struct {
	// Tenths of °C (e.g. 231 => 23.1°C).
	DeciC int16 `json:"deci_c"`
}

type HumidityValue struct {
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
}

// ------------------------
// Sensor controls
// ------------------------

// AlarmSet programs DS18B20 trip points (whole °C).
type AlarmSet struct {
	Low  int8 `json:"low"`
	High int8 `json:"high"`
}

// AlarmValue is published on event/alarm after get_alarm or set_alarm.
type AlarmValue struct {
	Low  int8 `json:"low"`
	High int8 `json:"high"`
}

// ResolutionSet selects measurement resolution.
// DS18B20: Bits in 9..12 (temperature bits).
// SHT21: Bits is the RH resolution, one of 8, 10, 11, 12.
type ResolutionSet struct {
	Bits uint8 `json:"bits"`
}

// ResolutionValue is published on event/resolution after get_resolution.
// Bits follows the ResolutionSet convention of the sensor.
type ResolutionValue struct {
	Bits uint8 `json:"bits"`
}

// HeaterSet drives the SHT21 on-chip heater.
type HeaterSet struct {
	On    bool  `json:"on"`
	Level uint8 `json:"level"` // 0..15
}

// HeaterValue is published on event/heater after get_heater.
type HeaterValue HeaterSet

// SensorIdentity is published on event/identity.
type SensorIdentity struct {
	Sensor   string `json:"sensor"`
	Serial   string `json:"serial"` // hex
	Firmware uint8  `json:"firmware,omitempty"`
	Parasite bool   `json:"parasite,omitempty"` // 1-Wire only
}
