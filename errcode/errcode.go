package errcode

import "errors"

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	HALNotReady       Code = "hal_not_ready"
	InvalidTopic      Code = "invalid_topic"

	UnknownBus Code = "unknown_bus"
	BusInUse   Code = "bus_in_use"
	UnknownPin Code = "unknown_pin"
	PinInUse   Code = "pin_in_use"
	Timeout    Code = "timeout"

	// Sensor taxonomy.
	NoDevice             Code = "no_device"
	DeviceNull           Code = "device_null"
	BadResponse          Code = "bad_response"
	Parity               Code = "parity"
	BadCRC               Code = "bad_crc"
	DataCorrupted        Code = "data_corrupted"
	ConversionInProgress Code = "conversion_in_progress"
	TimerUnavailable     Code = "timer_unavailable"

	Error Code = "error" // generic fallback
)

// E keeps a code together with the operation that raised it and an optional cause.
// Drivers declare package-level *E sentinels so callers can use errors.Is.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.C)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New returns a sentinel error for op carrying code c.
func New(op string, c Code, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code.
// Driver sentinels carry their own code; bus transport errors fall back to Error.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	return Of(err)
}
