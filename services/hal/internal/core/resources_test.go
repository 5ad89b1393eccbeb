package core

import (
	"context"
	"errors"
	"testing"

	"sensorcode-go/drivers/line"
	"sensorcode-go/errcode"

	"tinygo.org/x/drivers"
)

type nopI2C struct{}

func (nopI2C) Tx(uint16, []byte, []byte) error { return nil }

type nopPin struct{}

func (nopPin) ReadLevel() bool       { return true }
func (nopPin) DriveLow()             {}
func (nopPin) Release()              {}
func (nopPin) BusyWaitMicros(uint32) {}

type fakeFactories struct{}

func (fakeFactories) I2C(id ResourceID) (drivers.I2C, bool) {
	if id == "i2c0" {
		return nopI2C{}, true
	}
	return nil, false
}

func (fakeFactories) Line(pin int) (Line, bool) {
	if pin == 15 || pin == 16 {
		return Line{Pin: nopPin{}, Critical: line.NoCritical, Number: pin}, true
	}
	return Line{}, false
}

func TestRegistryI2CShared(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRegistry(ctx, fakeFactories{})

	a, err := r.ClaimI2C("a", "i2c0")
	if err != nil {
		t.Fatalf("ClaimI2C a: %v", err)
	}
	b, err := r.ClaimI2C("b", "i2c0")
	if err != nil {
		t.Fatalf("ClaimI2C b: %v", err)
	}
	if a != b {
		t.Fatal("devices on one bus got different workers")
	}
	if r.I2CUsers("i2c0") != 2 {
		t.Fatalf("users = %d", r.I2CUsers("i2c0"))
	}
	r.ReleaseI2C("a", "i2c0")
	if r.I2CUsers("i2c0") != 1 {
		t.Fatalf("users after release = %d", r.I2CUsers("i2c0"))
	}
	if _, err := r.ClaimI2C("c", "i2c9"); !errors.Is(err, errcode.UnknownBus) {
		t.Fatalf("unknown bus: %v", err)
	}
}

func TestRegistryLineExclusive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRegistry(ctx, fakeFactories{})

	w, err := r.ClaimLine("a", 15)
	if err != nil {
		t.Fatalf("ClaimLine: %v", err)
	}
	if w.ID() != "gpio15" {
		t.Fatalf("worker id %q", w.ID())
	}
	if _, err := r.ClaimLine("b", 15); !errors.Is(err, errcode.PinInUse) {
		t.Fatalf("second claim: %v", err)
	}
	if _, err := r.ClaimLine("a", 15); err != nil {
		t.Fatalf("re-claim by owner: %v", err)
	}
	r.ReleaseLine("b", 15) // not the owner; no effect
	if _, err := r.ClaimLine("b", 15); !errors.Is(err, errcode.PinInUse) {
		t.Fatalf("claim after foreign release: %v", err)
	}
	r.ReleaseLine("a", 15)
	if _, err := r.ClaimLine("b", 15); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	if _, err := r.ClaimLine("a", 3); !errors.Is(err, errcode.UnknownPin) {
		t.Fatalf("unknown pin: %v", err)
	}
}
