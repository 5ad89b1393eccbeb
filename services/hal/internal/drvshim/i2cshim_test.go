package drvshim

import (
	"errors"
	"testing"

	"sensorcode-go/errcode"
)

type recBus struct{ addrs []uint16 }

func (b *recBus) Tx(addr uint16, w, r []byte) error {
	b.addrs = append(b.addrs, addr)
	return nil
}

func TestHotI2C(t *testing.T) {
	var h HotI2C
	if err := h.Tx(0x40, []byte{0xE5}, nil); !errors.Is(err, errcode.Busy) {
		t.Fatalf("unbound Tx: err = %v", err)
	}

	b := &recBus{}
	h.Bind(b)
	if !h.Bound() {
		t.Fatal("Bound = false after Bind")
	}
	if err := h.Tx(0x40, []byte{0xE5}, nil); err != nil {
		t.Fatalf("bound Tx: %v", err)
	}
	h.Bind(nil)
	if err := h.Tx(0x41, nil, nil); !errors.Is(err, errcode.Busy) {
		t.Fatalf("after unbind: err = %v", err)
	}
	if len(b.addrs) != 1 || b.addrs[0] != 0x40 {
		t.Fatalf("bus saw %v", b.addrs)
	}
}
