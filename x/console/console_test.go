package console

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type rom [2]byte

func (r rom) String() string { return "28ff" }

func TestPrintln(t *testing.T) {
	var b bytes.Buffer
	SetOutput(&b)
	defer SetOutput(nil)

	Println("hal", "temp", int16(-12), uint8(7), float32(25.0625), true, errors.New("no_device"), rom{}, nil, struct{}{})
	Logger("ds18b20").Println("ready")
	Println("", "bare")

	want := "[hal] temp -12 7 25.0625 true no_device 28ff <nil> ?\n[ds18b20] ready\nbare\n"
	if b.String() != want {
		t.Fatalf("got %q\nwant %q", b.String(), want)
	}
}

func TestUsableFallsBackToDiscard(t *testing.T) {
	var b bytes.Buffer
	if w := usable(&b, nil); w != &b {
		t.Fatalf("configured writer replaced by %T", w)
	}
	if w := usable(&b, errors.New("uart: invalid pins")); w != io.Discard {
		t.Fatalf("failed port kept as %T", w)
	}
	if w := usable(nil, nil); w != io.Discard {
		t.Fatalf("nil writer kept as %T", w)
	}

	SetOutput(usable(&b, errors.New("uart: busy")))
	defer SetOutput(nil)
	Println("hal", "dropped")
	if b.Len() != 0 {
		t.Fatalf("wrote %q to a failed port", b.String())
	}
}
