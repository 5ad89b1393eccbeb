package boards

import "testing"

func TestPico(t *testing.T) {
	tests := []struct {
		pin  int
		want bool
	}{
		{-1, false}, {0, true}, {15, true}, {28, true}, {29, false},
	}
	for _, tt := range tests {
		if got := Pico.InRange(tt.pin); got != tt.want {
			t.Errorf("InRange(%d) = %v", tt.pin, got)
		}
	}
	if !Pico.HasI2C("i2c1") || Pico.HasI2C("i2c2") {
		t.Error("HasI2C")
	}
}
