package ds18b20

import "sensorcode-go/drivers/onewire"

// List owns the devices found by one bus search. Handles stay valid until
// Release.
type List struct {
	devs []*Device
}

// Search discovers DS18B20 devices on bus. With alarmOnly only devices whose
// alarm flag is set answer. Every device starts with an idle session.
func Search(bus onewire.Bus, alarmOnly bool, cfg Config) (*List, error) {
	cmd := byte(onewire.CmdSearchROM)
	if alarmOnly {
		cmd = onewire.CmdSearchAlarm
	}
	roms, err := onewire.Search(bus, cmd, FamilyCode)
	if err != nil {
		return nil, err
	}
	l := &List{devs: make([]*Device, 0, len(roms))}
	for _, r := range roms {
		l.devs = append(l.devs, NewDevice(bus, r, cfg))
	}
	return l, nil
}

// Len returns the number of devices held.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.devs)
}

// Devices returns the held handles. The slice must not be retained past
// Release.
func (l *List) Devices() []*Device {
	if l == nil {
		return nil
	}
	return l.devs
}

// Find returns the device with the given ROM, or nil.
func (l *List) Find(rom onewire.ROM) *Device {
	for _, d := range l.Devices() {
		if d.rom == rom {
			return d
		}
	}
	return nil
}

// Release invalidates every handle in the list at once. Outstanding
// conversions stop at their next tick.
func (l *List) Release() {
	if l == nil {
		return
	}
	for _, d := range l.devs {
		d.released.Store(true)
	}
	l.devs = nil
}
