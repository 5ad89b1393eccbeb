package onewire

// Search enumerates the ROM codes on the bus using cmd (CmdSearchROM or
// CmdSearchAlarm). When family is non-zero only matching devices are
// returned.
//
// A bus with no presence pulse yields ErrNoDevice. A bus where devices answer
// reset but none takes part in the search (typically an alarm search with no
// device in alarm) yields an empty result. A code failing its CRC aborts the
// search with ErrBadCRC.
func Search(b Bus, cmd byte, family byte) ([]ROM, error) {
	var (
		roms    []ROM
		last    ROM
		lastDis int
	)
	for pass := 0; ; pass++ {
		if !b.Reset() {
			return nil, ErrNoDevice
		}
		b.WriteByte(cmd)

		var (
			rom      ROM
			lastZero int
		)
		for id := 1; id <= 64; id++ {
			bit := b.ReadBit()
			cmp := b.ReadBit()
			if bit && cmp {
				if pass == 0 && id == 1 {
					return roms, nil
				}
				// Devices dropped off mid-search.
				return nil, ErrNoDevice
			}

			var dir bool
			switch {
			case bit != cmp:
				dir = bit
			case id < lastDis:
				dir = last.bit(id)
			default:
				dir = id == lastDis
			}
			if bit == cmp && !dir {
				lastZero = id
			}
			rom.setBit(id, dir)
			b.WriteBit(dir)
		}

		if !rom.Valid() {
			return nil, ErrBadCRC
		}
		if family == 0 || rom.Family() == family {
			roms = append(roms, rom)
		}
		last, lastDis = rom, lastZero
		if lastDis == 0 {
			return roms, nil
		}
	}
}

// bit returns ROM bit id (1-based, LSB of byte 0 first).
func (r ROM) bit(id int) bool {
	i := id - 1
	return r[i/8]&(1<<(i%8)) != 0
}

func (r *ROM) setBit(id int, v bool) {
	i := id - 1
	if v {
		r[i/8] |= 1 << (i % 8)
	} else {
		r[i/8] &^= 1 << (i % 8)
	}
}
