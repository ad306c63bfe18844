package fl2k

// LoadCustomPalette programs all 256 palette RAM entries and verifies each
// write. A verification mismatch is logged but does not fail the call,
// matching the original driver: the hardware's own read pointer is known to
// be unreliable, not the write path.
func (d *Device) LoadCustomPalette(palette [PaletteSize]uint32) error {
	for i, entry := range palette {
		if err := writeReg(d.handle, regPaletteRW, (entry<<8)|uint32(i&0xff)); err != nil {
			d.log.Printf("error writing palette entry %d: %v", i, err)
		}
	}

	for i, want := range palette {
		// The read-pointer register has a fixed +1 offset quirk.
		if err := writeReg(d.handle, regPaletteRP, uint32((i+1)&0xff)); err != nil {
			return newErr("load_custom_palette", Other, err)
		}
		got, err := readReg(d.handle, regPaletteRW)
		if err != nil {
			return newErr("load_custom_palette", Other, err)
		}
		if got != want {
			d.log.Printf("palette entry %d mismatch: got 0x%06x, expected 0x%06x", i, got, want)
		}
	}

	return nil
}

// SetEnabledChannels programs a palette emitting linear 8-bit ramps on the
// enabled channels of mask and zero on the others. Unlike SetMode, this is
// not guarded against a running stream; the effect of a palette write
// during streaming is undefined, matching the original driver.
func (d *Device) SetEnabledChannels(mask Channel) error {
	d.enabledChannels = mask

	var palette [PaletteSize]uint32
	for i := range palette {
		v := uint32(i & 0xff)
		var entry uint32
		if mask&ChanR != 0 {
			entry |= v << 16
		}
		if mask&ChanG != 0 {
			entry |= v << 8
		}
		if mask&ChanB != 0 {
			entry |= v
		}
		palette[i] = entry
	}

	return d.LoadCustomPalette(palette)
}

// SetMode switches between single-channel (palette) and multi-channel (RGB)
// output. It is rejected with Busy while streaming, and idempotent when the
// requested mode is already active.
func (d *Device) SetMode(mode Mode) error {
	if asyncStatus(d.status.Load()) == statusRunning {
		return newErr("set_mode", Busy, nil)
	}
	if d.mode == mode {
		return nil
	}

	reg, err := readReg(d.handle, regMode)
	if err != nil {
		return newErr("set_mode", Other, err)
	}

	switch mode {
	case ModeSingleChan:
		reg |= (1 << 25) | (1 << 26)
		if err := d.SetEnabledChannels(ChanR); err != nil {
			return newErr("set_mode", Other, err)
		}
	case ModeMultiChan:
		reg &^= (1 << 25) | (1 << 26)
	default:
		return newErr("set_mode", InvalidParam, nil)
	}

	if err := writeReg(d.handle, regMode, reg); err != nil {
		return newErr("set_mode", Other, err)
	}

	d.mode = mode
	return nil
}

// Mode returns the currently configured mode.
func (d *Device) Mode() Mode { return d.mode }
