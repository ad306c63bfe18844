package fl2k

import (
	"time"

	"fl2ktx/fl2k/usbio"
)

const (
	i2cPollAttempts = 10
	i2cPollInterval = 10 * time.Millisecond
)

// I2CRead reads 4 bytes from reg on the I2C slave at addr7 via the
// adapter's register-mediated I2C master, over a vendor control transfer.
func (d *Device) I2CRead(addr7, reg byte) ([4]byte, error) {
	var out [4]byte

	cur, err := readReg(d.handle, regI2CCmd)
	if err != nil {
		return out, newErr("i2c_read", Other, err)
	}

	cmd := cur & 0x3ffc0000
	cmd |= (1 << 28) | (uint32(reg) << 8) | (1 << 7) | uint32(addr7&0x7f)

	if err := writeReg(d.handle, regI2CCmd, cmd); err != nil {
		return out, newErr("i2c_read", Other, err)
	}

	status, err := d.pollI2C()
	if err != nil {
		return out, err
	}
	if status&(0x0f<<24) != 0 {
		return out, newErr("i2c_read", NotFound, nil)
	}

	data := make([]byte, 4)
	if _, err := d.handle.ControlTransfer(usbio.CtrlIn, 0x40, 0, regI2CData, data, ctrlTimeoutMs); err != nil {
		return out, newErr("i2c_read", Other, err)
	}
	copy(out[:], data)
	return out, nil
}

// I2CWrite writes the 4 bytes in data to reg on the I2C slave at addr7.
func (d *Device) I2CWrite(addr7, reg byte, data [4]byte) error {
	buf := make([]byte, 4)
	copy(buf, data[:])
	if _, err := d.handle.ControlTransfer(usbio.CtrlOut, 0x41, 0, regI2CWrData, buf, ctrlTimeoutMs); err != nil {
		return newErr("i2c_write", Other, err)
	}

	cur, err := readReg(d.handle, regI2CCmd)
	if err != nil {
		return newErr("i2c_write", Other, err)
	}

	cmd := cur & 0x3ffc0000
	cmd |= (1 << 28) | (uint32(reg) << 8) | uint32(addr7&0x7f)

	if err := writeReg(d.handle, regI2CCmd, cmd); err != nil {
		return newErr("i2c_write", Other, err)
	}

	status, err := d.pollI2C()
	if err != nil {
		return err
	}
	if status&(0x0f<<24) != 0 {
		return newErr("i2c_write", NotFound, nil)
	}

	return nil
}

// pollI2C polls register 0x8020 for the done bit (31), 10 times at 10ms
// intervals, returning the final register value.
func (d *Device) pollI2C() (uint32, error) {
	for i := 0; i < i2cPollAttempts; i++ {
		time.Sleep(i2cPollInterval)

		reg, err := readReg(d.handle, regI2CCmd)
		if err != nil {
			return 0, newErr("i2c_poll", Other, err)
		}
		if reg&(1<<31) != 0 {
			return reg, nil
		}
	}
	return 0, newErr("i2c_poll", Timeout, nil)
}
