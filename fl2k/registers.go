package fl2k

import (
	"encoding/binary"

	"fl2ktx/fl2k/usbio"
)

// ctrlTimeoutMs is the timeout applied to every vendor control transfer.
const ctrlTimeoutMs = 300

// readReg reads a 32-bit device register via a vendor control transfer.
func readReg(h *usbio.DeviceHandle, reg uint16) (uint32, error) {
	data := make([]byte, 4)
	n, err := h.ControlTransfer(usbio.CtrlIn, 0x40, 0, reg, data, ctrlTimeoutMs)
	if err != nil {
		return 0, newErr("read_reg", Other, err)
	}
	if n < len(data) {
		return 0, newErr("read_reg", Other, errShortRead)
	}
	return binary.LittleEndian.Uint32(data), nil
}

// writeReg writes val into a 32-bit device register via a vendor control transfer.
func writeReg(h *usbio.DeviceHandle, reg uint16, val uint32) error {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, val)
	n, err := h.ControlTransfer(usbio.CtrlOut, 0x41, 0, reg, data, ctrlTimeoutMs)
	if err != nil {
		return newErr("write_reg", Other, err)
	}
	if n != len(data) {
		return newErr("write_reg", Other, errShortWrite)
	}
	return nil
}

var (
	errShortRead  = errShort("short read from register")
	errShortWrite = errShort("short write to register")
)

type errShort string

func (e errShort) Error() string { return string(e) }
