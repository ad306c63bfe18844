// Package usbio is a minimal cgo binding to libusb-1.0, covering exactly the
// operations the FL2000 streaming runtime needs: device enumeration, control
// transfers, interface claiming, and asynchronous bulk transfers with a
// completion callback. It is not a general-purpose USB library.
package usbio
