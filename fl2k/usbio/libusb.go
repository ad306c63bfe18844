package usbio

/*
#cgo pkg-config: libusb-1.0
#include <libusb.h>
#include <string.h>

// usbioTransferCallback is defined on the Go side via //export and
// forward-declared here so it can be passed to libusb_fill_bulk_transfer.
extern void usbioTransferCallback(struct libusb_transfer *xfer);

// libusb_strerror's argument type differs across libusb releases (plain int
// vs enum libusb_error) depending on the platform and compiler; wrap it so
// cgo only ever sees one signature.
static inline const char *usbio_strerror(int code) {
	return libusb_strerror(code);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// ErrCode mirrors a libusb_error return code.
type ErrCode int

const (
	ErrIO           ErrCode = C.LIBUSB_ERROR_IO
	ErrInvalidParam ErrCode = C.LIBUSB_ERROR_INVALID_PARAM
	ErrAccess       ErrCode = C.LIBUSB_ERROR_ACCESS
	ErrNoDevice     ErrCode = C.LIBUSB_ERROR_NO_DEVICE
	ErrNotFound     ErrCode = C.LIBUSB_ERROR_NOT_FOUND
	ErrBusy         ErrCode = C.LIBUSB_ERROR_BUSY
	ErrTimeout      ErrCode = C.LIBUSB_ERROR_TIMEOUT
	ErrOverflow     ErrCode = C.LIBUSB_ERROR_OVERFLOW
	ErrPipe         ErrCode = C.LIBUSB_ERROR_PIPE
	ErrInterrupted  ErrCode = C.LIBUSB_ERROR_INTERRUPTED
	ErrNoMem        ErrCode = C.LIBUSB_ERROR_NO_MEM
	ErrNotSupported ErrCode = C.LIBUSB_ERROR_NOT_SUPPORTED
	ErrOther        ErrCode = C.LIBUSB_ERROR_OTHER
)

func (c ErrCode) String() string {
	return C.GoString(C.usbio_strerror(C.int(c)))
}

// Error wraps a failed libusb call.
type Error struct {
	Func string
	Code ErrCode
}

func (e Error) Error() string { return fmt.Sprintf("%s: %s", e.Func, e.Code) }

func errFromRC(fn string, rc C.int) error {
	if rc >= 0 {
		return nil
	}
	return Error{Func: fn, Code: ErrCode(rc)}
}

// Context owns a libusb session.
type Context struct {
	ptr      *C.libusb_context
	lastList **C.libusb_device
}

// Init opens a new libusb session at a low log verbosity, matching the
// original driver's own choice of verbosity level 3.
func Init() (*Context, error) {
	var ptr *C.libusb_context
	rc := C.libusb_init(&ptr)
	if err := errFromRC("libusb_init", rc); err != nil {
		return nil, err
	}
	C.libusb_set_option(ptr, C.LIBUSB_OPTION_LOG_LEVEL, C.int(3))
	return &Context{ptr: ptr}, nil
}

// Close tears down the libusb session. It must only be called after every
// device handle and transfer obtained from the context has been released.
func (c *Context) Close() {
	if c == nil || c.ptr == nil {
		return
	}
	C.libusb_exit(c.ptr)
	c.ptr = nil
}

// DeviceDescriptor is the subset of a USB device descriptor this binding needs.
type DeviceDescriptor struct {
	Vendor  uint16
	Product uint16
}

// Device is a reference-counted handle to an un-opened libusb device.
type Device struct {
	ptr *C.libusb_device
}

// Descriptor reads the device descriptor.
func (d *Device) Descriptor() (DeviceDescriptor, error) {
	var dd C.struct_libusb_device_descriptor
	rc := C.libusb_get_device_descriptor(d.ptr, &dd)
	if err := errFromRC("libusb_get_device_descriptor", rc); err != nil {
		return DeviceDescriptor{}, err
	}
	return DeviceDescriptor{Vendor: uint16(dd.idVendor), Product: uint16(dd.idProduct)}, nil
}

// ListDevices enumerates every USB device currently visible to the context.
// The returned list must be released with FreeDeviceList once the caller is
// done inspecting or opening entries.
func (c *Context) ListDevices() ([]*Device, error) {
	var list **C.libusb_device
	n := C.libusb_get_device_list(c.ptr, &list)
	if n < 0 {
		return nil, errFromRC("libusb_get_device_list", C.int(n))
	}
	raw := unsafe.Slice(list, int(n))
	devs := make([]*Device, int(n))
	for i, p := range raw {
		devs[i] = &Device{ptr: p}
	}
	c.lastList = list
	return devs, nil
}

// FreeDeviceList releases the list obtained from ListDevices. unrefDevices
// controls whether the underlying libusb_device references are dropped too;
// pass true unless a device from the list has been opened and must outlive
// the list.
func (c *Context) FreeDeviceList(unrefDevices bool) {
	if c.lastList == nil {
		return
	}
	unref := C.int(0)
	if unrefDevices {
		unref = 1
	}
	C.libusb_free_device_list(c.lastList, unref)
	c.lastList = nil
}

// Open opens the device, returning a handle usable for control and bulk transfers.
func (d *Device) Open() (*DeviceHandle, error) {
	var h *C.libusb_device_handle
	rc := C.libusb_open(d.ptr, &h)
	if err := errFromRC("libusb_open", rc); err != nil {
		return nil, err
	}
	return &DeviceHandle{ptr: h}, nil
}

// DeviceHandle is an opened USB device.
type DeviceHandle struct {
	ptr *C.libusb_device_handle
}

// Close closes the device handle.
func (h *DeviceHandle) Close() {
	if h == nil || h.ptr == nil {
		return
	}
	C.libusb_close(h.ptr)
	h.ptr = nil
}

// KernelDriverActive reports whether a kernel driver is attached to iface.
func (h *DeviceHandle) KernelDriverActive(iface int) (bool, error) {
	rc := C.libusb_kernel_driver_active(h.ptr, C.int(iface))
	if rc < 0 {
		return false, errFromRC("libusb_kernel_driver_active", rc)
	}
	return rc == 1, nil
}

// DetachKernelDriver detaches whatever kernel driver owns iface.
func (h *DeviceHandle) DetachKernelDriver(iface int) error {
	rc := C.libusb_detach_kernel_driver(h.ptr, C.int(iface))
	return errFromRC("libusb_detach_kernel_driver", rc)
}

// ClaimInterface claims iface for exclusive access.
func (h *DeviceHandle) ClaimInterface(iface int) error {
	rc := C.libusb_claim_interface(h.ptr, C.int(iface))
	return errFromRC("libusb_claim_interface", rc)
}

// ReleaseInterface releases a previously claimed interface.
func (h *DeviceHandle) ReleaseInterface(iface int) error {
	rc := C.libusb_release_interface(h.ptr, C.int(iface))
	return errFromRC("libusb_release_interface", rc)
}

// SetInterfaceAltSetting switches iface to the given alternate setting.
func (h *DeviceHandle) SetInterfaceAltSetting(iface, alt int) error {
	rc := C.libusb_set_interface_alt_setting(h.ptr, C.int(iface), C.int(alt))
	return errFromRC("libusb_set_interface_alt_setting", rc)
}

// Control transfer request-type bits (vendor, device-recipient).
const (
	CtrlIn  = C.LIBUSB_REQUEST_TYPE_VENDOR | C.LIBUSB_ENDPOINT_IN
	CtrlOut = C.LIBUSB_REQUEST_TYPE_VENDOR | C.LIBUSB_ENDPOINT_OUT
)

// ControlTransfer issues a synchronous vendor control transfer.
func (h *DeviceHandle) ControlTransfer(reqType, request byte, value, index uint16, data []byte, timeoutMs int) (int, error) {
	var ptr *C.uchar
	if len(data) > 0 {
		ptr = (*C.uchar)(unsafe.Pointer(&data[0]))
	}
	rc := C.libusb_control_transfer(h.ptr, C.uint8_t(reqType), C.uint8_t(request),
		C.uint16_t(value), C.uint16_t(index), ptr, C.uint16_t(len(data)), C.uint(timeoutMs))
	if rc < 0 {
		return 0, errFromRC("libusb_control_transfer", rc)
	}
	return int(rc), nil
}

// DevMemAlloc requests a kernel-mmap'ed buffer of the given length, used for
// zero-copy bulk transfers on Linux. Returns nil if the kernel/libusb
// combination does not support it.
func (h *DeviceHandle) DevMemAlloc(length int) []byte {
	ptr := C.libusb_dev_mem_alloc(h.ptr, C.size_t(length))
	if ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), length)
}

// DevMemFree releases a buffer obtained from DevMemAlloc.
func (h *DeviceHandle) DevMemFree(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	rc := C.libusb_dev_mem_free(h.ptr, (*C.uchar)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)))
	return errFromRC("libusb_dev_mem_free", rc)
}

// TransferStatus mirrors libusb_transfer_status.
type TransferStatus int

const (
	TransferCompleted TransferStatus = C.LIBUSB_TRANSFER_COMPLETED
	TransferError     TransferStatus = C.LIBUSB_TRANSFER_ERROR
	TransferTimedOut  TransferStatus = C.LIBUSB_TRANSFER_TIMED_OUT
	TransferCancelled TransferStatus = C.LIBUSB_TRANSFER_CANCELLED
	TransferStall     TransferStatus = C.LIBUSB_TRANSFER_STALL
	TransferNoDevice  TransferStatus = C.LIBUSB_TRANSFER_NO_DEVICE
	TransferOverflow  TransferStatus = C.LIBUSB_TRANSFER_OVERFLOW
)

// Transfer is a persistent, reusable asynchronous bulk transfer.
type Transfer struct {
	ptr        *C.struct_libusb_transfer
	buf        []byte
	onComplete func(*Transfer)
}

var transferRegistry = struct {
	mu sync.Mutex
	m  map[*C.struct_libusb_transfer]*Transfer
}{m: make(map[*C.struct_libusb_transfer]*Transfer)}

// AllocBulkTransfer allocates and binds a persistent bulk transfer to
// endpoint, backed by buf, with an unbounded transfer timeout (matching the
// original driver's BULK_TIMEOUT of 0 — the stream is unbounded and must
// never be allowed to time out mid-flight). onComplete runs on whichever
// goroutine calls HandleEventsTimeout when the transfer completes.
func (h *DeviceHandle) AllocBulkTransfer(endpoint byte, buf []byte, onComplete func(*Transfer)) (*Transfer, error) {
	ptr := C.libusb_alloc_transfer(0)
	if ptr == nil {
		return nil, Error{Func: "libusb_alloc_transfer", Code: ErrNoMem}
	}
	t := &Transfer{ptr: ptr, buf: buf, onComplete: onComplete}

	var data *C.uchar
	if len(buf) > 0 {
		data = (*C.uchar)(unsafe.Pointer(&buf[0]))
	}
	C.libusb_fill_bulk_transfer(
		ptr,
		h.ptr,
		C.uint8_t(endpoint),
		data,
		C.int(len(buf)),
		C.libusb_transfer_cb_fn(unsafe.Pointer(C.usbioTransferCallback)),
		nil,
		0,
	)

	transferRegistry.mu.Lock()
	transferRegistry.m[ptr] = t
	transferRegistry.mu.Unlock()

	return t, nil
}

// Buffer returns the backing byte slice of the transfer.
func (t *Transfer) Buffer() []byte { return t.buf }

// Status returns the transfer's most recently completed status.
func (t *Transfer) Status() TransferStatus { return TransferStatus(t.ptr.status) }

// Submit queues the transfer for execution.
func (t *Transfer) Submit() error {
	rc := C.libusb_submit_transfer(t.ptr)
	return errFromRC("libusb_submit_transfer", rc)
}

// Cancel requests cancellation of an in-flight transfer. Completion (with
// status TransferCancelled) is still delivered asynchronously through the
// completion callback.
func (t *Transfer) Cancel() error {
	rc := C.libusb_cancel_transfer(t.ptr)
	return errFromRC("libusb_cancel_transfer", rc)
}

// Free releases the transfer. It must not be called while the transfer may
// still be in flight.
func (t *Transfer) Free() {
	transferRegistry.mu.Lock()
	delete(transferRegistry.m, t.ptr)
	transferRegistry.mu.Unlock()
	C.libusb_free_transfer(t.ptr)
	t.ptr = nil
}

//export usbioTransferCallback
func usbioTransferCallback(xfer *C.struct_libusb_transfer) {
	transferRegistry.mu.Lock()
	t := transferRegistry.m[xfer]
	transferRegistry.mu.Unlock()
	if t == nil || t.onComplete == nil {
		return
	}
	t.onComplete(t)
}

// HandleEventsTimeout pumps the libusb event loop for up to timeoutSeconds,
// or until *cancel becomes non-zero (checked by libusb between iterations),
// matching libusb_handle_events_timeout_completed's completed-flag argument.
func (c *Context) HandleEventsTimeout(timeoutSeconds int, cancel *int32) error {
	tv := C.struct_timeval{tv_sec: C.long(timeoutSeconds)}
	var completedPtr *C.int
	if cancel != nil {
		completedPtr = (*C.int)(unsafe.Pointer(cancel))
	}
	rc := C.libusb_handle_events_timeout_completed(c.ptr, &tv, completedPtr)
	if rc == C.LIBUSB_ERROR_INTERRUPTED {
		return nil
	}
	return errFromRC("libusb_handle_events_timeout_completed", rc)
}
