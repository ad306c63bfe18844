// Package fl2k implements the streaming runtime for FL2000-based USB3-to-VGA
// adapters repurposed as an 8-bit DAC / SDR transmitter: device discovery
// and initialization, the PLL solver, the double-buffered asynchronous bulk
// transfer pipeline, and the wire-format byte permutation.
package fl2k

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"fl2ktx/fl2k/usbio"
)

// asyncStatus is the three-valued streaming state machine.
type asyncStatus int32

const (
	statusInactive asyncStatus = iota
	statusRunning
	statusCanceling
)

// SampleProducer supplies sample data to a running stream. Fill is invoked
// synchronously by the engine's producer goroutine; the implementation must
// not retain req's pointers after Fill returns.
type SampleProducer interface {
	Fill(req *SampleRequest) error
}

// SampleRequest is the per-callback record passed to SampleProducer.Fill.
type SampleRequest struct {
	// Len is the number of bytes the producer must place into each of
	// RBuf/GBuf/BBuf; constant across a session.
	Len int
	// UnderflowCount is the cumulative underflow counter at call time.
	UnderflowCount uint32
	// SignedSamples, when true, tells the engine to add 128 to every
	// output byte before transmission (two's-complement to unsigned bias).
	SignedSamples bool
	// RBuf, GBuf and BBuf must be set by the producer to point at Len
	// bytes of sample data. In ModeSingleChan only RBuf is consulted.
	RBuf, GBuf, BBuf []byte
	// DeviceError is set by the engine to true on the final synthesized
	// callback after device loss. A producer may also set it before
	// returning: the producer goroutine then stops calling Fill, while the
	// stream itself keeps running until StopTx.
	DeviceError bool
}

// Device is an opened FL2000 adapter. Zero value is not usable; obtain one
// via Open. All exported methods are safe to call concurrently with an
// in-progress stream unless documented otherwise.
type Device struct {
	log *log.Logger

	usbCtx *usbio.Context
	handle *usbio.DeviceHandle
	iface  int // interface actually claimed for streaming: 0 or 1

	// mu/cond serialize the transfer-pool EMPTY-wait between the
	// producer and USB-event-pump goroutines. Never held during
	// permutation; the completion callback holds it while it submits the
	// next transfer.
	mu   sync.Mutex
	cond *sync.Cond

	mode            Mode
	enabledChannels Channel
	rateBits        atomic.Uint64 // math.Float64bits(effective sample rate)

	status       atomic.Int32 // asyncStatus
	underflowCnt atomic.Uint32
	lost         atomic.Bool
	cancelFlag   int32 // set to 1 by StopTx to interrupt a blocked event-pump wait

	pool         *transferPool
	nextSeq      uint64 // written only by the producer goroutine
	grp          *errgroup.Group
	producerDone chan struct{}
}

// Enumerate returns the number of attached devices matching the built-in
// vendor/product table.
func Enumerate() (int, error) {
	ctx, err := usbio.Init()
	if err != nil {
		return 0, newErr("enumerate", Other, err)
	}
	defer ctx.Close()

	devs, err := ctx.ListDevices()
	if err != nil {
		return 0, newErr("enumerate", Other, err)
	}
	defer ctx.FreeDeviceList(true)

	count := 0
	for _, d := range devs {
		dd, err := d.Descriptor()
		if err != nil {
			continue
		}
		if findKnownDevice(dd.Vendor, dd.Product) != nil {
			count++
		}
	}
	return count, nil
}

// NameOf returns the friendly name of the index-th attached matching
// device, or "" if index is out of range.
func NameOf(index int) string {
	ctx, err := usbio.Init()
	if err != nil {
		return ""
	}
	defer ctx.Close()

	devs, err := ctx.ListDevices()
	if err != nil {
		return ""
	}
	defer ctx.FreeDeviceList(true)

	count := 0
	for _, d := range devs {
		dd, err := d.Descriptor()
		if err != nil {
			continue
		}
		known := findKnownDevice(dd.Vendor, dd.Product)
		if known == nil {
			continue
		}
		if count == index {
			return known.name
		}
		count++
	}
	return ""
}

func findKnownDevice(vendor, product uint16) *dongle {
	for i := range knownDevices {
		if knownDevices[i].vendor == vendor && knownDevices[i].product == product {
			return &knownDevices[i]
		}
	}
	return nil
}

// massStorageInterface is the interface number the adapter exposes an
// emulated flash drive on, for a Windows driver installer; a Linux kernel
// commonly auto-attaches usb-storage to it, which must be detached before
// the streaming interface can be claimed.
const massStorageInterface = 3

// Open enumerates matching devices and opens the index-th one (0-indexed),
// applying the initialization register sequence before returning.
func Open(index int, logger *log.Logger) (*Device, error) {
	if index < 0 {
		return nil, newErr("open", InvalidParam, nil)
	}
	if logger == nil {
		logger = log.Default()
	}

	usbCtx, err := usbio.Init()
	if err != nil {
		return nil, newErr("open", Other, err)
	}

	devs, err := usbCtx.ListDevices()
	if err != nil {
		usbCtx.Close()
		return nil, newErr("open", Other, err)
	}
	defer usbCtx.FreeDeviceList(false)

	var target *usbio.Device
	count := 0
	for _, d := range devs {
		dd, err := d.Descriptor()
		if err != nil {
			continue
		}
		if findKnownDevice(dd.Vendor, dd.Product) == nil {
			continue
		}
		if count == index {
			target = d
			break
		}
		count++
	}
	if target == nil {
		usbCtx.Close()
		return nil, newErr("open", InvalidParam, fmt.Errorf("no matching device at index %d", index))
	}

	handle, err := target.Open()
	if err != nil {
		usbCtx.Close()
		return nil, newErr("open", Other, err)
	}

	dev := &Device{
		log:    logger,
		usbCtx: usbCtx,
		handle: handle,
	}
	dev.cond = sync.NewCond(&dev.mu)
	dev.lost.Store(true)

	if err := dev.claimInterface(); err != nil {
		handle.Close()
		usbCtx.Close()
		return nil, err
	}

	if err := dev.applyInitSequence(); err != nil {
		handle.Close()
		usbCtx.Close()
		return nil, err
	}

	dev.lost.Store(false)
	return dev, nil
}

func (d *Device) claimInterface() error {
	active, err := d.handle.KernelDriverActive(massStorageInterface)
	if err == nil && active {
		d.log.Printf("kernel mass storage driver is attached, detaching; this may take more than 10 seconds")
		if err := d.handle.DetachKernelDriver(massStorageInterface); err != nil {
			return newErr("open", Other, err)
		}
	}

	if err := d.handle.ClaimInterface(0); err != nil {
		return newErr("open", Other, err)
	}

	if err := d.handle.SetInterfaceAltSetting(0, 1); err != nil {
		d.log.Printf("failed to switch interface 0 to altsetting 1, trying interface 1: %v", err)
		if err := d.handle.ClaimInterface(1); err != nil {
			return newErr("open", Other, err)
		}
		d.iface = 1
		return nil
	}

	d.iface = 0
	return nil
}

// applyInitSequence writes the verbatim register sequence that enables the
// DACs, disables hsync/vsync emission, and parks the PLL at a safe low
// frequency, exactly as fl2k_init_device in the original driver.
func (d *Device) applyInitSequence() error {
	seq := []struct {
		reg uint16
		val uint32
	}{
		{regI2CCmd, 0xdf0000cc},
		{regPLL, 0x00416f3f},
		{0x8048, 0x7ffb8004},
		{0x803c, 0xd701004d},
		{regMode, 0x0000031c},
		{regMode, 0x0010039d},
		{0x8008, 0x07800898},
		{0x801c, 0x00000000},
		{0x0070, 0x04186085},
		{0x8008, 0xfeff0780},
		{0x800c, 0x0000f001},
		{0x8010, 0x0400042a},
		{0x8014, 0x0010002d},
		{regMode, 0x00000002},
	}
	for _, s := range seq {
		if err := writeReg(d.handle, s.reg, s.val); err != nil {
			return newErr("open", Other, err)
		}
	}
	return nil
}

// deinit is a no-op placeholder, matching fl2k_deinit_device in the
// original driver: powering down the DACs/PLL and resetting the device was
// never implemented upstream.
func (d *Device) deinit() error { return nil }

// Close drains any in-progress streaming, runs the (no-op) deinit sequence,
// releases the claimed interface and disposes of the USB context.
//
// Unlike the original C implementation, which spins forever on a caller
// that forgot to call StopTx first, Close calls StopTx itself and bounds
// the drain with closeDrainTimeout so a forgotten StopTx cannot deadlock a
// deferred Close.
func (d *Device) Close() error {
	if asyncStatus(d.status.Load()) != statusInactive {
		_ = d.StopTx()
		d.waitInactive(closeDrainTimeout)
	}

	if !d.lost.Load() {
		if err := d.deinit(); err != nil {
			d.log.Printf("deinit failed: %v", err)
		}
	}

	if err := d.handle.ReleaseInterface(d.iface); err != nil {
		d.log.Printf("release interface failed: %v", err)
	}
	d.handle.Close()
	d.usbCtx.Close()

	return nil
}
