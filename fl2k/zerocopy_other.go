//go:build !linux

package fl2k

// zeroCopyCapableKernel is always false outside Linux: libusb_dev_mem_alloc
// zero-copy buffers are a Linux usbfs feature.
func zeroCopyCapableKernel() bool { return false }
