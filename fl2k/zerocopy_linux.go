//go:build linux

package fl2k

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// zeroCopyMinKernel is the earliest kernel release this driver trusts to
// have a working (non-buggy) usbfs mmap path for libusb_dev_mem_alloc.
// Older kernels are steered straight to userspace buffers rather than run
// the zero-page probe against a subsystem known to sometimes hand back
// pages that were never faulted in.
var zeroCopyMinKernel = [2]int{4, 6}

// zeroCopyCapableKernel reports whether the running kernel is new enough to
// attempt kernel-mmap'ed zero-copy transfer buffers.
func zeroCopyCapableKernel() bool {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return false
	}
	major, minor, ok := parseKernelVersion(cString(uts.Release[:]))
	if !ok {
		return false
	}
	if major != zeroCopyMinKernel[0] {
		return major > zeroCopyMinKernel[0]
	}
	return minor >= zeroCopyMinKernel[1]
}

func cString(b []byte) string {
	n := len(b)
	for i, c := range b {
		if c == 0 {
			n = i
			break
		}
	}
	return string(b[:n])
}

// parseKernelVersion extracts the leading "major.minor" from a uname
// release string such as "6.18.5-fc-v20".
func parseKernelVersion(release string) (major, minor int, ok bool) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minorStr := parts[1]
	for i, r := range minorStr {
		if r < '0' || r > '9' {
			minorStr = minorStr[:i]
			break
		}
	}
	minor, err = strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
