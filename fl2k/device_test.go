package fl2k

import "testing"

// TestOpenNonexistentIndex requires a real, enumerable USB context and is
// skipped in environments without libusb device access, matching the
// hardware-gated tests elsewhere in this style of driver package.
func TestOpenNonexistentIndex(t *testing.T) {
	if _, err := Enumerate(); err != nil {
		t.Skip("requires a live libusb context")
	}

	dev, err := Open(5, nil)
	if err == nil {
		t.Fatal("expected an error opening a nonexistent device index")
	}
	if dev != nil {
		t.Fatal("expected a nil Device on failure")
	}
}

func TestFindKnownDeviceMatchesTable(t *testing.T) {
	d := findKnownDevice(0x1d5c, 0x2000)
	if d == nil {
		t.Fatal("expected the built-in FL2000DX entry to match")
	}
	if d.name != "FL2000DX OEM" {
		t.Fatalf("got name %q, want %q", d.name, "FL2000DX OEM")
	}
}

func TestFindKnownDeviceRejectsUnknownVidPid(t *testing.T) {
	if d := findKnownDevice(0xffff, 0xffff); d != nil {
		t.Fatalf("expected no match for an unknown VID/PID, got %v", d)
	}
}
