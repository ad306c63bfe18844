package fl2k

// Device registers this package addresses by name.
const (
	regI2CCmd    = 0x8020
	regI2CData   = 0x8024
	regI2CWrData = 0x8028
	regPLL       = 0x802c
	regMode      = 0x8004
	regPaletteRW = 0x805c
	regPaletteRP = 0x8060
)

// USB bulk endpoint the device streams samples on.
const bulkOutEndpoint = 0x01

// dongle identifies a known FL2000-based (vendor, product) pair.
type dongle struct {
	vendor  uint16
	product uint16
	name    string
}

// knownDevices is the single built-in VID/PID table this driver recognizes.
var knownDevices = []dongle{
	{vendor: 0x1d5c, product: 0x2000, name: "FL2000DX OEM"},
}

// Mode selects whether the device plays three independent DAC channels or a
// single channel mapped through the palette.
type Mode int

const (
	// ModeMultiChan drives R, G and B as three independent sample streams.
	ModeMultiChan Mode = iota
	// ModeSingleChan drives a single stream through the 256-entry palette.
	ModeSingleChan
)

func (m Mode) String() string {
	if m == ModeSingleChan {
		return "singlechan"
	}
	return "multichan"
}

// Channel is a bitmask of enabled DAC channels for SetEnabledChannels.
type Channel uint8

const (
	ChanR Channel = 1 << 0
	ChanG Channel = 1 << 1
	ChanB Channel = 1 << 2
)

// PaletteSize is the number of 24-bit entries in the device's palette RAM.
const PaletteSize = 256

// BufLen is the fixed per-callback sample-buffer length: 256 kilo-samples,
// tuned so each transfer spans a coherent DAC frame.
const BufLen = 256 * 1024

// xferBufLen is the fixed on-wire transfer length shared by every slot in
// both modes: three input channels of BufLen samples pack into 3*BufLen
// output bytes in multi-channel mode, and single-channel mode gathers the
// same 3*BufLen total across its three per-transfer callback invocations.
// The only real requirement is that it be consistent across slots and
// large enough to amortize USB completion overhead; the original driver's
// literal byte count (256 kilo-samples times 5) doesn't factor cleanly
// against a 3x multi-channel expansion, so it isn't carried over verbatim.
const xferBufLen = 3 * BufLen

// defaultBufNum is the default number of in-flight submissions when the
// caller passes 0 to StartTx.
const defaultBufNum = 4

// pllRefClock is the fixed reference clock feeding the PLL, in Hz.
const pllRefClock = 160_000_000
