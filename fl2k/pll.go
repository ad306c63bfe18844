package fl2k

import (
	"math"
)

// pllMagicBits are unexplained hardware-fixed bits (0x60 at bit offset 8)
// that every PLL register value carries alongside the documented div/mult/
// frac/out_div fields. Preserved verbatim from the original driver; no
// vendor documentation exists for what they configure.
const pllMagicBits = 0x60 << 8

// decodePLLReg computes the sample clock, in Hz, that a given PLL register
// value produces. This is the left inverse solvePLL searches against.
func decodePLLReg(reg uint32) float64 {
	div := reg & 0x3f
	outDiv := (reg >> 8) & 0xf
	frac := (reg >> 16) & 0xf
	mult := (reg >> 20) & 0xf

	sampleClock := float64((pllRefClock * mult) / div)
	offsDiv := (float64(pllRefClock) / 5.0) * float64(mult)
	offset := (sampleClock / (offsDiv / 2)) * 1e6
	sampleClock += float64(uint32(offset) * frac)
	sampleClock /= float64(outDiv)

	return sampleClock
}

func buildPLLReg(mult, frac, outDiv, div uint32) uint32 {
	return (mult << 20) | (frac << 16) | pllMagicBits | (outDiv << 8) | div
}

// solvePLL performs an exhaustive search over mult from 6 down to 3 (higher
// multipliers give better spectral purity), div from 63 down to 2, and frac
// from 1 to 15, with out_div fixed at 1. It returns the register value
// whose decoded rate is closest to targetHz, and that decoded rate.
func solvePLL(targetHz float64) (reg uint32, decodedHz float64) {
	const outDiv = 1

	bestErr := math.Inf(1)
	var bestReg uint32

	for mult := uint32(6); mult >= 3; mult-- {
		for div := uint32(63); div >= 2; div-- {
			for frac := uint32(1); frac <= 15; frac++ {
				candidate := buildPLLReg(mult, frac, outDiv, div)
				decoded := decodePLLReg(candidate)
				err := math.Abs(decoded - targetHz)
				if err < bestErr {
					bestErr = err
					bestReg = candidate
				}
			}
		}
	}

	return bestReg, decodePLLReg(bestReg)
}

// SetSampleRate searches for the register value producing the closest
// achievable rate to targetHz, programs it, and stores the decoded rate as
// the device's effective rate. If the achieved rate differs from the
// request by more than 1Hz, a warning is logged and the decoded rate is
// stored verbatim.
func (d *Device) SetSampleRate(targetHz float64) error {
	if targetHz <= 0 {
		return newErr("set_sample_rate", InvalidParam, nil)
	}

	reg, decoded := solvePLL(targetHz)
	if err := writeReg(d.handle, regPLL, reg); err != nil {
		return newErr("set_sample_rate", Other, err)
	}

	d.rateBits.Store(math.Float64bits(decoded))

	if delta := decoded - targetHz; math.Abs(delta) > 1 {
		d.log.Printf("requested sample rate %.0f Hz not exactly achievable, using %.3f Hz (error %.3f Hz)",
			targetHz, decoded, delta)
	}

	return nil
}

// GetSampleRate returns the effective sample rate last programmed by
// SetSampleRate, in Hz.
func (d *Device) GetSampleRate() float64 {
	return math.Float64frombits(d.rateBits.Load())
}
