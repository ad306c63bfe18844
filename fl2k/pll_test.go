package fl2k

import (
	"math"
	"testing"
)

func TestBuildDecodePLLRegYieldsValidRate(t *testing.T) {
	for mult := uint32(3); mult <= 6; mult++ {
		for _, div := range []uint32{2, 10, 33, 63} {
			for _, frac := range []uint32{1, 8, 15} {
				reg := buildPLLReg(mult, frac, 1, div)
				decoded := decodePLLReg(reg)
				if decoded <= 0 || math.IsNaN(decoded) || math.IsInf(decoded, 0) {
					t.Fatalf("mult=%d div=%d frac=%d decoded to invalid rate %v", mult, div, frac, decoded)
				}
			}
		}
	}
}

func TestSolvePLL100MHzWithinOneHz(t *testing.T) {
	_, decoded := solvePLL(100_000_000)
	if math.Abs(decoded-100_000_000) > 1 {
		t.Fatalf("decoded rate %.3f Hz not within 1 Hz of 100 MHz", decoded)
	}
}

func TestSolvePLL7MHzBestEffort(t *testing.T) {
	reg, decoded := solvePLL(7_000_000)
	if decoded <= 0 {
		t.Fatalf("solvePLL returned non-positive rate %v", decoded)
	}
	// Re-decoding the winning register must reproduce the same rate:
	// solvePLL and decodePLLReg must agree on what the register produces.
	if got := decodePLLReg(reg); got != decoded {
		t.Fatalf("decodePLLReg(reg)=%v does not match solvePLL's reported %v", got, decoded)
	}
}

func TestSolvePLLMonotonicSearchFindsCloserThanNaiveGuess(t *testing.T) {
	// A register built from mult=6, frac=1, div=2 is a plausible but
	// arbitrary guess; the search must do at least as well.
	naive := buildPLLReg(6, 1, 1, 2)
	naiveDecoded := decodePLLReg(naive)
	target := 50_000_000.0

	_, best := solvePLL(target)

	if math.Abs(best-target) > math.Abs(naiveDecoded-target) {
		t.Fatalf("search result %.3f is worse than naive guess %.3f for target %.3f", best, naiveDecoded, target)
	}
}
