package fl2k

// Per-channel output-byte offsets within each 24-byte group, in the input
// order the channel's 8 samples are consumed. Together the three tables
// partition {0,...,23} with no overlap.
var (
	offsetsR = [8]int{6, 1, 12, 15, 10, 21, 16, 19}
	offsetsG = [8]int{5, 0, 3, 14, 9, 20, 23, 18}
	offsetsB = [8]int{4, 7, 2, 13, 8, 11, 22, 17}
)

func biasOf(signed bool) byte {
	if signed {
		return 128
	}
	return 0
}

// permuteChannel scatters len(in) input samples into out at 24-byte-group
// granularity using the given offset table, 8 samples per group.
func permuteChannel(out, in []byte, offsets [8]int, bias byte) {
	j := 0
	for i := 0; i+24 <= len(out) && j+8 <= len(in); i += 24 {
		for k, off := range offsets {
			out[i+off] = in[j+k] + bias
		}
		j += 8
	}
}

// permuteMultiChan writes the FL2000 multi-channel wire format: out must be
// 3*len(r) bytes; r, g and b must be equal length and a multiple of 8.
func permuteMultiChan(out, r, g, b []byte, signed bool) {
	bias := biasOf(signed)
	permuteChannel(out, r, offsetsR, bias)
	permuteChannel(out, g, offsetsG, bias)
	permuteChannel(out, b, offsetsB, bias)
}

// permuteSingleChan writes into out (same length as in, and not aliasing it)
// the single-channel wire format: every 8-byte group has its two 32-bit words
// swapped, then bias is added. Applying this twice with bias 0 is the
// identity.
func permuteSingleChan(out, in []byte, signed bool) {
	bias := biasOf(signed)
	for i := 0; i+8 <= len(in); i += 8 {
		out[i+0] = in[i+4] + bias
		out[i+1] = in[i+5] + bias
		out[i+2] = in[i+6] + bias
		out[i+3] = in[i+7] + bias
		out[i+4] = in[i+0] + bias
		out[i+5] = in[i+1] + bias
		out[i+6] = in[i+2] + bias
		out[i+7] = in[i+3] + bias
	}
}
