package fl2k

import "testing"

func TestPermuteMultiChanExactOffsets(t *testing.T) {
	r := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	g := []byte{8, 9, 10, 11, 12, 13, 14, 15}
	b := []byte{16, 17, 18, 19, 20, 21, 22, 23}
	out := make([]byte, 24)

	permuteMultiChan(out, r, g, b, false)

	for k, off := range offsetsR {
		if got := out[off]; got != r[k] {
			t.Errorf("R offset %d: got %d, want %d", off, got, r[k])
		}
	}
	for k, off := range offsetsG {
		if got := out[off]; got != g[k] {
			t.Errorf("G offset %d: got %d, want %d", off, got, g[k])
		}
	}
	for k, off := range offsetsB {
		if got := out[off]; got != b[k] {
			t.Errorf("B offset %d: got %d, want %d", off, got, b[k])
		}
	}
}

func TestOffsetTablesPartitionGroup(t *testing.T) {
	seen := make(map[int]string)
	tables := map[string][8]int{"R": offsetsR, "G": offsetsG, "B": offsetsB}
	for name, tbl := range tables {
		for _, off := range tbl {
			if off < 0 || off > 23 {
				t.Fatalf("%s offset %d out of [0,23] range", name, off)
			}
			if owner, dup := seen[off]; dup {
				t.Fatalf("offset %d claimed by both %s and %s", off, owner, name)
			}
			seen[off] = name
		}
	}
	if len(seen) != 24 {
		t.Fatalf("offset tables cover %d positions, want 24", len(seen))
	}
}

func TestPermuteMultiChanSignedBias(t *testing.T) {
	r := make([]byte, 8)
	g := make([]byte, 8)
	b := make([]byte, 8)
	out := make([]byte, 24)

	permuteMultiChan(out, r, g, b, true)

	for _, v := range out {
		if v != 128 {
			t.Fatalf("signed bias not applied uniformly: got byte %d", v)
		}
	}
}

func TestPermuteMultiChanMultiGroup(t *testing.T) {
	n := 32 // 4 groups of 8 samples per channel
	r := make([]byte, n)
	g := make([]byte, n)
	b := make([]byte, n)
	for i := range r {
		r[i] = byte(i)
		g[i] = byte(i + 100)
		b[i] = byte(i + 200)
	}
	out := make([]byte, 3*n)

	permuteMultiChan(out, r, g, b, false)

	for group := 0; group < n/8; group++ {
		base := group * 24
		in := group * 8
		for k, off := range offsetsR {
			if got, want := out[base+off], r[in+k]; got != want {
				t.Errorf("group %d R offset %d: got %d want %d", group, off, got, want)
			}
		}
	}
}

func TestPermuteSingleChanWordSwap(t *testing.T) {
	in := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	out := make([]byte, 8)

	permuteSingleChan(out, in, false)

	want := []byte{4, 5, 6, 7, 0, 1, 2, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestPermuteSingleChanInvolution(t *testing.T) {
	in := make([]byte, 64)
	for i := range in {
		in[i] = byte(i * 7)
	}
	mid := make([]byte, len(in))
	back := make([]byte, len(in))

	permuteSingleChan(mid, in, false)
	permuteSingleChan(back, mid, false)

	for i := range in {
		if back[i] != in[i] {
			t.Fatalf("byte %d not restored: got %d, want %d", i, back[i], in[i])
		}
	}
}

func TestPermuteSingleChanSignedBias(t *testing.T) {
	in := make([]byte, 8)
	out := make([]byte, 8)

	permuteSingleChan(out, in, true)

	for _, v := range out {
		if v != 128 {
			t.Fatalf("signed bias not applied: got %d", v)
		}
	}
}
