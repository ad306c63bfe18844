package fl2k

import (
	"sync/atomic"

	"fl2ktx/fl2k/usbio"
)

type slotState int32

const (
	slotEmpty slotState = iota
	slotFilled
	slotSubmitted
)

// slot is the transfer-slot triple: a bulk transfer
// descriptor, its fixed-length sample buffer, and metadata.
type slot struct {
	xfer     *usbio.Transfer
	buf      []byte
	zeroCopy bool

	seq   uint64
	state atomic.Int32
}

func (s *slot) getState() slotState  { return slotState(s.state.Load()) }
func (s *slot) setState(v slotState) { s.state.Store(int32(v)) }

// transferPool holds the N+2 slots backing a stream: N is the number of
// in-flight submissions requested by the caller, and the surplus two allow
// the producer to fill ahead while N are on the wire.
type transferPool struct {
	dev         *Device
	slots       []*slot
	n           int
	useZeroCopy bool
}

// newTransferPool allocates N+2 slots, attempting kernel zero-copy buffers
// first and falling back to userspace buffers.
func newTransferPool(dev *Device, n int) (*transferPool, error) {
	total := n + 2
	pool := &transferPool{dev: dev, n: n, slots: make([]*slot, total)}

	tryZeroCopy := zeroCopyCapableKernel()

	for i := 0; i < total; i++ {
		s := &slot{}
		pool.slots[i] = s

		if !tryZeroCopy {
			continue
		}

		buf := dev.handle.DevMemAlloc(xferBufLen)
		if buf == nil {
			dev.log.Printf("failed to allocate zero-copy buffer for transfer %d, falling back to userspace buffers", i)
			tryZeroCopy = false
			continue
		}
		if zeroCopyBufferIsBuggy(buf) {
			dev.log.Printf("detected kernel usbfs mmap() bug, falling back to buffers in userspace")
			dev.handle.DevMemFree(buf)
			tryZeroCopy = false
			continue
		}

		s.buf = buf
		s.zeroCopy = true
	}

	if !tryZeroCopy {
		// Release any zero-copy buffers already obtained before the
		// fallback decision, then allocate ordinary heap buffers for
		// every slot. Go's make zeroes the backing array, matching
		// the original driver's explicit memset for non-kernel
		// buffers.
		for _, s := range pool.slots {
			if s.zeroCopy {
				dev.handle.DevMemFree(s.buf)
				s.zeroCopy = false
			}
			s.buf = make([]byte, xferBufLen)
		}
	}

	pool.useZeroCopy = tryZeroCopy

	for _, s := range pool.slots {
		s.setState(slotEmpty)
		xfer, err := dev.handle.AllocBulkTransfer(bulkOutEndpoint, s.buf, dev.onTransferComplete)
		if err != nil {
			pool.free()
			return nil, newErr("start_tx", NoMem, err)
		}
		s.xfer = xfer
	}

	return pool, nil
}

// zeroCopyBufferIsBuggy implements the mmap-zero-page heuristic of Design
// Note 1: a correctly mapped kernel buffer is zero-filled; any non-zero or
// non-uniform byte means the mapping points at random memory instead.
func zeroCopyBufferIsBuggy(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	first := buf[0]
	if first != 0 {
		return true
	}
	for _, b := range buf[1:] {
		if b != first {
			return true
		}
	}
	return false
}

// submitInitial submits the first N transfers, marking them SUBMITTED.
func (p *transferPool) submitInitial() error {
	for i := 0; i < p.n; i++ {
		s := p.slots[i]
		if err := s.xfer.Submit(); err != nil {
			return newErr("start_tx", Other, err)
		}
		s.setState(slotSubmitted)
	}
	return nil
}

// acquireEmpty returns the first slot in state EMPTY, or nil.
func (p *transferPool) acquireEmpty() *slot {
	for _, s := range p.slots {
		if s.getState() == slotEmpty {
			return s
		}
	}
	return nil
}

// acquireLowestFilled returns the FILLED slot with the smallest sequence
// number, or nil, implementing the FIFO playback-order rule.
func (p *transferPool) acquireLowestFilled() *slot {
	var best *slot
	for _, s := range p.slots {
		if s.getState() != slotFilled {
			continue
		}
		if best == nil || s.seq < best.seq {
			best = s
		}
	}
	return best
}

// free releases every slot's transfer and buffer. Only safe once both
// worker goroutines have exited.
func (p *transferPool) free() {
	for _, s := range p.slots {
		if s.xfer != nil {
			s.xfer.Free()
			s.xfer = nil
		}
		if s.zeroCopy && len(s.buf) > 0 {
			p.dev.handle.DevMemFree(s.buf)
		}
		s.buf = nil
	}
}
