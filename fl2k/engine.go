package fl2k

import (
	"time"

	"golang.org/x/sync/errgroup"

	"fl2ktx/fl2k/usbio"
)

// closeDrainTimeout bounds how long Close will wait for a self-triggered
// StopTx to finish draining before giving up and releasing the interface
// out from under a wedged stream anyway.
const closeDrainTimeout = 3 * time.Second

// eventPumpTimeoutSeconds is the per-iteration timeout the pump thread
// passes to the USB library's event-handling primitive.
const eventPumpTimeoutSeconds = 1

// StartTx begins streaming: it allocates the transfer pool, submits the
// initial N transfers, and launches the producer and USB-event-pump
// goroutines. It returns Busy unless the device is currently INACTIVE.
func (d *Device) StartTx(producer SampleProducer, nBuffers int) error {
	if producer == nil {
		return newErr("start_tx", InvalidParam, nil)
	}
	if nBuffers <= 0 {
		nBuffers = defaultBufNum
	}

	if !d.status.CompareAndSwap(int32(statusInactive), int32(statusRunning)) {
		return newErr("start_tx", Busy, nil)
	}

	pool, err := newTransferPool(d, nBuffers)
	if err != nil {
		d.status.Store(int32(statusInactive))
		return err
	}
	if err := pool.submitInitial(); err != nil {
		pool.free()
		d.status.Store(int32(statusInactive))
		return err
	}

	d.mu.Lock()
	d.pool = pool
	d.nextSeq = 0
	d.underflowCnt.Store(0)
	d.cancelFlag = 0
	d.mu.Unlock()

	d.producerDone = make(chan struct{})
	d.grp = &errgroup.Group{}
	d.grp.Go(func() error {
		d.runProducer(producer)
		return nil
	})
	d.grp.Go(func() error {
		d.runPump()
		return nil
	})

	return nil
}

// StopTx requests the stream to stop. From RUNNING it sets CANCELING and
// returns immediately; the pump goroutine performs the actual drain and
// transitions to INACTIVE. From CANCELING it forces INACTIVE, unsticking a
// wedged drain. From INACTIVE it returns Busy.
func (d *Device) StopTx() error {
	if d.status.CompareAndSwap(int32(statusRunning), int32(statusCanceling)) {
		d.mu.Lock()
		d.cancelFlag = 1
		d.mu.Unlock()
		return nil
	}
	if d.status.CompareAndSwap(int32(statusCanceling), int32(statusInactive)) {
		return nil
	}
	return newErr("stop_tx", Busy, nil)
}

// waitInactive blocks until the device reaches statusInactive or timeout
// elapses. It never itself requests a transition.
func (d *Device) waitInactive(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for asyncStatus(d.status.Load()) != statusInactive {
		if time.Now().After(deadline) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if d.grp != nil {
		_ = d.grp.Wait()
	}
}

// runProducer is the sample-producer thread.
func (d *Device) runProducer(producer SampleProducer) {
	defer close(d.producerDone)

	perChanLen := BufLen
	callsPerIteration := 1
	if d.mode == ModeSingleChan {
		callsPerIteration = 3
	}

	for asyncStatus(d.status.Load()) == statusRunning {
		var rBuf, gBuf, bBuf []byte
		var signed bool
		lastUnderflow := d.underflowCnt.Load()

		if d.mode == ModeSingleChan {
			bufs := make([][]byte, callsPerIteration)
			for i := 0; i < callsPerIteration; i++ {
				req := &SampleRequest{Len: perChanLen, UnderflowCount: d.underflowCnt.Load()}
				if err := producer.Fill(req); err != nil {
					d.log.Printf("producer callback failed: %v", err)
					return
				}
				if req.DeviceError {
					return
				}
				bufs[i] = req.RBuf
				signed = req.SignedSamples
			}
			rBuf, gBuf, bBuf = bufs[0], bufs[1], bufs[2]
		} else {
			req := &SampleRequest{Len: perChanLen, UnderflowCount: d.underflowCnt.Load()}
			if err := producer.Fill(req); err != nil {
				d.log.Printf("producer callback failed: %v", err)
				return
			}
			if req.DeviceError {
				return
			}
			rBuf, gBuf, bBuf = req.RBuf, req.GBuf, req.BBuf
			signed = req.SignedSamples
		}

		if now := d.underflowCnt.Load(); now != lastUnderflow {
			d.log.Printf("underflow: dropped/repeated buffer, count now %d", now)
		}

		s := d.acquireEmptySlot()
		if s == nil {
			d.log.Printf("no empty transfer slot available, dropping producer callback")
			continue
		}

		if d.mode == ModeSingleChan {
			permuteSingleChan(s.buf[:xferBufLen/3], rBuf, signed)
			off := xferBufLen / 3
			permuteSingleChan(s.buf[off:2*off], gBuf, signed)
			permuteSingleChan(s.buf[2*off:3*off], bBuf, signed)
		} else {
			permuteMultiChan(s.buf, rBuf, gBuf, bBuf, signed)
		}

		d.mu.Lock()
		s.seq = d.nextSeq
		d.nextSeq++
		s.setState(slotFilled)
		d.cond.Signal()
		d.mu.Unlock()
	}

	if d.lost.Load() {
		req := &SampleRequest{Len: perChanLen, DeviceError: true}
		_ = producer.Fill(req)
	}
}

// acquireEmptySlot scans for an EMPTY slot, waiting once on the condition
// variable if none is immediately available, then rescans once: a caller
// with nothing free after that wait drops the callback's data rather than
// blocking indefinitely.
func (d *Device) acquireEmptySlot() *slot {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s := d.pool.acquireEmpty(); s != nil {
		return s
	}
	if asyncStatus(d.status.Load()) != statusRunning {
		return nil
	}
	d.cond.Wait()
	return d.pool.acquireEmpty()
}

// runPump is the USB-event-pump thread.
func (d *Device) runPump() {
	for asyncStatus(d.status.Load()) == statusRunning {
		d.mu.Lock()
		cancel := d.cancelFlag
		d.mu.Unlock()
		if cancel != 0 {
			break
		}
		if err := d.usbCtx.HandleEventsTimeout(eventPumpTimeoutSeconds, &d.cancelFlag); err != nil {
			d.log.Printf("usb event handling failed: %v", err)
			d.markLostAndStop()
			break
		}
	}

	d.drainOnCancel()

	d.mu.Lock()
	d.cond.Signal()
	d.mu.Unlock()

	<-d.producerDone

	d.pool.free()
	d.status.Store(int32(statusInactive))
}

// drainOnCancel cancels every non-cancelled transfer and pumps zero-timeout
// events until each has reported its cancellation, the device is known
// lost, or closeDrainTimeout elapses.
func (d *Device) drainOnCancel() {
	for _, s := range d.pool.slots {
		if s.getState() == slotSubmitted {
			_ = s.xfer.Cancel()
		}
	}

	deadline := time.Now().Add(closeDrainTimeout)
	for {
		if d.lost.Load() {
			return
		}
		allDone := true
		for _, s := range d.pool.slots {
			if s.getState() == slotSubmitted {
				allDone = false
				break
			}
		}
		if allDone {
			return
		}
		if time.Now().After(deadline) {
			d.log.Printf("drain timed out waiting for transfer cancellation")
			return
		}
		zero := int32(0)
		_ = d.usbCtx.HandleEventsTimeout(0, &zero)
	}
}

// markLostAndStop marks the device lost and forces the streaming status to
// CANCELING so the pump's drain loop runs and the producer unblocks.
func (d *Device) markLostAndStop() {
	d.lost.Store(true)
	d.status.CompareAndSwap(int32(statusRunning), int32(statusCanceling))
}

// onTransferComplete is the completion callback. It runs on the pump
// goroutine: libusb delivers callbacks synchronously from within
// HandleEventsTimeout.
func (d *Device) onTransferComplete(t *usbio.Transfer) {
	status := t.Status()

	d.mu.Lock()
	defer d.mu.Unlock()

	var completed *slot
	for _, s := range d.pool.slots {
		if s.xfer == t {
			completed = s
			break
		}
	}
	if completed == nil {
		return
	}

	switch status {
	case usbio.TransferCancelled:
		completed.setState(slotEmpty)
		return
	case usbio.TransferNoDevice:
		d.lost.Store(true)
		d.status.CompareAndSwap(int32(statusRunning), int32(statusCanceling))
		completed.setState(slotEmpty)
		return
	case usbio.TransferCompleted:
		// fall through to resubmit logic below
	default:
		d.log.Printf("transfer failed with status %v", status)
		d.status.CompareAndSwap(int32(statusRunning), int32(statusCanceling))
		completed.setState(slotEmpty)
		return
	}

	if asyncStatus(d.status.Load()) != statusRunning {
		completed.setState(slotEmpty)
		return
	}

	next := d.pool.acquireLowestFilled()
	if next == nil {
		// Producer underrun: resubmit the same buffer unchanged rather
		// than let the endpoint go idle.
		d.underflowCnt.Add(1)
		if err := t.Submit(); err != nil {
			d.log.Printf("resubmit after underflow failed: %v", err)
		}
		return
	}

	next.setState(slotSubmitted)
	if err := next.xfer.Submit(); err != nil {
		d.log.Printf("submit failed: %v", err)
	}
	completed.setState(slotEmpty)
	d.cond.Signal()
}
