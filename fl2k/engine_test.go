package fl2k

import (
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newBareDevice(n int) *Device {
	d := &Device{log: log.Default()}
	d.cond = sync.NewCond(&d.mu)
	d.pool = newBareSlots(n)
	return d
}

func TestAcquireEmptySlotImmediatelyAvailable(t *testing.T) {
	d := newBareDevice(4)
	d.status.Store(int32(statusRunning))

	s := d.acquireEmptySlot()
	if s == nil {
		t.Fatal("expected an immediately available empty slot")
	}
}

func TestAcquireEmptySlotWaitsForSignal(t *testing.T) {
	d := newBareDevice(2)
	d.status.Store(int32(statusRunning))
	for _, s := range d.pool.slots {
		s.setState(slotSubmitted)
	}

	done := make(chan *slot, 1)
	go func() {
		done <- d.acquireEmptySlot()
	}()

	// Give the goroutine time to reach Cond.Wait before freeing a slot.
	time.Sleep(20 * time.Millisecond)

	d.mu.Lock()
	d.pool.slots[0].setState(slotEmpty)
	d.cond.Signal()
	d.mu.Unlock()

	select {
	case s := <-done:
		if s == nil {
			t.Fatal("expected the freed slot to be returned")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("acquireEmptySlot did not return after signal")
	}
}

func TestAcquireEmptySlotStopsWaitingWhenNotRunning(t *testing.T) {
	d := newBareDevice(2)
	d.status.Store(int32(statusCanceling))
	for _, s := range d.pool.slots {
		s.setState(slotSubmitted)
	}

	if s := d.acquireEmptySlot(); s != nil {
		t.Fatal("expected nil when the engine is not RUNNING and no slot is empty")
	}
}

// fakeProducer counts invocations and can simulate an underflow-inducing
// slow producer.
type fakeProducer struct {
	calls     atomic.Int32
	delay     time.Duration
	stopAfter int32
	dev       *Device
}

func (p *fakeProducer) Fill(req *SampleRequest) error {
	n := p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	req.RBuf = make([]byte, req.Len)
	req.GBuf = make([]byte, req.Len)
	req.BBuf = make([]byte, req.Len)
	if p.stopAfter > 0 && n >= p.stopAfter && p.dev != nil {
		p.dev.status.Store(int32(statusCanceling))
	}
	return nil
}

func TestRunProducerFillsSlotsInAscendingSequence(t *testing.T) {
	d := newBareDevice(4)
	d.mode = ModeMultiChan
	d.status.Store(int32(statusRunning))
	d.producerDone = make(chan struct{})

	p := &fakeProducer{stopAfter: 3, dev: d}
	d.runProducer(p)

	var filled []*slot
	for _, s := range d.pool.slots {
		if s.getState() == slotFilled {
			filled = append(filled, s)
		}
	}
	for i := 1; i < len(filled); i++ {
		if filled[i-1].seq >= filled[i].seq {
			t.Fatalf("sequence numbers not strictly increasing across filled slots")
		}
	}
	if p.calls.Load() < 3 {
		t.Fatalf("expected at least 3 producer calls, got %d", p.calls.Load())
	}
}
