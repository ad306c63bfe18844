// Command fl2k-test emits a fixed square wave at fs/2 out an FL2000 adapter
// and reports the measured clock accuracy in parts per million, grounding
// original_source/src/fl2k_test.c.
package main

import (
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fl2ktx/fl2k"
)

func main() {
	var (
		index       = flag.Int("d", 0, "device index")
		rateHz      = flag.Float64("s", 100_000_000, "sample rate in Hz")
		ppmDuration = flag.Duration("p", 10*time.Second, "PPM measurement window")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "fl2k-test: ", log.LstdFlags)

	dev, err := fl2k.Open(*index, logger)
	if err != nil {
		logger.Fatalf("open: %v", err)
	}
	defer dev.Close()

	if err := dev.SetMode(fl2k.ModeMultiChan); err != nil {
		logger.Fatalf("set mode: %v", err)
	}
	if err := dev.SetEnabledChannels(fl2k.ChanR | fl2k.ChanG | fl2k.ChanB); err != nil {
		logger.Fatalf("set enabled channels: %v", err)
	}
	if err := dev.SetSampleRate(*rateHz); err != nil {
		logger.Fatalf("set sample rate: %v", err)
	}

	producer := &squareWaveProducer{
		logger:      logger,
		sampleRate:  dev.GetSampleRate(),
		ppmDuration: *ppmDuration,
	}

	if err := dev.StartTx(producer, 0); err != nil {
		logger.Fatalf("start_tx: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Printf("signal caught, exiting")
	if err := dev.StopTx(); err != nil {
		logger.Printf("stop_tx: %v", err)
	}
}

// squareWaveProducer hands back a fixed rectangular waveform (alternating
// 0x00/0xff bytes, a square wave at fs/2) and periodically reports the
// measured real sample rate against the requested one, in PPM, using the
// wall-clock-vs-sample-count technique of fl2k_test.c's ppm_test.
type squareWaveProducer struct {
	logger      *log.Logger
	sampleRate  float64
	ppmDuration time.Duration

	buf []byte

	warmupCalls     int
	measuring       bool
	windowStart     time.Time
	samplesInWindow uint64
	samplesTotal    uint64
	intervalTotal   time.Duration
}

const ppmWarmupCallbacks = 20

func (p *squareWaveProducer) Fill(req *fl2k.SampleRequest) error {
	if p.buf == nil || len(p.buf) != req.Len {
		p.buf = make([]byte, req.Len)
		for i := 0; i+1 < len(p.buf); i += 2 {
			p.buf[i] = 0x00
			p.buf[i+1] = 0xff
		}
	}
	req.RBuf = p.buf
	req.GBuf = p.buf
	req.BBuf = p.buf

	if p.warmupCalls <= ppmWarmupCallbacks {
		p.warmupCalls++
		return nil
	}

	now := time.Now()
	if !p.measuring {
		p.measuring = true
		p.windowStart = now
		return nil
	}

	p.samplesInWindow += uint64(req.Len)
	elapsed := now.Sub(p.windowStart)
	if elapsed < p.ppmDuration {
		return nil
	}

	realRate := float64(p.samplesInWindow) / elapsed.Seconds()
	currentPPM := 1e6 * (realRate/p.sampleRate - 1)

	p.samplesTotal += p.samplesInWindow
	p.intervalTotal += elapsed
	cumulativeRate := float64(p.samplesTotal) / p.intervalTotal.Seconds()
	cumulativePPM := 1e6 * (cumulativeRate/p.sampleRate - 1)

	p.logger.Printf("real sample rate: %.0f current PPM: %d cumulative PPM: %d",
		realRate, int(math.Round(currentPPM)), int(math.Round(cumulativePPM)))

	p.samplesInWindow = 0
	p.windowStart = now
	return nil
}
