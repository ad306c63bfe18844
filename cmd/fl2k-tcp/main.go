// Command fl2k-tcp accepts a single TCP client streaming raw sample bytes
// and plays them out an FL2000 adapter, grounding
// original_source/src/fl2k_tcp.c.
package main

import (
	"flag"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"fl2ktx/fl2k"
)

func main() {
	var (
		index   = flag.Int("d", 0, "device index")
		addr    = flag.String("a", "127.0.0.1:1234", "listen address")
		rateHz  = flag.Float64("s", 100_000_000, "sample rate in Hz")
		buffers = flag.Int("b", 0, "number of in-flight USB buffers (0 = default)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "fl2k-tcp: ", log.LstdFlags)

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

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatalf("listen %s: %v", *addr, err)
	}
	defer ln.Close()
	logger.Printf("listening on %s", *addr)

	conn, err := ln.Accept()
	if err != nil {
		logger.Fatalf("accept: %v", err)
	}
	defer conn.Close()
	logger.Printf("accepted connection from %s", conn.RemoteAddr())

	producer := &tcpProducer{r: conn, log: logger, closed: make(chan struct{})}

	if err := dev.StartTx(producer, *buffers); err != nil {
		logger.Fatalf("start_tx: %v", err)
	}

	// Block until the client disconnects or the stream errors out.
	<-producer.closed

	if err := dev.StopTx(); err != nil {
		logger.Printf("stop_tx: %v", err)
	}
}

// tcpProducer feeds sample bytes read from a single accepted TCP connection.
// On read error or client disconnect it signals DeviceError so the engine's
// producer goroutine unblocks cleanly, and closes the done channel exactly
// once (flow control back to the network peer is out of scope:
// a slow client simply produces underflows rather than being throttled).
type tcpProducer struct {
	r   io.Reader
	log *log.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func (p *tcpProducer) Fill(req *fl2k.SampleRequest) error {
	buf := make([]byte, req.Len)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		p.log.Printf("connection ended: %v", err)
		req.DeviceError = true
		p.closeOnce.Do(func() { close(p.closed) })
		return nil
	}

	req.RBuf = buf
	req.GBuf = buf
	req.BBuf = buf
	return nil
}
