// Command fl2k-file replays a raw sample file (or stdin) out an FL2000
// adapter, showing a live status dashboard while the stream runs.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fl2ktx/fl2k"
)

func main() {
	var (
		index      = flag.Int("d", 0, "device index")
		path       = flag.String("f", "-", "sample file path, or - for stdin")
		rateHz     = flag.Float64("s", 100_000_000, "sample rate in Hz")
		singleChan = flag.Bool("1", false, "single-channel (palette) mode instead of multi-channel RGB")
		signed     = flag.Bool("signed", false, "input samples are signed two's-complement")
		buffers    = flag.Int("b", 0, "number of in-flight USB buffers (0 = default)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "fl2k-file: ", log.LstdFlags)

	dev, err := fl2k.Open(*index, logger)
	if err != nil {
		logger.Fatalf("open: %v", err)
	}
	defer dev.Close()

	mode := fl2k.ModeMultiChan
	if *singleChan {
		mode = fl2k.ModeSingleChan
	}
	if err := dev.SetMode(mode); err != nil {
		logger.Fatalf("set mode: %v", err)
	}
	if mode == fl2k.ModeMultiChan {
		if err := dev.SetEnabledChannels(fl2k.ChanR | fl2k.ChanG | fl2k.ChanB); err != nil {
			logger.Fatalf("set enabled channels: %v", err)
		}
	}
	if err := dev.SetSampleRate(*rateHz); err != nil {
		logger.Fatalf("set sample rate: %v", err)
	}

	f := os.Stdin
	if *path != "-" {
		f, err = os.Open(*path)
		if err != nil {
			logger.Fatalf("open %s: %v", *path, err)
		}
		defer f.Close()
	}

	producer := &fileProducer{r: f, signed: *signed}

	if err := dev.StartTx(producer, *buffers); err != nil {
		logger.Fatalf("start_tx: %v", err)
	}

	prog := tea.NewProgram(newDashboard(dev, producer))
	if _, err := prog.Run(); err != nil {
		logger.Printf("dashboard exited: %v", err)
	}

	if err := dev.StopTx(); err != nil {
		logger.Printf("stop_tx: %v", err)
	}
}

// fileProducer feeds sample bytes read straight off r into every callback,
// looping the file when it reaches EOF, grounding
// original_source/src/fl2k_file.c's replay behavior.
type fileProducer struct {
	r      io.ReadSeeker
	signed bool

	underflowSeen uint32
	callCount     uint64
	eofHit        bool
}

func (p *fileProducer) Fill(req *fl2k.SampleRequest) error {
	p.callCount++
	p.underflowSeen = req.UnderflowCount
	req.SignedSamples = p.signed

	buf := make([]byte, req.Len)
	n, err := io.ReadFull(p.r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		p.eofHit = true
		if _, seekErr := p.r.Seek(0, io.SeekStart); seekErr == nil {
			rest, _ := io.ReadFull(p.r, buf[n:])
			n += rest
		}
	} else if err != nil {
		req.DeviceError = true
		return nil
	}

	req.RBuf = buf
	req.GBuf = buf
	req.BBuf = buf
	return nil
}

type dashboard struct {
	dev      *fl2k.Device
	producer *fileProducer
}

func newDashboard(dev *fl2k.Device, p *fileProducer) dashboard {
	return dashboard{dev: dev, producer: p}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m dashboard) Init() tea.Cmd { return tickCmd() }

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tickCmd()
	}
	return m, nil
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func (m dashboard) View() string {
	rate := m.dev.GetSampleRate()
	underflow := m.producer.underflowSeen
	calls := m.producer.callCount

	underflowLine := fmt.Sprintf("underflows: %d", underflow)
	if underflow > 0 {
		underflowLine = warnStyle.Render(underflowLine)
	}

	return fmt.Sprintf(
		"%s\n\n%s: %.3f MHz\n%s: %d\n%s\n\npress q to stop\n",
		labelStyle.Render("fl2k-file"),
		labelStyle.Render("sample rate"), rate/1e6,
		labelStyle.Render("callbacks"), calls,
		underflowLine,
	)
}
