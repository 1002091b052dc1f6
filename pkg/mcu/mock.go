package mcu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/itohio/godaq/pkg/config"
	"github.com/itohio/godaq/pkg/frame"
)

const (
	// MockPath is the port name the mock reports.
	MockPath = "mock"

	adcMax     = 4095 // 12-bit ADC
	packetTime = 0.2  // seconds of samples per packet, as the firmware sends
	maxBacklog = 1 << 16
)

// ErrMockClosed is returned by I/O on a closed mock port.
var ErrMockClosed = errors.New("mock port closed")

// Mock simulates the acquisition MCU on the byte level. It answers the
// configuration command and streams sine waves, one per channel, in packets.
type Mock struct {
	cfg      config.MockConfig
	channels int

	// Fault injection, set before opening.
	EchoSkew     int64 // added to the echoed timestamp
	Silent       bool  // never confirm a configuration
	CorruptAfter int   // send a packet without marker after this many packets

	mu          sync.Mutex
	notify      chan struct{}
	readTimeout time.Duration
	open        bool
	inbox       []byte
	out         []byte
	cancel      context.CancelFunc
	gen         int
	packets     int
	commands    []string
}

// Ensure Mock can stand in for a serial port.
var _ Port = (*Mock)(nil)

// NewMock creates a mock MCU sampling channels signals.
func NewMock(cfg *config.MockConfig, channels int) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	if channels < 1 {
		channels = 1
	}
	return &Mock{
		cfg:         *cfg,
		channels:    channels,
		notify:      make(chan struct{}, 1),
		readTimeout: -1,
	}
}

// Open implements Opener.
func (m *Mock) Open(path string, baudRate int) (Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return nil, fmt.Errorf("%s: already open", path)
	}
	m.open = true
	m.inbox = nil
	m.out = nil
	m.packets = 0
	return m, nil
}

// Find implements Finder.
func (m *Mock) Find(tag string) (string, error) {
	return MockPath, nil
}

// BufferSize returns the number of samples per packet at freq.
func (m *Mock) BufferSize(freq int) int {
	if m.cfg.BufferSize > 0 {
		return max(m.channels, m.cfg.BufferSize-m.cfg.BufferSize%m.channels)
	}
	// Whole rows sampled in 0.2s, at least one
	return max(1, int(float64(freq)*packetTime)) * m.channels
}

// IsStreaming returns whether packets are being generated.
func (m *Mock) IsStreaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Commands returns the commands received so far.
func (m *Mock) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Read implements io.Reader. It waits up to the read timeout for data and
// returns 0 bytes on timeout.
func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	timeout := m.readTimeout
	m.mu.Unlock()

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		m.mu.Lock()
		if !m.open {
			m.mu.Unlock()
			return 0, ErrMockClosed
		}
		if len(m.out) > 0 {
			n := copy(p, m.out)
			m.out = m.out[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-expired:
			return 0, nil
		}
	}
}

// Write implements io.Writer and interprets the commands.
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return 0, ErrMockClosed
	}
	m.inbox = append(m.inbox, p...)

	for len(m.inbox) > 0 {
		switch m.inbox[0] {
		case ResetCommand:
			m.inbox = m.inbox[1:]
			m.commands = append(m.commands, "R")
			m.stopLocked()
		case 'T':
			if len(m.inbox) < CommandSize {
				return len(p), nil
			}
			cmd := string(m.inbox[:CommandSize])
			m.inbox = m.inbox[CommandSize:]
			m.commands = append(m.commands, cmd)
			m.configureLocked(cmd)
		default:
			m.inbox = m.inbox[1:]
		}
	}
	return len(p), nil
}

// ResetInputBuffer discards pending output.
func (m *Mock) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = nil
	return nil
}

// SetReadTimeout sets how long Read waits, negative waits forever.
func (m *Mock) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readTimeout = t
	return nil
}

// Close stops streaming and closes the port.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.open = false
	m.out = nil
	m.signal()
	return nil
}

func (m *Mock) configureLocked(cmd string) {
	if cmd[11] != 'F' {
		return
	}
	ts, err := strconv.ParseInt(cmd[1:11], 10, 64)
	if err != nil {
		return
	}
	freq, err := strconv.Atoi(cmd[12:])
	if err != nil || freq < 1 {
		return
	}
	if m.Silent {
		return
	}

	m.stopLocked()
	size := m.BufferSize(freq)
	m.out = fmt.Appendf(m.out, "%d %3d %d\n", ts+m.EchoSkew, freq, size)
	m.signal()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.gen++
	go m.generate(ctx, m.gen, freq, size/m.channels)
}

func (m *Mock) stopLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	m.out = nil
}

func (m *Mock) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// generate emits a marker followed by rows samples per channel, every
// rows/freq seconds.
func (m *Mock) generate(ctx context.Context, gen, freq, rows int) {
	period := time.Duration(float64(rows) / float64(freq) * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var k int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		packet := m.packet(k, rows, freq)
		k += rows

		m.mu.Lock()
		if m.gen != gen || !m.open {
			m.mu.Unlock()
			return
		}
		m.packets++
		if m.CorruptAfter > 0 && m.packets > m.CorruptAfter {
			clear(packet[:frame.MarkerSize])
		}
		m.out = append(m.out, packet...)
		if len(m.out) > maxBacklog {
			// Serial input overflow loses the oldest bytes
			m.out = m.out[len(m.out)-maxBacklog:]
		}
		m.signal()
		m.mu.Unlock()
	}
}

func (m *Mock) packet(k, rows, freq int) []byte {
	buf := make([]byte, 0, frame.MarkerSize+rows*m.channels*frame.SampleSize)
	buf = append(buf, frame.Marker...)

	for r := 0; r < rows; r++ {
		t := float64(k+r) / float64(freq)
		for ch := 0; ch < m.channels; ch++ {
			phase := 2 * math.Pi * float64(ch) / float64(m.channels)
			v := adcMax/2 +
				m.cfg.Amplitude*math.Sin(2*math.Pi*m.cfg.SignalHz*t+phase) +
				(rand.Float64()*2-1)*m.cfg.NoiseLevel
			v = math.Max(0, math.Min(adcMax, v))
			buf = binary.LittleEndian.AppendUint16(buf, uint16(v))
		}
	}
	return buf
}
