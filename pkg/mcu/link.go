package mcu

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/itohio/godaq/pkg/config"
)

const (
	// ResetCommand stops streaming and clears the MCU output buffer.
	ResetCommand byte = 'R'

	pollTimeout    = 20 * time.Millisecond   // read timeout, bounds Available
	settleDelay    = 10 * time.Millisecond   // wait for queued MCU output after a clear
	openDelay      = 100 * time.Millisecond  // post-open delay before the first write
	drainTimeout   = 1500 * time.Millisecond // max time to spend draining after reset
	maxLineSize    = 128
	availableChunk = 4096 // max bytes pulled in by one Available call
)

// Port is the subset of serial.Port the link uses.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port by path.
type Opener func(path string, baudRate int) (Port, error)

// Finder resolves a manufacturer tag to a port path.
type Finder func(tag string) (string, error)

// PortInfo describes an enumerated serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Matches reports whether the port identifies itself with tag.
func (p PortInfo) Matches(tag string) bool {
	if tag == "" {
		return false
	}
	if strings.EqualFold(p.VID, tag) || strings.EqualFold(p.SerialNumber, tag) {
		return true
	}
	return p.Product != "" && strings.Contains(strings.ToLower(p.Product), strings.ToLower(tag))
}

// Ports returns a list of available serial ports.
func Ports() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		result = append(result, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return result, nil
}

// Find returns the first port whose product, VID or serial number matches tag.
func Find(tag string) (string, error) {
	ports, err := Ports()
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if p.Matches(tag) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no serial port reports %q", ErrDeviceNotFound, tag)
}

func openSerial(path string, baudRate int) (Port, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Link manages the serial connection to the MCU.
type Link struct {
	tag       string
	port      string
	open      Opener
	find      Finder
	now       func() time.Time
	openDelay time.Duration
	log       zerolog.Logger

	mu       sync.Mutex
	conn     Port
	path     string
	baudRate int
	pending  []byte // bytes pulled in by Available, consumed by Read first
	session  *Session
}

// Option configures a Link.
type Option func(*Link)

// WithPort skips discovery and opens path directly.
func WithPort(path string) Option {
	return func(l *Link) { l.port = path }
}

// WithOpener replaces the serial port opener.
func WithOpener(open Opener) Option {
	return func(l *Link) { l.open = open }
}

// WithFinder replaces port discovery.
func WithFinder(find Finder) Option {
	return func(l *Link) { l.find = find }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Link) { l.log = logger.With().Str("component", "mcu").Logger() }
}

// WithClock sets the time source used for the handshake timestamp.
func WithClock(now func() time.Time) Option {
	return func(l *Link) { l.now = now }
}

// WithOpenDelay sets how long to wait after opening the port.
func WithOpenDelay(d time.Duration) Option {
	return func(l *Link) { l.openDelay = d }
}

// New creates a link to the MCU identifying itself with tag.
func New(tag string, opts ...Option) *Link {
	l := &Link{
		tag:       tag,
		open:      openSerial,
		find:      Find,
		now:       time.Now,
		openDelay: openDelay,
		log:       log.Logger.With().Str("component", "mcu").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open discovers the MCU port and opens it.
func (l *Link) Open(baudRate int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// In case a previously opened port was left behind.
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}

	path := l.port
	if path == "" {
		var err error
		path, err = l.find(l.tag)
		if err != nil {
			return err
		}
	}

	conn, err := l.open(path, baudRate)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	if err := conn.SetReadTimeout(pollTimeout); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	l.conn = conn
	l.path = path
	l.baudRate = baudRate
	l.pending = nil
	l.log.Info().Str("port", path).Int("baud", baudRate).Msg("opened")

	time.Sleep(l.openDelay)
	return nil
}

// IsConnected returns whether the port is open.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Session returns the negotiated session, nil before a successful handshake.
func (l *Link) Session() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Write sends raw bytes to the MCU.
func (l *Link) Write(p []byte) error {
	l.mu.Lock()
	conn, path := l.conn, l.path
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if _, err := conn.Write(p); err != nil {
		return fmt.Errorf("failed to write to %s: %w", path, err)
	}
	return nil
}

// Read blocks until exactly n bytes were read or ctx is done.
func (l *Link) Read(ctx context.Context, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		l.mu.Lock()
		conn, path := l.conn, l.path
		if len(l.pending) > 0 {
			k := min(n-len(out), len(l.pending))
			out = append(out, l.pending[:k]...)
			l.pending = l.pending[k:]
			l.mu.Unlock()
			continue
		}
		l.mu.Unlock()

		if conn == nil {
			return out, ErrNotConnected
		}
		buf := make([]byte, n-len(out))
		k, err := conn.Read(buf)
		if err != nil {
			return out, fmt.Errorf("failed to read from %s: %w", path, err)
		}
		out = append(out, buf[:k]...)
	}
	return out, nil
}

// ReadLine reads one newline-terminated line, without the terminator.
func (l *Link) ReadLine(ctx context.Context) (string, error) {
	var line []byte
	for len(line) < maxLineSize {
		b, err := l.Read(ctx, 1)
		if err != nil {
			return string(line), err
		}
		if b[0] == '\n' {
			break
		}
		line = append(line, b[0])
	}
	return strings.TrimRight(string(line), "\r"), nil
}

// Available returns the number of received bytes not yet consumed by Read.
// The serial driver exposes no input queue size, so this waits up to the
// port read timeout for new bytes and keeps them for the next Read.
func (l *Link) Available() (int, error) {
	l.mu.Lock()
	conn, path := l.conn, l.path
	l.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	buf := make([]byte, availableChunk)
	k, err := conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("failed to read from %s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, buf[:k]...)
	return len(l.pending), nil
}

// ResetInput discards everything received so far.
func (l *Link) ResetInput() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return ErrNotConnected
	}

	l.pending = nil
	if err := l.conn.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input buffer of %s: %w", l.path, err)
	}
	return nil
}

// Reset stops the MCU and empties the input buffer. The MCU may flush its
// own queue right after the host buffer is cleared, so the buffer is drained
// until the line goes quiet.
func (l *Link) Reset() error {
	if err := l.Write([]byte{ResetCommand}); err != nil {
		return err
	}
	if err := l.ResetInput(); err != nil {
		return err
	}
	time.Sleep(settleDelay)

	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) {
		n, err := l.Available()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := l.ResetInput(); err != nil {
			return err
		}
	}

	l.log.Warn().Dur("timeout", drainTimeout).Msg("device still sending after reset")
	return nil
}

// Disconnect resets the MCU and closes the port. It is a no-op when the port
// is already closed.
func (l *Link) Disconnect() error {
	if !l.IsConnected() {
		return nil
	}

	if err := l.Reset(); err != nil {
		l.log.Warn().Err(err).Msg("reset before close failed")
	}
	time.Sleep(settleDelay)

	l.mu.Lock()
	conn, path := l.conn, l.path
	l.conn = nil
	l.pending = nil
	l.session = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	l.log.Info().Str("port", path).Msg("disconnected")
	return nil
}

// NewFromConfig creates a link for the configured device. When mock is set
// the link talks to a synthetic device instead of a serial port.
func NewFromConfig(cfg *config.Config, mock bool, opts ...Option) *Link {
	if mock {
		m := NewMock(&cfg.Mock, cfg.NumSignals())
		opts = append([]Option{WithOpener(m.Open), WithFinder(m.Find), WithOpenDelay(0)}, opts...)
	} else if cfg.Device.Port != "" {
		opts = append([]Option{WithPort(cfg.Device.Port)}, opts...)
	}
	return New(cfg.Device.Manufacturer, opts...)
}
