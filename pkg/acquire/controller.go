// Package acquire streams samples from the MCU into a display window and,
// while recording, into a recording sink.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/itohio/godaq/pkg/config"
	"github.com/itohio/godaq/pkg/frame"
	"github.com/itohio/godaq/pkg/mcu"
	"github.com/itohio/godaq/pkg/record"
	"github.com/itohio/godaq/pkg/window"
)

var (
	// ErrNoOutputTarget is returned when recording is requested without a usable sink.
	ErrNoOutputTarget = errors.New("no output target")
	// ErrBusy is returned when configuration changes while streaming.
	ErrBusy = errors.New("acquisition in progress")
)

// Link is the MCU connection used by the controller.
type Link interface {
	Connect(ctx context.Context, baudRate, freq int) (*mcu.Session, error)
	Read(ctx context.Context, n int) ([]byte, error)
	Available() (int, error)
	Disconnect() error
}

// Status describes the controller at one point in time.
type Status struct {
	State     State
	Recording bool
	Session   *mcu.Session // nil unless streaming
	Records   int64        // data records written by the current or last recording
	Dropped   int64        // samples of partial records discarded when recording stopped
	Fault     error        // error that ended the last session, nil after a normal stop
}

// Controller coordinates the link, the reader goroutine and the consumers.
// Start, Stop, StartRecording, StopRecording and Configure may be called from
// any goroutine and are serialized.
type Controller struct {
	link Link
	log  zerolog.Logger

	mu      sync.Mutex
	cfg     config.Config
	horizon int
	cur     *run
	sink    record.Sink

	state     atomic.Int32
	recording atomic.Bool
	win       atomic.Pointer[window.Window]
	session   atomic.Pointer[mcu.Session]
	acc       atomic.Pointer[record.Accumulator]
	dropped   atomic.Int64

	faultMu sync.Mutex
	fault   error
}

// run is one streaming session.
type run struct {
	window *window.Window
	acc    *record.Accumulator
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.log = logger.With().Str("component", "acquire").Logger() }
}

// New creates a controller for cfg reading from link.
func New(cfg *config.Config, link Link, opts ...Option) *Controller {
	c := &Controller{
		link:    link,
		log:     log.Logger.With().Str("component", "acquire").Logger(),
		cfg:     cloneConfig(cfg),
		horizon: cfg.Display.WindowSeconds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cloneConfig(cfg *config.Config) config.Config {
	c := *cfg
	c.Signals = append([]config.SignalConfig(nil), cfg.Signals...)
	return c
}

// Config returns a copy of the configuration in use.
func (c *Controller) Config() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneConfig(&c.cfg)
}

// Configure replaces the configuration. It is refused while streaming.
func (c *Controller) Configure(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur != nil {
		return ErrBusy
	}
	c.cfg = cloneConfig(cfg)
	if cfg.Display.WindowSeconds > 0 {
		c.horizon = cfg.Display.WindowSeconds
	}
	return nil
}

// State returns the streaming state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// IsRecording returns whether samples are being recorded.
func (c *Controller) IsRecording() bool {
	return c.recording.Load()
}

// Err returns the error that ended the last session, if any.
func (c *Controller) Err() error {
	c.faultMu.Lock()
	defer c.faultMu.Unlock()
	return c.fault
}

func (c *Controller) setFault(err error) {
	c.faultMu.Lock()
	defer c.faultMu.Unlock()
	c.fault = err
}

// Status returns the current status.
func (c *Controller) Status() Status {
	s := Status{
		State:     c.State(),
		Recording: c.recording.Load(),
		Session:   c.session.Load(),
		Dropped:   c.dropped.Load(),
		Fault:     c.Err(),
	}
	if acc := c.acc.Load(); acc != nil {
		s.Records = acc.Records()
	}
	return s
}

// Snapshot copies the display window. It returns false when not streaming.
func (c *Controller) Snapshot() (window.Snapshot, bool) {
	w := c.win.Load()
	if w == nil {
		return window.Snapshot{}, false
	}
	return w.Snapshot(), true
}

// Start connects to the MCU and starts streaming into a window holding the
// last seconds of samples, or the configured horizon when seconds < 1.
// It is a no-op while streaming.
func (c *Controller) Start(ctx context.Context, seconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seconds > 0 {
		c.horizon = seconds
	}
	return c.startLocked(ctx, nil)
}

// Stop stops streaming and disconnects. It is a no-op when idle. Recording
// requires streaming, so an active recording ends as with StopRecording.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.stopLocked()
	if c.recording.Load() {
		err = errors.Join(err, c.endRecordingLocked())
	}
	return err
}

// StartRecording restarts streaming with samples also going to sink, one
// data record at a time. The controller owns sink from here on and closes it
// when recording stops.
func (c *Controller) StartRecording(ctx context.Context, sink record.Sink) error {
	if sink == nil || sink.Closed() {
		return ErrNoOutputTarget
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n := c.cfg.NumSignals(); sink.Signals() != n {
		return fmt.Errorf("sink has %d signals, acquiring %d", sink.Signals(), n)
	}
	acc, err := record.NewAccumulator(sink)
	if err != nil {
		return err
	}

	if err := c.stopLocked(); err != nil {
		c.log.Warn().Err(err).Msg("stop before recording")
	}
	if c.recording.Load() {
		if err := c.endRecordingLocked(); err != nil {
			c.log.Warn().Err(err).Msg("close previous recording")
		}
	}

	c.sink = sink
	c.acc.Store(acc)
	c.dropped.Store(0)
	c.recording.Store(true)

	if err := c.startLocked(ctx, acc); err != nil {
		if cerr := c.endRecordingLocked(); cerr != nil {
			c.log.Warn().Err(cerr).Msg("close recording")
		}
		return err
	}
	c.log.Info().Int("record_size", acc.RecordSize()).Msg("recording started")
	return nil
}

// StopRecording stops streaming, discards the partial record and closes the
// sink. It is a no-op when not recording.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recording.Load() {
		return nil
	}
	stopErr := c.stopLocked()
	if err := c.endRecordingLocked(); err != nil {
		return err
	}
	return stopErr
}

func (c *Controller) startLocked(ctx context.Context, acc *record.Accumulator) error {
	if c.cur != nil {
		select {
		case <-c.cur.done:
			// Reader ended on its own and abort has not run yet
			if err := c.stopLocked(); err != nil {
				c.log.Warn().Err(err).Msg("stop after fault")
			}
			if c.recording.Load() && acc == nil {
				if err := c.endRecordingLocked(); err != nil {
					c.log.Warn().Err(err).Msg("close recording")
				}
			}
		default:
			return nil
		}
	}
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.setFault(nil)
	c.state.Store(int32(Connecting))

	r, sess, dec, err := c.connect(ctx, acc)
	if err != nil {
		c.state.Store(int32(Idle))
		return fmt.Errorf("failed to start acquisition: %w", err)
	}

	rctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	c.cur = r
	c.win.Store(r.window)
	c.session.Store(sess)
	c.state.Store(int32(Streaming))

	c.log.Info().
		Str("port", sess.Path).
		Int("freq", sess.SamplingFreq).
		Int("buffer_size", sess.BufferSize).
		Int("horizon", c.horizon).
		Msg("streaming")

	go c.read(rctx, r, dec)
	return nil
}

// connect performs the handshake and finds the first packet boundary.
func (c *Controller) connect(ctx context.Context, acc *record.Accumulator) (*run, *mcu.Session, *frame.Decoder, error) {
	n := c.cfg.NumSignals()
	freq := c.cfg.Acquisition.SamplingFreq

	win, err := window.New(c.horizon, freq, n)
	if err != nil {
		return nil, nil, nil, err
	}

	sess, err := c.link.Connect(ctx, c.cfg.Device.BaudRate, freq)
	if err != nil {
		return nil, nil, nil, err
	}

	dec, err := frame.NewDecoder(c.link, sess.BufferSize, n)
	if err == nil {
		err = dec.Sync(ctx)
	}
	if err != nil {
		if derr := c.link.Disconnect(); derr != nil {
			c.log.Warn().Err(derr).Msg("disconnect")
		}
		return nil, nil, nil, err
	}

	return &run{
		window: win,
		acc:    acc,
		done:   make(chan struct{}),
	}, sess, dec, nil
}

func (c *Controller) stopLocked() error {
	r := c.cur
	if r == nil {
		return nil
	}

	c.state.Store(int32(Stopping))
	r.cancel()
	<-r.done

	c.cur = nil
	c.win.Store(nil)
	c.session.Store(nil)
	if r.acc != nil {
		if n := r.acc.Discard(); n > 0 {
			c.dropped.Add(int64(n))
			c.log.Info().Int("samples", n).Msg("discarded partial data record")
		}
	}

	err := c.link.Disconnect()
	c.state.Store(int32(Idle))
	c.log.Info().Msg("stopped")
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

func (c *Controller) endRecordingLocked() error {
	sink := c.sink
	c.sink = nil
	c.recording.Store(false)
	if sink == nil {
		return nil
	}

	err := sink.Close()
	if acc := c.acc.Load(); acc != nil {
		c.log.Info().Int64("records", acc.Records()).Msg("recording stopped")
	}
	if err != nil {
		return fmt.Errorf("failed to close recording: %w", err)
	}
	return nil
}

// abort tears down r after its reader failed with err, which the reader has
// already stored as the fault.
func (c *Controller) abort(r *run, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Error().Err(err).Msg("acquisition stopped")
	if c.cur != r {
		// Already torn down by Stop, the fault is kept
		return
	}
	// The reader is gone, so the sink can be closed before the state returns to idle
	if c.recording.Load() {
		if cerr := c.endRecordingLocked(); cerr != nil {
			c.log.Warn().Err(cerr).Msg("close recording")
		}
	}
	if serr := c.stopLocked(); serr != nil {
		c.log.Warn().Err(serr).Msg("stop after fault")
	}
}
