package acquire

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/godaq/pkg/config"
	"github.com/itohio/godaq/pkg/frame"
	"github.com/itohio/godaq/pkg/mcu"
)

const waitFor = 5 * time.Second

type memSink struct {
	mu      sync.Mutex
	spr     int
	signals int
	records [][]int16
	closed  bool
	fail    error
}

func (s *memSink) WriteDataRecord(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, append([]int16(nil), samples...))
	return nil
}

func (s *memSink) Flush() error { return nil }

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *memSink) SamplesPerRecord() int { return s.spr }
func (s *memSink) Signals() int          { return s.signals }

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// testConfig samples 3 signals at 50Hz; the mock sends 10 rows every 0.2s
// and one data record holds 1s.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Acquisition.SamplingFreq = 50
	cfg.Recording.SavingPeriod = 1
	cfg.Display.WindowSeconds = 2
	return cfg
}

func newTestController(t *testing.T, cfg *config.Config, m *mcu.Mock) *Controller {
	t.Helper()
	link := mcu.New("mbed",
		mcu.WithOpener(m.Open),
		mcu.WithFinder(m.Find),
		mcu.WithOpenDelay(0),
		mcu.WithLogger(zerolog.Nop()),
	)
	c := New(cfg, link, WithLogger(zerolog.Nop()))
	t.Cleanup(func() { c.Stop() })
	return c
}

func configCommands(m *mcu.Mock) int {
	n := 0
	for _, cmd := range m.Commands() {
		if strings.HasPrefix(cmd, "T") {
			n++
		}
	}
	return n
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "streaming", Streaming.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestController_StartStop(t *testing.T) {
	m := mcu.NewMock(nil, 3)
	c := newTestController(t, testConfig(), m)

	assert.Equal(t, Idle, c.State())
	require.NoError(t, c.Stop(), "stop while idle is a no-op")
	_, ok := c.Snapshot()
	assert.False(t, ok)

	require.NoError(t, c.Start(context.Background(), 0))
	assert.Equal(t, Streaming, c.State())

	st := c.Status()
	require.NotNil(t, st.Session)
	assert.Equal(t, 30, st.Session.BufferSize)
	assert.Equal(t, 50, st.Session.SamplingFreq)
	assert.False(t, st.Recording)

	// Second start does not reconnect
	require.NoError(t, c.Start(context.Background(), 0))
	assert.Equal(t, 1, configCommands(m))

	require.Eventually(t, func() bool {
		snap, ok := c.Snapshot()
		return ok && snap.Len() >= 30
	}, waitFor, 20*time.Millisecond)

	snap, ok := c.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 3, snap.Channels)
	assert.Equal(t, 0.0, snap.Times[0])
	for i := 1; i < snap.Len(); i++ {
		assert.InDelta(t, 0.02, snap.Times[i]-snap.Times[i-1], 1e-9)
	}

	require.NoError(t, c.Stop())
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Status().Session)
	assert.NoError(t, c.Err())
	assert.False(t, m.IsStreaming())
	_, ok = c.Snapshot()
	assert.False(t, ok)

	require.NoError(t, c.Stop())
	assert.Equal(t, 1, configCommands(m))
}

func TestController_WindowHorizon(t *testing.T) {
	m := mcu.NewMock(nil, 3)
	c := newTestController(t, testConfig(), m)

	require.NoError(t, c.Start(context.Background(), 1))

	// 1s at 50Hz keeps 50 rows
	require.Eventually(t, func() bool {
		snap, _ := c.Snapshot()
		return snap.Len() == 50 && snap.Times[0] > 0
	}, waitFor, 20*time.Millisecond)
}

func TestController_Recording(t *testing.T) {
	m := mcu.NewMock(nil, 3)
	c := newTestController(t, testConfig(), m)
	sink := &memSink{spr: 50, signals: 3}

	require.NoError(t, c.Start(context.Background(), 0))
	require.NoError(t, c.StartRecording(context.Background(), sink))
	assert.Equal(t, Streaming, c.State())
	assert.True(t, c.IsRecording())
	// Streaming was restarted for recording
	assert.Equal(t, 2, configCommands(m))

	require.Eventually(t, func() bool { return sink.count() >= 2 }, waitFor, 20*time.Millisecond)

	require.NoError(t, c.StopRecording())
	assert.Equal(t, Idle, c.State())
	assert.False(t, c.IsRecording())
	assert.True(t, sink.Closed())

	st := c.Status()
	assert.Equal(t, int64(sink.count()), st.Records)
	assert.Less(t, st.Dropped, int64(150))
	assert.Zero(t, st.Dropped%3, "whole rows only")
	for _, rec := range sink.records {
		assert.Len(t, rec, 150)
		for _, v := range rec {
			assert.GreaterOrEqual(t, v, int16(0))
			assert.LessOrEqual(t, v, int16(4095))
		}
	}

	require.NoError(t, c.StopRecording(), "no-op when not recording")
}

func TestController_StopEndsRecording(t *testing.T) {
	m := mcu.NewMock(nil, 3)
	c := newTestController(t, testConfig(), m)
	sink := &memSink{spr: 50, signals: 3}

	require.NoError(t, c.StartRecording(context.Background(), sink))
	require.NoError(t, c.Stop())
	assert.False(t, c.IsRecording())
	assert.True(t, sink.Closed())
}

func TestController_NoOutputTarget(t *testing.T) {
	m := mcu.NewMock(nil, 3)
	c := newTestController(t, testConfig(), m)

	assert.ErrorIs(t, c.StartRecording(context.Background(), nil), ErrNoOutputTarget)
	assert.ErrorIs(t, c.StartRecording(context.Background(), &memSink{spr: 50, signals: 3, closed: true}), ErrNoOutputTarget)
	assert.Equal(t, Idle, c.State())
	assert.False(t, c.IsRecording())
	assert.Zero(t, configCommands(m))

	require.NoError(t, c.Start(context.Background(), 0))
	assert.ErrorIs(t, c.StartRecording(context.Background(), nil), ErrNoOutputTarget)
	assert.Equal(t, Streaming, c.State())
	assert.Equal(t, 1, configCommands(m))

	err := c.StartRecording(context.Background(), &memSink{spr: 50, signals: 2})
	assert.Error(t, err, "signal count mismatch")
	assert.Equal(t, Streaming, c.State())
	assert.False(t, c.IsRecording())
}

func TestController_HandshakeMismatch(t *testing.T) {
	m := mcu.NewMock(nil, 3)
	m.EchoSkew = 5
	c := newTestController(t, testConfig(), m)

	err := c.Start(context.Background(), 0)
	assert.ErrorIs(t, err, mcu.ErrHandshakeMismatch)
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Status().Session)
	_, ok := c.Snapshot()
	assert.False(t, ok)

	sink := &memSink{spr: 50, signals: 3}
	err = c.StartRecording(context.Background(), sink)
	assert.ErrorIs(t, err, mcu.ErrHandshakeMismatch)
	assert.False(t, c.IsRecording())
	assert.True(t, sink.Closed())
}

func TestController_FramingLost(t *testing.T) {
	m := mcu.NewMock(nil, 3)
	m.CorruptAfter = 3
	c := newTestController(t, testConfig(), m)
	sink := &memSink{spr: 50, signals: 3}

	require.NoError(t, c.StartRecording(context.Background(), sink))

	require.Eventually(t, func() bool {
		return c.State() == Idle
	}, waitFor, 20*time.Millisecond)

	assert.ErrorIs(t, c.Err(), frame.ErrFramingLost)
	st := c.Status()
	assert.ErrorIs(t, st.Fault, frame.ErrFramingLost)
	assert.False(t, st.Recording)
	assert.True(t, sink.Closed())
	assert.False(t, m.IsStreaming())

	// Restart clears the fault
	m.CorruptAfter = 0
	require.NoError(t, c.Start(context.Background(), 0))
	assert.NoError(t, c.Err())
	assert.Equal(t, Streaming, c.State())
}

func TestController_SinkFailure(t *testing.T) {
	m := mcu.NewMock(nil, 3)
	c := newTestController(t, testConfig(), m)
	sink := &memSink{spr: 10, signals: 3, fail: errors.New("disk full")}

	require.NoError(t, c.StartRecording(context.Background(), sink))

	require.Eventually(t, func() bool {
		return c.State() == Idle
	}, waitFor, 20*time.Millisecond)

	require.Error(t, c.Err())
	assert.Contains(t, c.Err().Error(), "disk full")
	assert.False(t, c.IsRecording())
	assert.True(t, sink.Closed())
}

func TestController_Configure(t *testing.T) {
	m := mcu.NewMock(nil, 2)
	c := newTestController(t, testConfig(), m)

	cfg := testConfig()
	cfg.Signals = cfg.Signals[:2]
	cfg.Acquisition.SamplingFreq = 25
	require.NoError(t, c.Configure(cfg))
	got := c.Config()
	assert.Equal(t, 2, got.NumSignals())

	bad := testConfig()
	bad.Acquisition.SamplingFreq = 1000
	assert.Error(t, c.Configure(bad))

	require.NoError(t, c.Start(context.Background(), 0))
	assert.Equal(t, 10, c.Status().Session.BufferSize)
	assert.ErrorIs(t, c.Configure(testConfig()), ErrBusy)

	require.NoError(t, c.Stop())
	require.NoError(t, c.Configure(testConfig()))
	got = c.Config()
	assert.Equal(t, 3, got.NumSignals())
}

func TestController_ConfigIsCopied(t *testing.T) {
	cfg := testConfig()
	c := New(cfg, nil, WithLogger(zerolog.Nop()))

	cfg.Signals[0].Label = "changed"
	assert.Equal(t, "Signal 1", c.Config().Signals[0].Label)
}

func TestController_ConcurrentUse(t *testing.T) {
	m := mcu.NewMock(nil, 3)
	c := newTestController(t, testConfig(), m)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			if snap, ok := c.Snapshot(); ok {
				for i := 1; i < snap.Len(); i++ {
					if snap.Times[i] <= snap.Times[i-1] {
						t.Errorf("timestamps not increasing at %d", i)
						return
					}
				}
			}
			_ = c.Status()
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Start(context.Background(), 0))
		time.Sleep(300 * time.Millisecond)
		require.NoError(t, c.Stop())
	}
	cancel()
	wg.Wait()

	assert.Equal(t, Idle, c.State())
}

func TestController_FaultSurvivesStop(t *testing.T) {
	m := mcu.NewMock(nil, 3)
	m.CorruptAfter = 1
	c := newTestController(t, testConfig(), m)

	require.NoError(t, c.Start(context.Background(), 0))

	// Stop the session after the reader failed but before it tears down
	c.mu.Lock()
	r := c.cur
	require.NotNil(t, r)
	select {
	case <-r.done:
	case <-time.After(waitFor):
		c.mu.Unlock()
		t.Fatal("reader did not fail")
	}
	require.NoError(t, c.stopLocked())
	c.mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, Idle, c.State())
	assert.ErrorIs(t, c.Err(), frame.ErrFramingLost)
	assert.ErrorIs(t, c.Status().Fault, frame.ErrFramingLost)
}
