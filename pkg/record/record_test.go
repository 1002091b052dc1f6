package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	spr     int
	signals int
	records [][]int16
	flushes int
	closed  bool
	failAt  int // fail the n-th write, 1-based
}

func (s *memSink) WriteDataRecord(samples []int16) error {
	if s.failAt > 0 && len(s.records)+1 == s.failAt {
		return errors.New("disk full")
	}
	s.records = append(s.records, append([]int16(nil), samples...))
	return nil
}

func (s *memSink) Flush() error          { s.flushes++; return nil }
func (s *memSink) Close() error          { s.closed = true; return nil }
func (s *memSink) Closed() bool          { return s.closed }
func (s *memSink) SamplesPerRecord() int { return s.spr }
func (s *memSink) Signals() int          { return s.signals }

// rows returns n channel-interleaved rows starting at row start, sample = row*10+channel.
func rows(start, n, channels int) []uint16 {
	out := make([]uint16, 0, n*channels)
	for r := start; r < start+n; r++ {
		for ch := 0; ch < channels; ch++ {
			out = append(out, uint16(r*10+ch))
		}
	}
	return out
}

func TestNewAccumulator(t *testing.T) {
	_, err := NewAccumulator(nil)
	assert.Error(t, err)
	_, err = NewAccumulator(&memSink{spr: 0, signals: 3})
	assert.Error(t, err)
	_, err = NewAccumulator(&memSink{spr: 10, signals: 0})
	assert.Error(t, err)

	a, err := NewAccumulator(&memSink{spr: 500, signals: 3})
	require.NoError(t, err)
	assert.Equal(t, 1500, a.RecordSize())
}

func TestAccumulator_FlushOnRecord(t *testing.T) {
	// 5s at 100Hz, 3 signals, packets of 20 rows
	sink := &memSink{spr: 500, signals: 3}
	a, err := NewAccumulator(sink)
	require.NoError(t, err)

	for i := 0; i < 24; i++ {
		require.NoError(t, a.Add(rows(i*20, 20, 3)))
	}
	assert.Empty(t, sink.records)
	assert.Equal(t, 1440, a.Pending())

	require.NoError(t, a.Add(rows(480, 20, 3)))
	require.Len(t, sink.records, 1)
	assert.Equal(t, 1, sink.flushes)
	assert.Zero(t, a.Pending())
	assert.Equal(t, int64(1), a.Records())

	// Column-major: all of signal 0, then signal 1, then signal 2
	rec := sink.records[0]
	require.Len(t, rec, 1500)
	assert.Equal(t, int16(0), rec[0])
	assert.Equal(t, int16(4990), rec[499])
	assert.Equal(t, int16(1), rec[500])
	assert.Equal(t, int16(4992), rec[1499])
}

func TestAccumulator_CarriesRemainder(t *testing.T) {
	sink := &memSink{spr: 4, signals: 2}
	a, err := NewAccumulator(sink)
	require.NoError(t, err)

	// 3 rows per packet, 4 rows per record
	require.NoError(t, a.Add(rows(0, 3, 2)))
	require.NoError(t, a.Add(rows(3, 3, 2)))
	require.Len(t, sink.records, 1)
	assert.Equal(t, []int16{0, 10, 20, 30, 1, 11, 21, 31}, sink.records[0])
	assert.Equal(t, 4, a.Pending())

	require.NoError(t, a.Add(rows(6, 3, 2)))
	require.Len(t, sink.records, 2)
	assert.Equal(t, []int16{40, 50, 60, 70, 41, 51, 61, 71}, sink.records[1])
	assert.Equal(t, 2, a.Pending())
}

func TestAccumulator_SeveralRecordsAtOnce(t *testing.T) {
	sink := &memSink{spr: 2, signals: 1}
	a, err := NewAccumulator(sink)
	require.NoError(t, err)

	require.NoError(t, a.Add(rows(0, 7, 1)))
	assert.Len(t, sink.records, 3)
	assert.Equal(t, 1, a.Pending())
	assert.Equal(t, int64(3), a.Records())
}

func TestAccumulator_Discard(t *testing.T) {
	sink := &memSink{spr: 10, signals: 3}
	a, err := NewAccumulator(sink)
	require.NoError(t, err)

	require.NoError(t, a.Add(rows(0, 4, 3)))
	assert.Equal(t, 12, a.Discard())
	assert.Zero(t, a.Pending())
	assert.Empty(t, sink.records)
}

func TestAccumulator_SinkErrors(t *testing.T) {
	sink := &memSink{spr: 2, signals: 1, failAt: 2}
	a, err := NewAccumulator(sink)
	require.NoError(t, err)

	err = a.Add(rows(0, 5, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, sink.records, 1)
	assert.Equal(t, int64(1), a.Records())

	sink.closed = true
	assert.ErrorIs(t, a.Add(rows(5, 1, 1)), ErrSinkClosed)
}
