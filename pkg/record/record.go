// Package record groups streamed samples into fixed-size data records for a
// recording sink.
package record

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/itohio/godaq/pkg/frame"
)

// ErrSinkClosed is returned when adding to an accumulator whose sink is closed.
var ErrSinkClosed = errors.New("sink closed")

// Sink receives complete data records.
type Sink interface {
	// WriteDataRecord writes one record: SamplesPerRecord samples of signal 0,
	// then of signal 1 and so on.
	WriteDataRecord(samples []int16) error
	Flush() error
	Close() error
	Closed() bool
	SamplesPerRecord() int
	Signals() int
}

// Accumulator buffers channel-interleaved samples until one data record is
// complete and hands it to the sink. It is owned by a single goroutine.
type Accumulator struct {
	sink       Sink
	channels   int
	recordSize int
	buf        []uint16
	records    atomic.Int64
}

// NewAccumulator creates an accumulator sized from the sink.
func NewAccumulator(sink Sink) (*Accumulator, error) {
	if sink == nil {
		return nil, errors.New("nil sink")
	}
	spr, signals := sink.SamplesPerRecord(), sink.Signals()
	if spr < 1 || signals < 1 {
		return nil, fmt.Errorf("invalid record of %d samples for %d signals", spr, signals)
	}
	return &Accumulator{
		sink:       sink,
		channels:   signals,
		recordSize: spr * signals,
		buf:        make([]uint16, 0, spr*signals*2),
	}, nil
}

// RecordSize returns the number of samples in one record, all signals.
func (a *Accumulator) RecordSize() int {
	return a.recordSize
}

// Pending returns the number of buffered samples not yet written.
func (a *Accumulator) Pending() int {
	return len(a.buf)
}

// Records returns the number of records written. Safe for concurrent use.
func (a *Accumulator) Records() int64 {
	return a.records.Load()
}

// Add appends samples and writes every record that became complete.
// Samples past the last complete record stay buffered.
func (a *Accumulator) Add(samples []uint16) error {
	if a.sink.Closed() {
		return ErrSinkClosed
	}
	a.buf = append(a.buf, samples...)

	off := 0
	for len(a.buf)-off >= a.recordSize {
		if err := a.write(a.buf[off : off+a.recordSize]); err != nil {
			a.buf = a.buf[:copy(a.buf, a.buf[off+a.recordSize:])]
			return err
		}
		off += a.recordSize
	}
	a.buf = a.buf[:copy(a.buf, a.buf[off:])]
	return nil
}

// Discard drops the buffered partial record and returns how many samples
// were dropped.
func (a *Accumulator) Discard() int {
	n := len(a.buf)
	a.buf = a.buf[:0]
	return n
}

func (a *Accumulator) write(samples []uint16) error {
	cols, err := frame.Deinterleave(samples, a.channels)
	if err != nil {
		return err
	}
	// 12-bit readings fit int16 unchanged
	digital := make([]int16, len(cols))
	for i, v := range cols {
		digital[i] = int16(v)
	}

	if err := a.sink.WriteDataRecord(digital); err != nil {
		return fmt.Errorf("failed to write data record: %w", err)
	}
	if err := a.sink.Flush(); err != nil {
		return fmt.Errorf("failed to flush data record: %w", err)
	}
	a.records.Add(1)
	return nil
}
