// Package window keeps the most recent samples for display.
package window

import (
	"fmt"
	"sync"

	"github.com/itohio/godaq/pkg/frame"
)

// Window is a fixed-capacity ring of sample rows with their timestamps.
// Row k since the start of streaming is stamped k/freq seconds.
type Window struct {
	mu       sync.RWMutex
	freq     float64
	channels int
	capacity int

	times []float64
	data  []uint16 // capacity rows of channels samples
	head  int      // next row to write
	size  int
	total int64 // rows appended since creation
}

// New creates a window holding seconds worth of rows sampled at freq.
func New(seconds, freq, channels int) (*Window, error) {
	if seconds < 1 || freq < 1 || channels < 1 {
		return nil, fmt.Errorf("invalid window %ds at %dHz with %d channels", seconds, freq, channels)
	}
	capacity := seconds * freq
	return &Window{
		freq:     float64(freq),
		channels: channels,
		capacity: capacity,
		times:    make([]float64, capacity),
		data:     make([]uint16, capacity*channels),
	}, nil
}

// Append adds all rows of b, evicting the oldest rows once full.
func (w *Window) Append(b frame.Batch) error {
	if b.Channels != w.channels {
		return fmt.Errorf("batch has %d channels, window has %d", b.Channels, w.channels)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for i := 0; i < b.Rows; i++ {
		w.times[w.head] = float64(w.total) / w.freq
		copy(w.data[w.head*w.channels:(w.head+1)*w.channels], b.Row(i))
		w.head = (w.head + 1) % w.capacity
		w.total++
		if w.size < w.capacity {
			w.size++
		}
	}
	return nil
}

// Len returns the number of rows held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}

// Capacity returns the maximum number of rows held.
func (w *Window) Capacity() int {
	return w.capacity
}

// Channels returns the number of samples per row.
func (w *Window) Channels() int {
	return w.channels
}

// Total returns the number of rows appended since creation.
func (w *Window) Total() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.total
}

// Snapshot copies the window contents, oldest row first.
func (w *Window) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Snapshot{
		Channels: w.channels,
		Times:    make([]float64, w.size),
		Data:     make([]uint16, w.size*w.channels),
	}
	start := (w.head - w.size + w.capacity) % w.capacity
	for i := 0; i < w.size; i++ {
		j := (start + i) % w.capacity
		s.Times[i] = w.times[j]
		copy(s.Data[i*w.channels:(i+1)*w.channels], w.data[j*w.channels:(j+1)*w.channels])
	}
	return s
}

// Snapshot is a point-in-time copy of a Window.
type Snapshot struct {
	Channels int
	Times    []float64
	Data     []uint16 // row-major
}

// Len returns the number of rows.
func (s Snapshot) Len() int {
	return len(s.Times)
}

// Row returns row i.
func (s Snapshot) Row(i int) []uint16 {
	return s.Data[i*s.Channels : (i+1)*s.Channels]
}

// Column returns all samples of channel ch.
func (s Snapshot) Column(ch int) []uint16 {
	out := make([]uint16, len(s.Times))
	for i := range out {
		out[i] = s.Data[i*s.Channels+ch]
	}
	return out
}
