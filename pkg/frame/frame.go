// Package frame splits the MCU byte stream into sample packets.
//
// Every packet is a run of 16-bit little-endian samples, channel interleaved,
// separated by a 4-byte marker of 0xFF. The ADC is at most 15 bits wide so the
// marker never occurs inside a packet.
package frame

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// MarkerSize is the length of the packet separator.
	MarkerSize = 4
	// SampleSize is the width of one sample on the wire.
	SampleSize = 2
	// SyncTimeout bounds the initial marker search.
	SyncTimeout = 3 * time.Second
)

// Marker separates packets.
var Marker = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// ErrFramingLost indicates the marker was not where it was expected.
var ErrFramingLost = errors.New("framing lost")

// Reader reads exactly n bytes.
type Reader interface {
	Read(ctx context.Context, n int) ([]byte, error)
}

// PacketSize returns the number of bytes read per packet, marker included.
func PacketSize(bufferSize int) int {
	return MarkerSize + bufferSize*SampleSize
}

// Sync consumes the stream one byte at a time until a marker has been read.
func Sync(ctx context.Context, r Reader) error {
	var window [MarkerSize]byte
	seen := 0
	for {
		b, err := r.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: no marker after %d bytes: %w", ErrFramingLost, seen, err)
			}
			return err
		}
		copy(window[:], window[1:])
		window[MarkerSize-1] = b[0]
		seen++
		if seen >= MarkerSize && bytes.Equal(window[:], Marker) {
			return nil
		}
	}
}

// Split checks that packet ends with the marker, and contains no other
// marker, and decodes the samples in front of it.
func Split(packet []byte) ([]uint16, error) {
	if len(packet) < MarkerSize || bytes.Index(packet, Marker) != len(packet)-MarkerSize {
		return nil, fmt.Errorf("%w: marker not at the end of %d byte packet", ErrFramingLost, len(packet))
	}
	payload := packet[:len(packet)-MarkerSize]
	if len(payload)%SampleSize != 0 {
		return nil, fmt.Errorf("%w: odd payload of %d bytes", ErrFramingLost, len(payload))
	}

	samples := make([]uint16, len(payload)/SampleSize)
	for i := range samples {
		samples[i] = binary.LittleEndian.Uint16(payload[i*SampleSize:])
	}
	return samples, nil
}
