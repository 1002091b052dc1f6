package frame

import (
	"context"
	"fmt"
)

// Decoder reads fixed-size packets from a synchronized stream.
type Decoder struct {
	r          Reader
	bufferSize int
	channels   int
}

// NewDecoder creates a decoder for packets of bufferSize samples over
// channels interleaved channels.
func NewDecoder(r Reader, bufferSize, channels int) (*Decoder, error) {
	if bufferSize < 1 {
		return nil, fmt.Errorf("invalid buffer size %d", bufferSize)
	}
	if channels < 1 || bufferSize%channels != 0 {
		return nil, fmt.Errorf("buffer size %d is not a multiple of %d channels", bufferSize, channels)
	}
	return &Decoder{r: r, bufferSize: bufferSize, channels: channels}, nil
}

// PacketSize returns the number of bytes Next consumes.
func (d *Decoder) PacketSize() int {
	return PacketSize(d.bufferSize)
}

// Sync discards bytes up to and including the next marker, giving up after
// SyncTimeout.
func (d *Decoder) Sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, SyncTimeout)
	defer cancel()
	return Sync(ctx, d.r)
}

// Next reads one packet and returns its samples as rows.
func (d *Decoder) Next(ctx context.Context) (Batch, error) {
	packet, err := d.r.Read(ctx, d.PacketSize())
	if err != nil {
		return Batch{}, err
	}
	samples, err := Split(packet)
	if err != nil {
		return Batch{}, err
	}
	return Reshape(samples, d.channels)
}
