package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/itohio/godaq/pkg/frame"
)

// pollInterval is the pause between checks for a complete packet.
const pollInterval = 5 * time.Millisecond

// read runs the reader goroutine of r until ctx is cancelled or the stream
// fails. On failure the session is torn down.
func (c *Controller) read(ctx context.Context, r *run, dec *frame.Decoder) {
	err := c.readLoop(ctx, r, dec)
	failed := err != nil && ctx.Err() == nil
	if failed {
		// Set before done is closed so a racing Stop cannot hide it
		c.setFault(err)
	}
	close(r.done)

	if failed {
		c.abort(r, err)
	}
}

func (c *Controller) readLoop(ctx context.Context, r *run, dec *frame.Decoder) error {
	size := dec.PacketSize()
	var packets int64

	for ctx.Err() == nil {
		ready, err := c.waitPacket(ctx, size)
		if err != nil {
			return err
		}
		if !ready {
			return nil
		}

		batch, err := dec.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		packets++

		if err := r.window.Append(batch); err != nil {
			return err
		}
		if r.acc != nil {
			if err := r.acc.Add(batch.Data); err != nil {
				return fmt.Errorf("recording failed: %w", err)
			}
		}
	}

	c.log.Debug().Int64("packets", packets).Msg("reader done")
	return nil
}

// waitPacket polls the link until size bytes can be read. It returns false
// when ctx is cancelled first.
func (c *Controller) waitPacket(ctx context.Context, size int) (bool, error) {
	for {
		n, err := c.link.Available()
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
		if n >= size {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(pollInterval):
		}
	}
}
