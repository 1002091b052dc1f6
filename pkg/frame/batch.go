package frame

import "fmt"

// Batch is a rows x channels matrix of samples, row-major.
type Batch struct {
	Rows     int
	Channels int
	Data     []uint16
}

// Reshape arranges channel-interleaved samples into rows.
func Reshape(samples []uint16, channels int) (Batch, error) {
	if channels < 1 {
		return Batch{}, fmt.Errorf("invalid channel count %d", channels)
	}
	if len(samples)%channels != 0 {
		return Batch{}, fmt.Errorf("%d samples do not divide into %d channels", len(samples), channels)
	}
	return Batch{
		Rows:     len(samples) / channels,
		Channels: channels,
		Data:     samples,
	}, nil
}

// Row returns row i. The slice aliases the batch.
func (b Batch) Row(i int) []uint16 {
	return b.Data[i*b.Channels : (i+1)*b.Channels]
}

// Deinterleave reorders channel-interleaved samples so that all samples of
// channel 0 come first, then channel 1 and so on.
func Deinterleave(samples []uint16, channels int) ([]uint16, error) {
	if channels < 1 || len(samples)%channels != 0 {
		return nil, fmt.Errorf("%d samples do not divide into %d channels", len(samples), channels)
	}
	rows := len(samples) / channels
	out := make([]uint16, len(samples))
	for r := 0; r < rows; r++ {
		for ch := 0; ch < channels; ch++ {
			out[ch*rows+r] = samples[r*channels+ch]
		}
	}
	return out, nil
}
