package sample

// Downsample decimates src to at most maxPoints values.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// Returns the destination slice (may be dst if reused, or a new slice if dst was too small).
// If len(src) <= maxPoints, copies all values.
func Downsample[T any](dst, src []T, maxPoints int) []T {
	if maxPoints <= 0 || len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
			copy(dst, src)
			return dst
		}
		result := make([]T, len(src))
		copy(result, src)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, maxPoints)
	}

	// Calculate step size for decimation
	step := float64(len(src)) / float64(maxPoints)

	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(src) {
			dst = append(dst, src[idx])
		}
	}

	return dst
}

// DownsampleSeries decimates times and values of s with the same indices.
func DownsampleSeries(s Series, maxPoints int) Series {
	return Series{
		Label:  s.Label,
		Unit:   s.Unit,
		Times:  Downsample(nil, s.Times, maxPoints),
		Values: Downsample(nil, s.Values, maxPoints),
	}
}
