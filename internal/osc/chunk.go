package osc

// ChunkRange is an inclusive key range [Low, High].
type ChunkRange struct {
	Low  int64
	High int64
}

// rangeFrom returns the range of at most size keys starting at low, capped at high.
func rangeFrom(low, high, size int64) ChunkRange {
	if size-1 >= high-low {
		return ChunkRange{Low: low, High: high}
	}
	return ChunkRange{Low: low, High: low + size - 1}
}

// Chunks tiles [low, high] with consecutive ranges of size keys; the last
// range may be shorter.
func Chunks(low, high, size int64) []ChunkRange {
	if low > high || size <= 0 {
		return nil
	}
	var out []ChunkRange
	for {
		r := rangeFrom(low, high, size)
		out = append(out, r)
		if r.High == high {
			return out
		}
		low = r.High + 1
	}
}
