package embedder

// MaskedMean averages the hidden states of the positions whose mask is 1.
// Padding positions contribute nothing. A row with no real positions yields a
// zero vector.
func MaskedMean(states [][]float32, mask []int, hidden int) []float32 {
	sum := make([]float64, hidden)
	var weight float64
	for j, vec := range states {
		if j >= len(mask) || mask[j] == 0 {
			continue
		}
		w := float64(mask[j])
		for d, v := range vec {
			sum[d] += w * float64(v)
		}
		weight += w
	}

	out := make([]float32, hidden)
	if weight == 0 {
		return out
	}
	for d := range out {
		out[d] = float32(sum[d] / weight)
	}
	return out
}

// MeanVectors returns the arithmetic mean of equally sized vectors
func MeanVectors(vectors [][]float32, hidden int) []float32 {
	out := make([]float32, hidden)
	if len(vectors) == 0 {
		return out
	}

	sum := make([]float64, hidden)
	for _, vec := range vectors {
		for d, v := range vec {
			sum[d] += float64(v)
		}
	}
	n := float64(len(vectors))
	for d := range out {
		out[d] = float32(sum[d] / n)
	}
	return out
}
