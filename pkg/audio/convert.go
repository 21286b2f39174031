package audio

// ResampleMono resamples normalized mono samples from srcRate to dstRate
// using linear interpolation. If the rates already match (or either rate is
// invalid) the input is returned unchanged.
//
// The engine's wire format is fixed at 16 kHz, so this is the bridge for
// capture sources recorded at other rates.
func ResampleMono(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// ChunkSamples splits samples into frames of frameSize samples each. The
// final frame may be shorter. Frames reference the input slice; callers
// must not mutate samples afterwards.
func ChunkSamples(samples []float32, frameSize int) [][]float32 {
	if frameSize <= 0 || len(samples) == 0 {
		return nil
	}
	out := make([][]float32, 0, (len(samples)+frameSize-1)/frameSize)
	for start := 0; start < len(samples); start += frameSize {
		end := min(start+frameSize, len(samples))
		out = append(out, samples[start:end])
	}
	return out
}
