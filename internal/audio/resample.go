package audio

// Resample converts w to rate by linear interpolation. It returns w
// unchanged when the rates already match.
func Resample(w Waveform, rate int) Waveform {
	if rate <= 0 || w.SampleRate <= 0 || rate == w.SampleRate || len(w.Samples) == 0 {
		return w
	}
	n := int(int64(len(w.Samples)) * int64(rate) / int64(w.SampleRate))
	if n < 1 {
		n = 1
	}
	out := make([]float32, n)
	step := float64(w.SampleRate) / float64(rate)
	last := len(w.Samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = w.Samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = w.Samples[j]*(1-frac) + w.Samples[j+1]*frac
	}
	return Waveform{Samples: out, SampleRate: rate}
}

// Concat joins chunks along the time axis. Chunks must share a rate.
func Concat(rate int, chunks ...[]float32) Waveform {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	samples := make([]float32, 0, total)
	for _, c := range chunks {
		samples = append(samples, c...)
	}
	return Waveform{Samples: samples, SampleRate: rate}
}
