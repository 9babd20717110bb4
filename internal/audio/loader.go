package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Loader reads reference audio from disk at a requested sample rate.
type Loader struct {
	// Transcoder handles inputs the WAV decoder cannot read. Without it
	// only PCM and float WAV are accepted.
	Transcoder *Transcoder
}

// Load decodes the file at path, downmixes it and resamples it to rate.
func (l Loader) Load(ctx context.Context, path string, rate int) (Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("read %s: %w", path, err)
	}
	var w Waveform
	if IsWAV(data) {
		w, err = DecodeWAVBytes(data)
	} else {
		err = errors.New("not a wav file")
	}
	if err != nil {
		if !l.Transcoder.Enabled() {
			return Waveform{}, fmt.Errorf("decode %s: %w", path, err)
		}
		transcoded, terr := l.Transcoder.ToWAVPath(ctx, path, rate)
		if terr != nil {
			return Waveform{}, fmt.Errorf("transcode %s: %w", path, terr)
		}
		if w, err = DecodeWAVBytes(transcoded); err != nil {
			return Waveform{}, fmt.Errorf("decode transcoded %s: %w", path, err)
		}
	}
	if len(w.Samples) == 0 {
		return Waveform{}, fmt.Errorf("%s contains no audio", path)
	}
	return Resample(w, rate), nil
}
