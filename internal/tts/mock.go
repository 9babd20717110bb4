package tts

import (
	"context"
	"math"
	"slices"
	"time"
)

type mockBackend struct {
	speakers   []string
	sampleRate int
}

// NewMockBackend returns an in-process backend that renders a short tone
// per word. It exposes speakers as its built-in registry.
func NewMockBackend(speakers []string, sampleRate int) Backend {
	return &mockBackend{speakers: slices.Clone(speakers), sampleRate: sampleRate}
}

func (m *mockBackend) Describe(context.Context) (Capabilities, error) {
	return Capabilities{Speakers: slices.Clone(m.speakers), SampleRate: m.sampleRate}, nil
}

func (m *mockBackend) Synthesize(ctx context.Context, inv Invocation) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(50 * time.Millisecond):
		}
		speed := inv.Speed
		if speed <= 0 {
			speed = 1
		}
		// One tenth of a second per rune, split into two chunks.
		n := int(float64(len([]rune(inv.Text))*m.sampleRate) / 10 / speed)
		tone := make([]float32, max(n, 1))
		for i := range tone {
			tone[i] = float32(0.2 * math.Sin(2*math.Pi*220*float64(i)/float64(m.sampleRate)))
		}
		half := len(tone) / 2
		for _, part := range [][]float32{tone[:half], tone[half:]} {
			select {
			case chunks <- Chunk{Samples: part, SampleRate: m.sampleRate}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}

func (m *mockBackend) Close() error { return nil }
