package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeBackend records every invocation and replays scripted output.
type fakeBackend struct {
	caps        Capabilities
	describeErr error
	chunks      []Chunk
	err         error
	// gate, when set, holds Synthesize until closed.
	gate chan struct{}

	mu    sync.Mutex
	calls []Invocation
}

func (f *fakeBackend) Describe(context.Context) (Capabilities, error) {
	return f.caps, f.describeErr
}

func (f *fakeBackend) Synthesize(ctx context.Context, inv Invocation) (<-chan Chunk, <-chan error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	chunks := make(chan Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		if f.gate != nil {
			<-f.gate
		}
		for _, c := range f.chunks {
			select {
			case chunks <- c:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if f.err != nil {
			errs <- f.err
		}
	}()
	return chunks, errs
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) invocations() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Invocation(nil), f.calls...)
}

func loadedHandle(engine Engine, backend Backend) *Handle {
	l := NewLoader(engine, func(context.Context) (Backend, error) { return backend, nil }, testLogger())
	h, err := l.Get(context.Background())
	if err != nil {
		panic(err)
	}
	return h
}

var errCUDA = errors.New("CUDA out of memory")
