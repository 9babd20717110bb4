package tts

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/loqalabs/loqa-speech/internal/fault"
)

// Handle is a loaded backend plus what was learned about it at load time.
// It is immutable and shared by every request.
type Handle struct {
	engine         Engine
	backend        Backend
	speakers       []string
	defaultSpeaker string
	sampleRate     int
}

func (h *Handle) Engine() Engine { return h.engine }

// BuiltInSpeakers returns the speaker registry in model order.
func (h *Handle) BuiltInSpeakers() []string { return slices.Clone(h.speakers) }

// DefaultSpeaker is the first built-in speaker, empty when there are none.
func (h *Handle) DefaultSpeaker() string { return h.defaultSpeaker }

func (h *Handle) ReferenceSampleRate() int { return h.engine.ReferenceSampleRate }

// SampleRate is the native output rate of the model.
func (h *Handle) SampleRate() int { return h.sampleRate }

// Factory starts a backend.
type Factory func(ctx context.Context) (Backend, error)

// Loader creates the Handle on first use. Concurrent first callers share a
// single load; a failed load is retried by the next caller.
type Loader struct {
	engine  Engine
	factory Factory
	logger  *slog.Logger

	group  singleflight.Group
	handle atomic.Pointer[Handle]
	loads  atomic.Int64
}

func NewLoader(engine Engine, factory Factory, logger *slog.Logger) *Loader {
	return &Loader{
		engine:  engine,
		factory: factory,
		logger:  logger.With(slog.String("component", "tts-loader")),
	}
}

// Get returns the shared handle, loading it if needed. A caller that gives
// up while the load runs gets ctx.Err(); the load itself continues.
func (l *Loader) Get(ctx context.Context) (*Handle, error) {
	if h := l.handle.Load(); h != nil {
		return h, nil
	}
	ch := l.group.DoChan("engine", func() (any, error) {
		if h := l.handle.Load(); h != nil {
			return h, nil
		}
		h, err := l.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.handle.Store(h)
		return h, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fault.Invocation("load engine", res.Err)
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Loaded returns the handle if it has been created.
func (l *Loader) Loaded() *Handle { return l.handle.Load() }

// Loads counts backend starts, successful or not.
func (l *Loader) Loads() int64 { return l.loads.Load() }

func (l *Loader) load(ctx context.Context) (*Handle, error) {
	l.loads.Add(1)
	l.logger.Info("loading engine", slog.String("engine", l.engine.Name))
	backend, err := l.factory(ctx)
	if err != nil {
		l.logger.Error("engine load failed", slog.String("engine", l.engine.Name), slogError(err))
		return nil, err
	}

	h := &Handle{engine: l.engine, backend: backend, sampleRate: l.engine.SampleRate}
	caps, err := backend.Describe(ctx)
	if err != nil {
		l.logger.Warn("capability probe failed, assuming no built-in speakers", slogError(err))
	} else {
		h.speakers = slices.Clone(caps.Speakers)
		if caps.SampleRate > 0 {
			h.sampleRate = caps.SampleRate
		}
	}
	if len(h.speakers) > 0 {
		h.defaultSpeaker = h.speakers[0]
	}
	l.logger.Info("engine loaded",
		slog.String("engine", l.engine.Name),
		slog.Int("speakers", len(h.speakers)),
		slog.String("default_speaker", h.defaultSpeaker),
		slog.Int("sample_rate", h.sampleRate),
	)
	return h, nil
}

// Close shuts the backend down if it was loaded.
func (l *Loader) Close() error {
	if h := l.handle.Load(); h != nil {
		return h.backend.Close()
	}
	return nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
