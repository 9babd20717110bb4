package tts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-speech/internal/audio"
	"github.com/loqalabs/loqa-speech/internal/fault"
	"github.com/loqalabs/loqa-speech/internal/protocol"
	"github.com/loqalabs/loqa-speech/internal/textprep"
	"github.com/loqalabs/loqa-speech/internal/voice"
)

const ContentTypeWAV = "audio/wav"

// Publisher receives completion and failure notifications.
type Publisher interface {
	Publish(subject string, v any) error
}

// SpeakRequest is a synthesis request as received from a caller.
type SpeakRequest struct {
	ID            string
	Text          string
	Language      string
	Speed         float64
	Speaker       string
	Upload        *voice.Upload
	ReferencePath string
	PromptText    string
	UseReference  bool
}

// Speech is an encoded synthesis result with the metadata callers audit.
type Speech struct {
	Audio        []byte
	ContentType  string
	Language     string
	Voice        string
	Engine       string
	SampleRate   int
	Duration     time.Duration
	SpeedApplied bool
}

// Service runs a request through normalization, preprocessing, voice
// resolution, invocation and encoding.
type Service struct {
	engine   Engine
	backend  string
	loader   *Loader
	pipeline *textprep.Pipeline
	resolver *voice.Resolver
	invoker  *Invoker
	events   Publisher
	logger   *slog.Logger
	tracer   trace.Tracer
}

type ServiceOptions struct {
	Engine Engine
	// Backend names the backend mode for diagnostics.
	Backend  string
	Loader   *Loader
	Pipeline *textprep.Pipeline
	Resolver *voice.Resolver
	Invoker  *Invoker
	Events   Publisher
}

func NewService(opts ServiceOptions, logger *slog.Logger) *Service {
	if opts.Pipeline == nil {
		opts.Pipeline = textprep.Default()
	}
	if opts.Invoker == nil {
		opts.Invoker = NewInvoker(logger)
	}
	return &Service{
		engine:   opts.Engine,
		backend:  opts.Backend,
		loader:   opts.Loader,
		pipeline: opts.Pipeline,
		resolver: opts.Resolver,
		invoker:  opts.Invoker,
		events:   opts.Events,
		logger:   logger.With(slog.String("component", "tts-service")),
		tracer:   otel.Tracer(instrumentationName),
	}
}

func (s *Service) Engine() Engine { return s.engine }

func (s *Service) BackendMode() string { return s.backend }

// DefaultReference is the configured fallback reference path.
func (s *Service) DefaultReference() string { return s.resolver.DefaultReference }

// Handle loads the engine if needed.
func (s *Service) Handle(ctx context.Context) (*Handle, error) { return s.loader.Get(ctx) }

// Ready reports whether the engine has been loaded.
func (s *Service) Ready() bool { return s.loader.Loaded() != nil }

// Warmup loads the engine ahead of the first request.
func (s *Service) Warmup(ctx context.Context) error {
	_, err := s.loader.Get(ctx)
	return err
}

func (s *Service) Close() error { return s.loader.Close() }

// Speak synthesizes req. Errors carry a fault kind; input problems are
// detected before the model is invoked.
func (s *Service) Speak(ctx context.Context, req SpeakRequest) (speech Speech, err error) {
	ctx, span := s.tracer.Start(ctx, "tts.speak", trace.WithAttributes(
		attribute.String("tts.engine", s.engine.Name),
		attribute.String("request.id", req.ID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.notifyFailure(req.ID, err)
		} else {
			s.notifyCompleted(req.ID, speech)
		}
		span.End()
	}()

	if strings.TrimSpace(req.Text) == "" {
		return Speech{}, fault.Input("speak", "text is required")
	}

	lang := s.engine.Languages.Normalize(req.Language)
	if lang.FellBack {
		s.logger.Debug("unsupported language, using fallback",
			slog.String("request_id", req.ID), slog.String("requested", req.Language), slog.String("language", lang.Lang))
	}
	span.SetAttributes(attribute.String("tts.language", lang.Lang))

	text := s.pipeline.Preprocess(req.Text, lang.Lang)
	if text == "" {
		return Speech{}, fault.Input("speak", "text is empty after preprocessing")
	}

	h, err := s.loader.Get(ctx)
	if err != nil {
		return Speech{}, err
	}

	resolved, lease, err := s.resolver.Resolve(ctx, voice.Request{
		ID:            req.ID,
		Upload:        req.Upload,
		ReferencePath: req.ReferencePath,
		Speaker:       req.Speaker,
		UseReference:  req.UseReference,
	}, h)
	if err != nil {
		return Speech{}, err
	}
	span.SetAttributes(attribute.String("tts.voice", resolved.Descriptor()))

	result, err := s.invoker.Synthesize(ctx, h, Request{
		ID:         req.ID,
		Text:       text,
		Language:   lang.Lang,
		Voice:      resolved,
		PromptText: req.PromptText,
		Speed:      req.Speed,
		Release: func() {
			if err := lease.Release(); err != nil {
				s.logger.Warn("failed to remove reference scratch files", slog.String("request_id", req.ID), slogError(err))
			}
		},
	})
	if err != nil {
		return Speech{}, err
	}

	data, err := audio.EncodeWAV(result.Waveform)
	if err != nil {
		return Speech{}, fault.Encoding("encode wav", err)
	}

	return Speech{
		Audio:        data,
		ContentType:  ContentTypeWAV,
		Language:     lang.Lang,
		Voice:        resolved.Descriptor(),
		Engine:       s.engine.DisplayName,
		SampleRate:   result.Waveform.SampleRate,
		Duration:     result.Waveform.Duration(),
		SpeedApplied: result.SpeedApplied,
	}, nil
}

func (s *Service) notifyCompleted(id string, speech Speech) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(protocol.SubjectTTSCompleted, protocol.SynthesisCompleted{
		RequestID:    id,
		Engine:       s.engine.Name,
		Language:     speech.Language,
		Voice:        speech.Voice,
		SampleRate:   speech.SampleRate,
		DurationMS:   speech.Duration.Milliseconds(),
		SpeedApplied: speech.SpeedApplied,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to publish tts completion", slogError(err))
	}
}

func (s *Service) notifyFailure(id string, cause error) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(protocol.SubjectTTSFailed, protocol.RequestFailed{
		RequestID: id,
		Service:   "tts",
		Kind:      fault.KindOf(cause).String(),
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to publish tts failure", slogError(err))
	}
}
