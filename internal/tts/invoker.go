package tts

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-speech/internal/audio"
	"github.com/loqalabs/loqa-speech/internal/fault"
	"github.com/loqalabs/loqa-speech/internal/voice"
)

const (
	instrumentationName = "github.com/loqalabs/loqa-speech/internal/tts"
	opSynthesize        = "synthesize"
)

// Request is a synthesis call with the voice already resolved.
type Request struct {
	ID         string
	Text       string
	Language   string
	Voice      voice.Resolved
	PromptText string
	Speed      float64
	// Release runs once the backend call is over, including calls whose
	// caller stopped waiting.
	Release func()
}

// Result is the assembled model output.
type Result struct {
	Waveform     audio.Waveform
	Mode         Mode
	SpeedApplied bool
}

// Invoker turns a Request into a single backend call and assembles the
// streamed output.
type Invoker struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

func NewInvoker(logger *slog.Logger) *Invoker {
	logger = logger.With(slog.String("component", "tts-invoker"))
	meter := otel.Meter(instrumentationName)
	calls, err := meter.Int64Counter("loqa_tts_invocations_total",
		metric.WithDescription("Model invocations by engine, mode and outcome."))
	if err != nil {
		logger.Warn("invocation counter unavailable", slogError(err))
		calls, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("loqa_tts_invocations_total")
	}
	duration, err := meter.Float64Histogram("loqa_tts_invocation_duration_seconds",
		metric.WithDescription("Wall time of model invocations."), metric.WithUnit("s"))
	if err != nil {
		logger.Warn("invocation histogram unavailable", slogError(err))
		duration, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("loqa_tts_invocation_duration_seconds")
	}
	return &Invoker{
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		calls:    calls,
		duration: duration,
	}
}

// Synthesize runs req against the loaded model. Input problems are reported
// before the backend is touched. The backend call is detached from ctx: if
// ctx ends first Synthesize returns ctx.Err() and the output is discarded
// when the call completes.
func (i *Invoker) Synthesize(ctx context.Context, h *Handle, req Request) (Result, error) {
	release := req.Release
	if release == nil {
		release = func() {}
	}
	inv, speedApplied, err := plan(h.engine, req)
	if err != nil {
		release()
		return Result{}, err
	}
	if !speedApplied {
		i.logger.Warn("speed is not applied with a reference on this engine",
			slog.String("request_id", req.ID), slog.String("engine", h.engine.Name), slog.Float64("speed", req.Speed))
	}

	ctx, span := i.tracer.Start(ctx, "tts.invoke", trace.WithAttributes(
		attribute.String("tts.engine", h.engine.Name),
		attribute.String("tts.mode", inv.Mode.String()),
		attribute.String("tts.language", inv.Language),
		attribute.Int("tts.text_runes", len([]rune(inv.Text))),
	))
	defer span.End()

	type outcome struct {
		wave audio.Waveform
		err  error
	}
	done := make(chan outcome, 1)
	detached := context.WithoutCancel(ctx)
	go func() {
		start := time.Now()
		wave, err := i.collect(detached, h, inv)
		i.record(detached, h.engine, inv, time.Since(start), err)
		if err != nil {
			i.logger.Error("model invocation failed",
				slog.String("request_id", req.ID),
				slog.String("engine", h.engine.Name),
				slog.String("mode", inv.Mode.String()),
				slog.String("language", inv.Language),
				slog.Int("text_runes", len([]rune(inv.Text))),
				slogError(err),
			)
		}
		release()
		done <- outcome{wave: wave, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, out.err.Error())
			return Result{}, fault.Invocation(opSynthesize, out.err)
		}
		span.SetAttributes(attribute.Int("tts.samples", len(out.wave.Samples)))
		return Result{Waveform: out.wave, Mode: inv.Mode, SpeedApplied: speedApplied}, nil
	case <-ctx.Done():
		i.logger.Warn("caller went away, result will be discarded", slog.String("request_id", req.ID))
		span.SetStatus(codes.Error, "abandoned")
		return Result{}, ctx.Err()
	}
}

// plan picks the mode and builds the backend call.
func plan(engine Engine, req Request) (Invocation, bool, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Invocation{}, false, fault.Input(opSynthesize, "text must not be empty")
	}
	speed := req.Speed
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return Invocation{}, false, fault.Input(opSynthesize, "speed must be a positive number, got %v", req.Speed)
	}

	inv := Invocation{ID: req.ID, Text: text, Language: req.Language}
	switch v := req.Voice; {
	case v.Kind == voice.Cloned && v.ReferencePath != "":
		inv.Mode = ModeCloned
		inv.ReferencePath = v.ReferencePath
		inv.ReferenceSampleRate = v.SampleRate
		if engine.ZeroShot {
			inv.PromptText = strings.TrimSpace(req.PromptText)
			if inv.PromptText == "" {
				inv.PromptText = text
			}
		}
	case v.Kind == voice.BuiltIn && v.Speaker != "":
		inv.Mode = ModeNamedSpeaker
		inv.Speaker = v.Speaker
	default:
		return Invocation{}, false, fault.Input(opSynthesize, "no reference audio and no built-in speaker available")
	}

	if engine.appliesSpeed(inv.Mode) {
		inv.Speed = speed
		return inv, true, nil
	}
	inv.Speed = 1
	return inv, speed == 1, nil
}

// collect drains the backend stream. Chunks are joined in arrival order at
// the rate of the first chunk. No chunks at all yields one silent sample.
func (i *Invoker) collect(ctx context.Context, h *Handle, inv Invocation) (audio.Waveform, error) {
	chunks, errs := h.backend.Synthesize(ctx, inv)
	var (
		parts   [][]float32
		rate    int
		failure error
	)
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if len(chunk.Samples) == 0 {
				continue
			}
			if rate == 0 {
				rate = chunk.SampleRate
				if rate <= 0 {
					rate = h.sampleRate
				}
			}
			samples := chunk.Samples
			if chunk.SampleRate > 0 && chunk.SampleRate != rate {
				samples = audio.Resample(audio.Waveform{Samples: samples, SampleRate: chunk.SampleRate}, rate).Samples
			}
			parts = append(parts, samples)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && failure == nil {
				failure = err
			}
		}
	}
	if failure != nil {
		return audio.Waveform{}, failure
	}
	if len(parts) == 0 {
		i.logger.Warn("model produced no audio, returning silence", slog.String("request_id", inv.ID))
		return audio.Silence(h.sampleRate), nil
	}
	return audio.Concat(rate, parts...), nil
}

func (i *Invoker) record(ctx context.Context, engine Engine, inv Invocation, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("engine", engine.Name),
		attribute.String("mode", inv.Mode.String()),
		attribute.String("outcome", outcome),
	)
	i.calls.Add(ctx, 1, attrs)
	i.duration.Record(ctx, elapsed.Seconds(), attrs)
}
