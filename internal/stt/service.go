package stt

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-speech/internal/fault"
	"github.com/loqalabs/loqa-speech/internal/protocol"
)

const (
	instrumentationName = "github.com/loqalabs/loqa-speech/internal/stt"
	opTranscribe        = "transcribe"
)

// Publisher receives completion and failure notifications.
type Publisher interface {
	Publish(subject string, v any) error
}

// Request is a transcription request as received from a caller.
type Request struct {
	ID             string
	Audio          Audio
	LangHint       string
	ReturnSegments bool
	SegmentLangID  bool
}

// SegmentResult is a segment as returned to callers. LangGuess is the
// text-based guess for this segment only.
type SegmentResult struct {
	Start     float64     `json:"start"`
	End       float64     `json:"end"`
	Text      string      `json:"text"`
	LangGuess []LangGuess `json:"lang_guess"`
}

// Result is the response body of a transcription. DetectedLang is the
// recognizer's detection for the whole recording and is never overwritten
// by segment guesses.
type Result struct {
	Text                string          `json:"text"`
	DetectedLang        string          `json:"detected_lang"`
	LanguageProbability float64         `json:"language_probability"`
	Duration            float64         `json:"duration"`
	Segments            []SegmentResult `json:"segments,omitempty"`
}

// MarshalJSON omits segments only when they were not requested. A non-nil
// empty Segments encodes as [].
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	if r.Segments == nil {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		Segments []SegmentResult `json:"segments"`
	}{plain(r), r.Segments})
}

type ServiceOptions struct {
	Recognizer Recognizer
	// Backend names the recognizer mode for diagnostics.
	Backend   string
	Guesser   *Guesser
	VADFilter bool
	Events    Publisher
}

type Service struct {
	recognizer Recognizer
	backend    string
	guesser    *Guesser
	vad        bool
	events     Publisher
	logger     *slog.Logger
	tracer     trace.Tracer
	calls      metric.Int64Counter
	duration   metric.Float64Histogram
}

func NewService(opts ServiceOptions, logger *slog.Logger) *Service {
	logger = logger.With(slog.String("component", "stt-service"))
	meter := otel.Meter(instrumentationName)
	calls, err := meter.Int64Counter("loqa_stt_transcriptions_total",
		metric.WithDescription("Transcriptions by outcome."))
	if err != nil {
		logger.Warn("transcription counter unavailable", slogError(err))
		calls, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("loqa_stt_transcriptions_total")
	}
	duration, err := meter.Float64Histogram("loqa_stt_transcription_duration_seconds",
		metric.WithDescription("Wall time of recognizer calls."), metric.WithUnit("s"))
	if err != nil {
		logger.Warn("transcription histogram unavailable", slogError(err))
		duration, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("loqa_stt_transcription_duration_seconds")
	}
	return &Service{
		recognizer: opts.Recognizer,
		backend:    opts.Backend,
		guesser:    opts.Guesser,
		vad:        opts.VADFilter,
		events:     opts.Events,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		calls:      calls,
		duration:   duration,
	}
}

func (s *Service) BackendMode() string { return s.backend }

// SegmentLangID reports whether per-segment guesses can be produced.
func (s *Service) SegmentLangID() bool { return s.guesser != nil }

func (s *Service) Transcribe(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, "stt.transcribe", trace.WithAttributes(
		attribute.String("request.id", req.ID),
		attribute.Int("stt.audio_bytes", len(req.Audio.Data)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.notifyFailure(req.ID, err)
		} else {
			s.notifyCompleted(req.ID, res)
		}
		span.End()
	}()

	if len(req.Audio.Data) == 0 {
		return Result{}, fault.Input(opTranscribe, "audio file is required")
	}

	start := time.Now()
	transcript, err := s.recognizer.Transcribe(ctx, req.Audio, Options{
		LangHint:  normalizeHint(req.LangHint),
		VADFilter: s.vad,
	})
	s.record(ctx, time.Since(start), err)
	if err != nil {
		s.logger.Error("transcription failed", slog.String("request_id", req.ID), slogError(err))
		return Result{}, fault.Invocation(opTranscribe, err)
	}

	res = Result{
		DetectedLang:        transcript.Language,
		LanguageProbability: transcript.LanguageProbability,
		Duration:            transcript.Duration,
	}
	texts := make([]string, 0, len(transcript.Segments))
	segments := make([]SegmentResult, 0, len(transcript.Segments))
	for _, seg := range transcript.Segments {
		text := strings.TrimSpace(seg.Text)
		texts = append(texts, text)
		guess := []LangGuess{}
		if req.SegmentLangID && text != "" {
			guess = s.guesser.Guess(text)
		}
		segments = append(segments, SegmentResult{Start: seg.Start, End: seg.End, Text: text, LangGuess: guess})
	}
	if len(transcript.Segments) > 0 {
		res.Text = strings.TrimSpace(strings.Join(texts, " "))
	} else {
		res.Text = strings.TrimSpace(transcript.Text)
	}
	if req.ReturnSegments {
		res.Segments = segments
	}
	span.SetAttributes(
		attribute.String("stt.detected_lang", res.DetectedLang),
		attribute.Int("stt.segments", len(segments)),
	)
	return res, nil
}

// normalizeHint maps "" and "auto" to automatic detection.
func normalizeHint(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "auto" {
		return ""
	}
	return hint
}

func (s *Service) record(ctx context.Context, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("backend", s.backend), attribute.String("outcome", outcome))
	s.calls.Add(ctx, 1, attrs)
	s.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (s *Service) notifyCompleted(id string, res Result) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(protocol.SubjectSTTCompleted, protocol.TranscriptionCompleted{
		RequestID:           id,
		Text:                res.Text,
		DetectedLang:        res.DetectedLang,
		LanguageProbability: res.LanguageProbability,
		DurationSec:         res.Duration,
		Segments:            len(res.Segments),
		Timestamp:           time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to publish stt completion", slogError(err))
	}
}

func (s *Service) notifyFailure(id string, cause error) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(protocol.SubjectSTTFailed, protocol.RequestFailed{
		RequestID: id,
		Service:   "stt",
		Kind:      fault.KindOf(cause).String(),
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to publish stt failure", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
