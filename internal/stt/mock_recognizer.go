package stt

import (
	"context"
	"strings"

	"github.com/loqalabs/loqa-speech/internal/audio"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer with a fixed two-sentence
// transcript, one Spanish and one English, so the model language and the
// per-segment guesses can be told apart.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, in Audio, opts Options) (Transcript, error) {
	duration := 4.0
	if audio.IsWAV(in.Data) {
		if w, err := audio.DecodeWAVBytes(in.Data); err == nil {
			duration = w.Duration().Seconds()
		}
	}
	half := duration / 2
	segments := []Segment{
		{Start: 0, End: half, Text: " Hola, ¿cómo estás? Hoy quiero hablar contigo. "},
		{Start: half, End: duration, Text: " I am fine, thank you very much for asking."},
	}
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = strings.TrimSpace(seg.Text)
	}

	lang, prob := "es", 0.91
	if opts.LangHint != "" {
		lang, prob = opts.LangHint, 1
	}
	return Transcript{
		Text:                strings.Join(texts, " "),
		Language:            lang,
		LanguageProbability: prob,
		Duration:            duration,
		Segments:            segments,
	}, nil
}
