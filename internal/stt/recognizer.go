package stt

import "context"

// Audio is an uploaded recording in whatever container the client sent.
type Audio struct {
	Data     []byte
	Filename string
}

// Options tune a single recognition call.
type Options struct {
	// LangHint forces the decoding language. Empty lets the model detect it.
	LangHint  string
	VADFilter bool
}

// Segment is one timed span of recognized speech. Times are seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the raw recognizer output. Language and LanguageProbability
// are the model's own detection for the whole recording.
type Transcript struct {
	Text                string    `json:"text"`
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
	Duration            float64   `json:"duration"`
	Segments            []Segment `json:"segments"`
}

type Recognizer interface {
	Transcribe(ctx context.Context, in Audio, opts Options) (Transcript, error)
}
