package protocol

import "time"

// SynthesisCompleted is broadcast after a /speak request produced audio.
type SynthesisCompleted struct {
	RequestID    string    `json:"request_id"`
	Engine       string    `json:"engine"`
	Language     string    `json:"language"`
	Voice        string    `json:"voice"`
	SampleRate   int       `json:"sample_rate"`
	DurationMS   int64     `json:"duration_ms"`
	SpeedApplied bool      `json:"speed_applied"`
	Timestamp    time.Time `json:"timestamp"`
}

// RequestFailed is broadcast when a speech request did not complete.
type RequestFailed struct {
	RequestID string    `json:"request_id"`
	Service   string    `json:"service"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptionCompleted is broadcast after a /transcribe request.
type TranscriptionCompleted struct {
	RequestID           string    `json:"request_id"`
	Text                string    `json:"text"`
	DetectedLang        string    `json:"detected_lang"`
	LanguageProbability float64   `json:"language_probability"`
	DurationSec         float64   `json:"duration"`
	Segments            int       `json:"segments"`
	Timestamp           time.Time `json:"timestamp"`
}

const (
	SubjectTTSCompleted = "speech.tts.completed"
	SubjectTTSFailed    = "speech.tts.failed"
	SubjectSTTCompleted = "speech.stt.completed"
	SubjectSTTFailed    = "speech.stt.failed"
)
