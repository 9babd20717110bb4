package tts

import "context"

// Mode is the inference path a synthesis call takes.
type Mode int

const (
	// ModeUnsupported means no voice is available; it is never invoked.
	ModeUnsupported Mode = iota
	// ModeCloned conditions the model on reference audio.
	ModeCloned
	// ModeNamedSpeaker selects a speaker from the model's registry.
	ModeNamedSpeaker
)

func (m Mode) String() string {
	switch m {
	case ModeCloned:
		return "clone"
	case ModeNamedSpeaker:
		return "speaker"
	default:
		return "unsupported"
	}
}

// Invocation is one call into a backend.
type Invocation struct {
	ID                  string
	Mode                Mode
	Text                string
	Language            string
	Speaker             string
	ReferencePath       string
	ReferenceSampleRate int
	PromptText          string
	Speed               float64
}

// Chunk contains mono float PCM.
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Capabilities is what a backend reports about its loaded model.
type Capabilities struct {
	Speakers   []string
	SampleRate int
}

// Backend hosts an acoustic model.
type Backend interface {
	// Describe probes the loaded model.
	Describe(ctx context.Context) (Capabilities, error)
	// Synthesize streams chunks in order. The chunk channel is closed when
	// the call ends; at most one error is sent before the error channel
	// closes.
	Synthesize(ctx context.Context, inv Invocation) (<-chan Chunk, <-chan error)
	Close() error
}
