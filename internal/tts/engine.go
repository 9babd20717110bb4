package tts

import (
	"fmt"

	"github.com/loqalabs/loqa-speech/internal/language"
)

// Engine describes a supported model family.
type Engine struct {
	Name        string
	DisplayName string
	Languages   language.Profile
	// ReferenceSampleRate is the rate cloning references are resampled to.
	ReferenceSampleRate int
	// SampleRate is assumed when the model does not report one.
	SampleRate int
	// ZeroShot engines need transcript text aligned with the reference.
	ZeroShot bool
	// SpeedWithReference is false when the model ignores speed in clone mode.
	SpeedWithReference bool
}

var (
	XTTS = Engine{
		Name:                "xtts",
		DisplayName:         "XTTS-v2",
		Languages:           language.General,
		ReferenceSampleRate: 22050,
		SampleRate:          24000,
		SpeedWithReference:  true,
	}
	CosyVoice = Engine{
		Name:                "cosyvoice",
		DisplayName:         "CosyVoice2",
		Languages:           language.TokenConstrained,
		ReferenceSampleRate: 16000,
		SampleRate:          24000,
		ZeroShot:            true,
	}
)

func EngineByName(name string) (Engine, error) {
	switch name {
	case XTTS.Name:
		return XTTS, nil
	case CosyVoice.Name:
		return CosyVoice, nil
	default:
		return Engine{}, fmt.Errorf("unknown tts engine %q", name)
	}
}

// appliesSpeed reports whether the engine honours speed in mode.
func (e Engine) appliesSpeed(mode Mode) bool {
	return mode != ModeCloned || e.SpeedWithReference
}
