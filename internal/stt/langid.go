package stt

import (
	"fmt"
	"strings"

	"github.com/pemistahl/lingua-go"
)

const maxGuesses = 3

// LangGuess is one candidate language for a piece of text.
type LangGuess struct {
	Lang string  `json:"lang"`
	Prob float64 `json:"prob"`
}

// Guesser ranks candidate languages for short text spans. It only knows the
// languages it was built with.
type Guesser struct {
	detector lingua.LanguageDetector
}

// NewGuesser builds a detector restricted to the given ISO 639-1 codes.
// At least two distinct languages are needed to rank anything.
func NewGuesser(codes []string) (*Guesser, error) {
	seen := make(map[lingua.Language]bool)
	var langs []lingua.Language
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		lang := lingua.GetLanguageFromIsoCode639_1(lingua.GetIsoCode639_1FromValue(code))
		if lang == lingua.Unknown {
			return nil, fmt.Errorf("unknown segment language %q", code)
		}
		if !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}
	if len(langs) < 2 {
		return nil, fmt.Errorf("segment language id needs at least two languages, got %d", len(langs))
	}
	return &Guesser{detector: lingua.NewLanguageDetectorBuilder().FromLanguages(langs...).Build()}, nil
}

// Guess returns up to three candidates, most likely first. Blank text and a
// nil Guesser yield an empty, non-nil list.
func (g *Guesser) Guess(text string) []LangGuess {
	out := make([]LangGuess, 0, maxGuesses)
	if g == nil || strings.TrimSpace(text) == "" {
		return out
	}
	for _, cv := range g.detector.ComputeLanguageConfidenceValues(text) {
		if len(out) == maxGuesses {
			break
		}
		if cv.Value() <= 0 {
			continue
		}
		out = append(out, LangGuess{
			Lang: strings.ToLower(cv.Language().IsoCode639_1().String()),
			Prob: cv.Value(),
		})
	}
	return out
}
