// Package textprep rewrites input text into the form an acoustic model reads
// most naturally. Each canonical language owns its own transformation.
package textprep

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Func transforms text for one language. Implementations must be pure.
type Func func(string) string

// Pipeline maps canonical language tokens to their transformation.
// Register must not be called after the pipeline is shared between
// goroutines.
type Pipeline struct {
	funcs    map[string]Func
	fallback Func
}

// New returns an empty pipeline that only trims text.
func New() *Pipeline {
	return &Pipeline{funcs: make(map[string]Func), fallback: strings.TrimSpace}
}

// Default returns the pipeline used by the synthesis service.
func Default() *Pipeline {
	p := New()
	p.Register("es", Spanish)
	for _, lang := range []string{"en", "pt", "fr", "it"} {
		p.Register(lang, Whitespace)
	}
	for _, lang := range []string{"zh", "jp", "ko", "yue"} {
		p.Register(lang, strings.TrimSpace)
	}
	return p
}

func (p *Pipeline) Register(lang string, fn Func) {
	p.funcs[lang] = fn
}

// Preprocess applies the transformation registered for lang.
func (p *Pipeline) Preprocess(text, lang string) string {
	if fn, ok := p.funcs[lang]; ok {
		return fn(text)
	}
	return p.fallback(text)
}

// Whitespace composes text to NFC, collapses whitespace runs to one space
// and trims both ends.
func Whitespace(text string) string {
	return collapseSpace(norm.NFC.String(text))
}

func collapseSpace(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pending := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
