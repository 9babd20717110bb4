// Package language maps free-form language tags onto the small canonical
// set an acoustic model was trained with.
package language

import (
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// Profile is the canonical language set of one engine.
type Profile struct {
	// Canonical lists the tokens the engine accepts, in display order.
	Canonical []string
	// Default is used when the request carries no tag at all.
	Default string
	// Fallback is used for tags outside Canonical.
	Fallback string
	// Aliases maps case-folded tags or base languages to canonical tokens.
	Aliases map[string]string
}

// General is the profile of the cloning-capable multilingual engine.
var General = Profile{
	Canonical: []string{"es", "en", "pt", "fr", "it", "zh"},
	Default:   "es",
	Fallback:  "en",
}

// TokenConstrained is the profile of the zero-shot engine whose text
// frontend only knows a handful of language tokens.
var TokenConstrained = Profile{
	Canonical: []string{"zh", "en", "jp", "ko", "yue"},
	Default:   "en",
	Fallback:  "en",
	Aliases: map[string]string{
		"ja":        "jp",
		"jp":        "jp",
		"jpn":       "jp",
		"cantonese": "yue",
	},
}

// Result describes how a tag was normalized.
type Result struct {
	Lang string
	// FellBack is set when the tag was outside the canonical set and the
	// fallback language was substituted.
	FellBack bool
}

// Normalize returns the canonical token for raw. It never fails: unknown
// tags map to the profile fallback.
func (p Profile) Normalize(raw string) Result {
	tag := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
	if tag == "" {
		return Result{Lang: p.Default}
	}
	if strings.HasPrefix(tag, "zh") && p.Supports("zh") {
		return Result{Lang: "zh"}
	}
	if lang, ok := p.lookup(tag); ok {
		return Result{Lang: lang}
	}

	base := tag
	if parsed, err := language.Parse(tag); err == nil {
		if b, conf := parsed.Base(); conf != language.No {
			base = b.String()
		}
	} else if i := strings.IndexByte(tag, '-'); i > 0 {
		base = tag[:i]
	}
	if lang, ok := p.lookup(base); ok {
		return Result{Lang: lang}
	}
	return Result{Lang: p.Fallback, FellBack: true}
}

// Supports reports whether lang is one of the canonical tokens.
func (p Profile) Supports(lang string) bool {
	return slices.Contains(p.Canonical, lang)
}

func (p Profile) lookup(tag string) (string, bool) {
	if alias, ok := p.Aliases[tag]; ok {
		return alias, true
	}
	if p.Supports(tag) {
		return tag, true
	}
	return "", false
}
