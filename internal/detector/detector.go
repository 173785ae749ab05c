// Package detector identifies the language of a passage with lingua-go.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector for the given languages, or for every language
// lingua knows when none are given. Building is expensive; reuse the result.
func New(languages ...lingua.Language) *Detector {
	builder := lingua.NewLanguageDetectorBuilder()
	var b lingua.LanguageDetectorBuilder
	if len(languages) >= 2 {
		b = builder.FromLanguages(languages...)
	} else {
		b = builder.FromAllLanguages()
	}
	return &Detector{detector: b.Build()}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// Matches reports whether text is written in want, given either as an
// ISO 639-1 code ("de") or an English language name ("German"). ok is false
// when the language of text cannot be determined.
func (d *Detector) Matches(text, want string) (match bool, detected string, ok bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return false, "", false
	}
	want = strings.TrimSpace(want)
	match = strings.EqualFold(lang.IsoCode639_1().String(), want) || strings.EqualFold(lang.String(), want)
	return match, lang.String(), true
}

// Same reports whether a and b are detected as the same language. ok is
// false when either language cannot be determined.
func (d *Detector) Same(a, b string) (same bool, langA, langB string, ok bool) {
	la, okA := d.Detect(a)
	lb, okB := d.Detect(b)
	if !okA || !okB {
		return false, "", "", false
	}
	return la == lb, la.String(), lb.String(), true
}
