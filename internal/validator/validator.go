// Package validator checks a corrected chunk against its source.
//
// An empty correction is an error. Everything else is advisory: a change in
// paragraph count beyond the configured ratio, or a change of language, is
// reported as a warning and the correction is kept.
package validator

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/valpere/scanbook/internal/detector"
	"github.com/valpere/scanbook/internal/document"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// DefaultDivergenceRatio is the relative paragraph-count change tolerated
// before a warning is raised.
const DefaultDivergenceRatio = 0.5

// Validator checks corrections. The language detector is built on first use
// and shared; a Validator is safe for concurrent use.
type Validator struct {
	divergenceRatio float64
	checkLanguage   bool

	once sync.Once
	det  *detector.Detector
}

type Option func(*Validator)

// WithDetector supplies a prebuilt detector.
func WithDetector(d *detector.Detector) Option {
	return func(v *Validator) { v.det = d }
}

// WithoutLanguageCheck disables language drift detection.
func WithoutLanguageCheck() Option {
	return func(v *Validator) { v.checkLanguage = false }
}

// New creates a Validator. ratio ≤ 0 selects DefaultDivergenceRatio.
func New(ratio float64, opts ...Option) *Validator {
	if ratio <= 0 {
		ratio = DefaultDivergenceRatio
	}
	v := &Validator{divergenceRatio: ratio, checkLanguage: true}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) detector() *detector.Detector {
	v.once.Do(func() {
		if v.det == nil {
			v.det = detector.New()
		}
	})
	return v.det
}

// Check validates corrected against source. language, when set, is the
// expected language of the book (ISO 639-1 code or English name); otherwise
// the corrected text must stay in the language of the source.
func (v *Validator) Check(source, corrected, language string) ([]string, error) {
	text := strings.TrimSpace(corrected)
	if text == "" {
		return nil, fmt.Errorf("correction is empty")
	}

	var warnings []string
	if w := v.paragraphDivergence(source, text); w != "" {
		warnings = append(warnings, w)
	}
	if v.checkLanguage {
		if w := v.languageDrift(source, text, language); w != "" {
			warnings = append(warnings, w)
		}
	}
	return warnings, nil
}

func (v *Validator) paragraphDivergence(source, corrected string) string {
	in := document.CountParagraphs(source)
	out := document.CountParagraphs(corrected)
	if in == 0 || in == out {
		return ""
	}
	ratio := math.Abs(float64(out-in)) / float64(in)
	if ratio <= v.divergenceRatio {
		return ""
	}
	return fmt.Sprintf("paragraph count changed from %d to %d (%.0f%% divergence)", in, out, ratio*100)
}

func (v *Validator) languageDrift(source, corrected, language string) string {
	// Detector is unreliable for very short texts; skip validation.
	if len([]rune(corrected)) < minValidationLength {
		return ""
	}

	if language != "" {
		match, detected, ok := v.detector().Matches(corrected, language)
		if !ok || match {
			return ""
		}
		return fmt.Sprintf("expected %s but detected %s", language, detected)
	}

	if len([]rune(strings.TrimSpace(source))) < minValidationLength {
		return ""
	}
	same, from, to, ok := v.detector().Same(source, corrected)
	if !ok || same {
		return ""
	}
	return fmt.Sprintf("language changed from %s to %s", from, to)
}
