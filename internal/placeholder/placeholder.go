// Package placeholder hides spans the proof-reader must not touch (web
// addresses, e-mail addresses and markup left over from OCR export) behind
// numbered markers such as [PH0], and puts them back afterwards.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Alternatives are tried left to right at each position, so a URL that
	// contains an @ is captured whole.
	reProtected = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"]+|\bwww\.[^\s<>"]+|[\w.+-]+@[\w-]+(?:\.[\w-]+)+|</?[a-z][^<>\n]*>`)

	rePlaceholder = regexp.MustCompile(`\[PH(\d+)\]`)
)

// trailingPunct is sentence punctuation that ends a URL match but belongs
// to the surrounding text.
const trailingPunct = `.,;:!?)]'"`

// Protect replaces protected spans with [PH0], [PH1], … in order of
// appearance and returns the originals for Restore.
func Protect(text string) (string, []string) {
	var markers []string
	out := reProtected.ReplaceAllStringFunc(text, func(match string) string {
		span, tail := match, ""
		if !strings.HasPrefix(match, "<") {
			trimmed := strings.TrimRight(match, trailingPunct)
			span, tail = trimmed, match[len(trimmed):]
		}
		if span == "" {
			return match
		}
		id := fmt.Sprintf("[PH%d]", len(markers))
		markers = append(markers, span)
		return id + tail
	})
	return out, markers
}

// Has reports whether text carries placeholders.
func Has(text string) bool {
	return rePlaceholder.MatchString(text)
}

// Restore puts the originals back and returns the indices of markers that
// no longer occur in text. Unknown indices are left as they are.
func Restore(text string, markers []string) (string, []int) {
	missing := Validate(text, markers)
	restored := rePlaceholder.ReplaceAllStringFunc(text, func(match string) string {
		idx, err := strconv.Atoi(rePlaceholder.FindStringSubmatch(match)[1])
		if err != nil || idx >= len(markers) {
			return match
		}
		return markers[idx]
	})
	return restored, missing
}

// Validate returns the indices of markers missing from text.
func Validate(text string, markers []string) []int {
	var missing []int
	for i := range markers {
		if !strings.Contains(text, fmt.Sprintf("[PH%d]", i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

// InstructionHint is appended to the prompt when the text carries markers.
func InstructionHint() string {
	return "Keep every [PHn] marker exactly where it is; never change, move or remove one."
}
