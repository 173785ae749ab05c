// Package document models book text as an ordered sequence of paragraphs.
package document

import (
	"regexp"
	"strings"
)

// Separator joins paragraphs in every text this module produces.
const Separator = "\n\n"

// blankLines matches one or more whitespace-only lines between paragraphs.
var blankLines = regexp.MustCompile(`\n[ \t\f\v]*(?:\n[ \t\f\v]*)+`)

// Document is an ordered sequence of non-empty paragraphs. A paragraph never
// contains a blank line but may contain single line breaks.
type Document struct {
	Paragraphs []string
}

// Parse splits text on blank lines. Line endings are normalised to \n, every
// paragraph is trimmed and empty paragraphs are dropped.
func Parse(text string) Document {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	parts := blankLines.Split(text, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return Document{Paragraphs: paragraphs}
}

// Text joins the paragraphs with Separator.
func (d Document) Text() string {
	return strings.Join(d.Paragraphs, Separator)
}

// Len returns the number of paragraphs.
func (d Document) Len() int {
	return len(d.Paragraphs)
}

// IsEmpty reports whether the document has no paragraphs.
func (d Document) IsEmpty() bool {
	return len(d.Paragraphs) == 0
}

// CountParagraphs returns the number of paragraphs Parse would find in text.
func CountParagraphs(text string) int {
	return Parse(text).Len()
}
