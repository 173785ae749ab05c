package structurer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Matcher decides whether a line is a chapter heading and returns its title.
type Matcher interface {
	Match(line string) (title string, ok bool)
}

// StandaloneMatcher is implemented by matchers that only apply to a
// paragraph made of a single line.
type StandaloneMatcher interface {
	Matcher
	Standalone() bool
}

// MatcherFunc adapts a plain function to Matcher.
type MatcherFunc func(line string) (string, bool)

func (f MatcherFunc) Match(line string) (string, bool) { return f(line) }

var chapterPart = regexp.MustCompile(`(?i)^(chapter|part)\s+(\d+|[ivxlcdm]+)\b`)

// ChapterPartMatcher recognizes "Chapter 3", "PART IV", "chapter 12: The Road".
type ChapterPartMatcher struct{}

func (ChapterPartMatcher) Match(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !chapterPart.MatchString(line) {
		return "", false
	}
	return line, true
}

// AllCapsMatcher recognizes a short standalone line whose letters are all
// upper case, such as "THE RETURN". The first line of a longer paragraph
// ("NASA ENGINEERS\nlaunched...") is not a heading.
type AllCapsMatcher struct {
	MaxLen int
}

func (AllCapsMatcher) Standalone() bool { return true }

func (m AllCapsMatcher) Match(line string) (string, bool) {
	line = strings.TrimSpace(line)
	maxLen := m.MaxLen
	if maxLen <= 0 {
		maxLen = 60
	}
	if line == "" || utf8.RuneCountInString(line) > maxLen {
		return "", false
	}

	letters := 0
	for _, r := range line {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return "", false
		}
		letters++
	}
	// A lone capital ("I", "A") is too weak a signal.
	if letters < 2 {
		return "", false
	}
	return line, true
}

// DefaultMatchers returns the matchers used when none are configured, in
// priority order.
func DefaultMatchers() []Matcher {
	return []Matcher{ChapterPartMatcher{}, AllCapsMatcher{MaxLen: 60}}
}
