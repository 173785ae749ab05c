// Package chunker splits a document into ordered, token-bounded chunks while
// preserving paragraph and sentence integrity. It also extracts a
// sliding-window context snippet (last N words) so the correction model can
// keep continuity across chunk boundaries.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/valpere/scanbook/internal/document"
)

const (
	// DefaultMaxTokens is the default token budget per chunk.
	DefaultMaxTokens = 2500

	// DefaultContextWords is the default number of words extracted by
	// ExtractContext for use as a sliding-window context.
	DefaultContextWords = 25
)

// Chunk is a contiguous slice of a document sent as one correction unit.
type Chunk struct {
	Index int
	Text  string
	// Start and End delimit the covered paragraphs: [Start, End).
	Start int
	End   int

	EstimatedTokens int

	// Glue is the source text that separated this chunk from the previous
	// one: "" for the first chunk, document.Separator at paragraph
	// boundaries and the original whitespace between pieces of a split
	// paragraph.
	Glue string

	// Oversized marks pieces produced by a hard split.
	Oversized bool
}

// WarningKind classifies a non-fatal chunking event.
type WarningKind string

const OversizedUnit WarningKind = "oversized_unit"

// Warning records a unit that could not be split at a natural boundary and
// was hard-cut at the token limit.
type Warning struct {
	Kind       WarningKind
	ChunkIndex int
	Paragraph  int
	Tokens     int
	Limit      int
}

func (w Warning) Error() string {
	return fmt.Sprintf("chunk %d: paragraph %d has a sentence of ~%d tokens over the %d limit; hard split applied",
		w.ChunkIndex, w.Paragraph, w.Tokens, w.Limit)
}

// sentenceEnd matches sentence-ending punctuation, optional closing quotes or
// brackets, and the whitespace that follows. The caller checks that the next
// rune is an uppercase letter.
var sentenceEnd = regexp.MustCompile(`[.!?]+["'\x{201D}\x{2019}\x{00BB})\]]*(\s+)`)

// Split cuts doc into chunks of at most maxTokens estimated tokens.
// Splits are attempted (in order of preference) at:
//  1. Paragraph boundaries; paragraphs are packed greedily.
//  2. Sentence boundaries, for a paragraph that alone exceeds maxTokens.
//  3. The token limit itself, for a sentence that alone exceeds maxTokens.
//     The cut backs off to the last whitespace when there is one and a
//     Warning is recorded.
//
// If maxTokens ≤ 0 it is treated as unlimited and a single chunk is returned.
// Indices are dense from 0 and no chunk is empty.
func Split(doc document.Document, maxTokens int, est Estimator) ([]Chunk, []Warning) {
	if est == nil {
		est = ScaledWordEstimator{}
	}
	s := &splitter{maxTokens: maxTokens, est: est}

	for i, p := range doc.Paragraphs {
		if maxTokens <= 0 {
			s.buffer(i, p, 0)
			continue
		}

		tokens := est.Estimate(p)
		switch {
		case tokens > maxTokens:
			s.flush()
			s.splitParagraph(i, p)
		case len(s.buf) > 0 && s.bufTokens+tokens > maxTokens:
			s.flush()
			s.buffer(i, p, tokens)
		default:
			s.buffer(i, p, tokens)
		}
	}
	s.flush()

	return s.chunks, s.warnings
}

// Join concatenates chunks in slice order using each chunk's Glue. For the
// output of Split it reproduces the document text exactly.
func Join(chunks []Chunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString(c.Glue)
		}
		sb.WriteString(c.Text)
	}
	return sb.String()
}

type splitter struct {
	maxTokens int
	est       Estimator

	chunks   []Chunk
	warnings []Warning

	buf       []string
	bufStart  int
	bufTokens int
}

func (s *splitter) buffer(idx int, p string, tokens int) {
	if len(s.buf) == 0 {
		s.bufStart = idx
	}
	s.buf = append(s.buf, p)
	s.bufTokens += tokens
}

func (s *splitter) flush() {
	if len(s.buf) == 0 {
		return
	}
	s.emit(strings.Join(s.buf, document.Separator), s.bufStart, s.bufStart+len(s.buf), document.Separator, false)
	s.buf = nil
	s.bufTokens = 0
}

func (s *splitter) emit(text string, start, end int, glue string, oversized bool) {
	if text == "" {
		return
	}
	if len(s.chunks) == 0 {
		glue = ""
	}
	s.chunks = append(s.chunks, Chunk{
		Index:           len(s.chunks),
		Text:            text,
		Start:           start,
		End:             end,
		EstimatedTokens: s.est.Estimate(text),
		Glue:            glue,
		Oversized:       oversized,
	})
}

// segment is a piece of a paragraph together with the whitespace that
// preceded it in the source.
type segment struct {
	glue string
	text string
}

func (s *splitter) splitParagraph(idx int, p string) {
	var cur strings.Builder
	curGlue := document.Separator
	curTokens := 0

	flushPiece := func() {
		if cur.Len() == 0 {
			return
		}
		s.emit(cur.String(), idx, idx+1, curGlue, false)
		cur.Reset()
		curTokens = 0
	}

	for i, seg := range splitSentences(p) {
		glue := seg.glue
		if i == 0 {
			glue = document.Separator
		}

		tokens := s.est.Estimate(seg.text)
		if tokens > s.maxTokens {
			flushPiece()
			s.hardSplit(idx, seg.text, glue, tokens)
			continue
		}

		if cur.Len() > 0 && curTokens+tokens > s.maxTokens {
			flushPiece()
		}
		if cur.Len() == 0 {
			curGlue = glue
		} else {
			cur.WriteString(glue)
		}
		cur.WriteString(seg.text)
		curTokens += tokens
	}
	flushPiece()
}

// hardSplit cuts text into pieces of at most maxTokens estimated tokens.
func (s *splitter) hardSplit(idx int, text, glue string, tokens int) {
	s.warnings = append(s.warnings, Warning{
		Kind:       OversizedUnit,
		ChunkIndex: len(s.chunks),
		Paragraph:  idx,
		Tokens:     tokens,
		Limit:      s.maxTokens,
	})

	rest := []rune(text)
	for len(rest) > 0 {
		n := s.longestPrefix(rest)
		if n >= len(rest) {
			s.emit(string(rest), idx, idx+1, glue, true)
			return
		}

		cut, next := n, n
		if ws := lastSpaceRun(rest[:n]); ws > 0 {
			cut = ws
			next = ws
			for next < len(rest) && unicode.IsSpace(rest[next]) {
				next++
			}
		}

		s.emit(string(rest[:cut]), idx, idx+1, glue, true)
		glue = string(rest[cut:next])
		rest = rest[next:]
	}
}

// longestPrefix returns the largest rune count n ≥ 1 such that runes[:n]
// fits the token limit.
func (s *splitter) longestPrefix(runes []rune) int {
	lo, hi := 1, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.est.Estimate(string(runes[:mid])) <= s.maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// lastSpaceRun returns the index where the last whitespace run in runes
// starts, or -1 if there is none.
func lastSpaceRun(runes []rune) int {
	i := len(runes) - 1
	for i >= 0 && !unicode.IsSpace(runes[i]) {
		i--
	}
	if i < 0 {
		return -1
	}
	for i > 0 && unicode.IsSpace(runes[i-1]) {
		i--
	}
	return i
}

// splitSentences splits a paragraph after sentence-ending punctuation that is
// followed by whitespace and an uppercase letter. Glue of the first segment is
// empty.
func splitSentences(p string) []segment {
	var segs []segment
	last := 0
	glue := ""

	for _, m := range sentenceEnd.FindAllStringSubmatchIndex(p, -1) {
		wsStart, wsEnd := m[2], m[3]
		if wsEnd < len(p) {
			next, _ := utf8.DecodeRuneInString(p[wsEnd:])
			if !unicode.IsUpper(next) {
				continue
			}
		}
		if wsStart > last {
			segs = append(segs, segment{glue: glue, text: p[last:wsStart]})
			glue = p[wsStart:wsEnd]
			last = wsEnd
		}
	}
	if last < len(p) {
		segs = append(segs, segment{glue: glue, text: p[last:]})
	}
	return segs
}

// ExtractContext returns the last wordCount words of text, joined by a single
// space. It is passed to the correction model as preceding context so it can
// keep continuity across chunks.
// If text has fewer words than wordCount, the entire text is returned.
// If wordCount ≤ 0, DefaultContextWords is used.
func ExtractContext(text string, wordCount int) string {
	if wordCount <= 0 {
		wordCount = DefaultContextWords
	}
	words := strings.Fields(text)
	if len(words) <= wordCount {
		return strings.Join(words, " ")
	}
	return strings.Join(words[len(words)-wordCount:], " ")
}
