// Package structurer splits refined book text into chapters.
//
// The first line of every paragraph is offered to an ordered list of
// heading matchers. A matching line starts a new chapter; the rest of that
// paragraph and everything up to the next heading becomes its body.
package structurer

import (
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/valpere/scanbook/internal/document"
	"github.com/valpere/scanbook/internal/logger"
)

const (
	DefaultFrontMatterTitle = "Front Matter"
	untitled                = "Untitled"
)

// Chapter is one section of the book. BodyHTML holds escaped paragraphs.
type Chapter struct {
	Title    string
	BodyHTML string
	Order    int
}

type BlockKind int

const (
	BodyText BlockKind = iota
	Heading
)

func (k BlockKind) String() string {
	if k == Heading {
		return "heading"
	}
	return "body"
}

// Block is a classified paragraph, or the heading line of one.
type Block struct {
	Kind  BlockKind
	Title string
	Text  string
}

type Options struct {
	// Matchers are tried in order; the first match wins.
	Matchers         []Matcher
	FrontMatterTitle string
	Logger           *slog.Logger
}

type Structurer struct {
	matchers         []Matcher
	frontMatterTitle string
	logger           *slog.Logger
}

func New(opts Options) *Structurer {
	s := &Structurer{
		matchers:         opts.Matchers,
		frontMatterTitle: opts.FrontMatterTitle,
		logger:           opts.Logger,
	}
	if len(s.matchers) == 0 {
		s.matchers = DefaultMatchers()
	}
	if s.frontMatterTitle == "" {
		s.frontMatterTitle = DefaultFrontMatterTitle
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	return s
}

// Structure splits text with the default matchers.
func Structure(text, defaultTitle string) []Chapter {
	return New(Options{}).Structure(text, defaultTitle)
}

// Classify labels each paragraph. A heading paragraph yields a Heading block
// and, when it has more lines, a BodyText block with the remainder.
func (s *Structurer) Classify(paragraphs []string) []Block {
	blocks := make([]Block, 0, len(paragraphs))
	for _, p := range paragraphs {
		first, rest, multiline := strings.Cut(p, "\n")
		title, ok := s.match(first, !multiline)
		if !ok {
			blocks = append(blocks, Block{Kind: BodyText, Text: p})
			continue
		}
		blocks = append(blocks, Block{Kind: Heading, Title: title})
		if rest = strings.TrimSpace(rest); rest != "" {
			blocks = append(blocks, Block{Kind: BodyText, Text: rest})
		}
	}
	return blocks
}

func (s *Structurer) match(line string, standalone bool) (string, bool) {
	for _, m := range s.matchers {
		if sm, ok := m.(StandaloneMatcher); ok && sm.Standalone() && !standalone {
			continue
		}
		if title, ok := m.Match(line); ok {
			return title, true
		}
	}
	return "", false
}

// Structure folds text into chapters. Text before the first heading becomes
// a front matter chapter. Without any heading the whole text is a single
// chapter titled defaultTitle. Empty text yields no chapters.
func (s *Structurer) Structure(text, defaultTitle string) []Chapter {
	doc := document.Parse(text)
	if doc.IsEmpty() {
		return nil
	}

	blocks := s.Classify(doc.Paragraphs)

	var chapters []Chapter
	var title string
	var body []string
	open := false

	flush := func() {
		if !open {
			return
		}
		chapters = append(chapters, Chapter{
			Title:    title,
			BodyHTML: renderBody(body),
			Order:    len(chapters),
		})
		body = nil
	}

	for _, b := range blocks {
		switch b.Kind {
		case Heading:
			flush()
			title, open = b.Title, true
		case BodyText:
			if !open {
				title, open = s.frontMatterTitle, true
			}
			body = append(body, b.Text)
		}
	}
	flush()

	if !hasHeading(blocks) {
		if defaultTitle = strings.TrimSpace(defaultTitle); defaultTitle == "" {
			defaultTitle = untitled
		}
		s.logger.Info("no chapter headings found, using a single chapter", "title", defaultTitle)
		chapters[0].Title = defaultTitle
	}
	return chapters
}

func hasHeading(blocks []Block) bool {
	for _, b := range blocks {
		if b.Kind == Heading {
			return true
		}
	}
	return false
}

func renderBody(paragraphs []string) string {
	parts := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		escaped := html.EscapeString(p)
		parts = append(parts, "<p>"+strings.ReplaceAll(escaped, "\n", "<br/>")+"</p>")
	}
	return strings.Join(parts, "\n")
}
