// Package epub writes structured chapters to an EPUB file.
package epub

import (
	"errors"
	"fmt"
	"slices"

	goepub "github.com/go-shiori/go-epub"
	"golang.org/x/net/html"

	"github.com/valpere/scanbook/internal/structurer"
)

var ErrNoChapters = errors.New("no chapters to write")

type Metadata struct {
	Title      string
	Author     string
	Identifier string
	Language   string
}

// Write creates an EPUB at path with one section per chapter, in chapter
// order. Each section is the escaped chapter title as <h1> followed by the
// chapter body.
func Write(path string, chapters []structurer.Chapter, meta Metadata) error {
	if len(chapters) == 0 {
		return ErrNoChapters
	}

	title := meta.Title
	if title == "" {
		title = chapters[0].Title
	}

	book, err := goepub.NewEpub(title)
	if err != nil {
		return fmt.Errorf("failed to create epub: %w", err)
	}
	if meta.Author != "" {
		book.SetAuthor(meta.Author)
	}
	if meta.Identifier != "" {
		book.SetIdentifier(meta.Identifier)
	}
	lang := meta.Language
	if lang == "" {
		lang = "en"
	}
	book.SetLang(lang)

	ordered := slices.Clone(chapters)
	slices.SortStableFunc(ordered, func(a, b structurer.Chapter) int { return a.Order - b.Order })

	for i, ch := range ordered {
		body := "<h1>" + html.EscapeString(ch.Title) + "</h1>\n" + ch.BodyHTML
		filename := fmt.Sprintf("chap_%03d.xhtml", i+1)
		if _, err := book.AddSection(body, ch.Title, filename, ""); err != nil {
			return fmt.Errorf("failed to add chapter %q: %w", ch.Title, err)
		}
	}

	if err := book.Write(path); err != nil {
		return fmt.Errorf("failed to write epub %s: %w", path, err)
	}
	return nil
}
