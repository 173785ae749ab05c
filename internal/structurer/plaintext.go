package structurer

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/valpere/scanbook/internal/document"
)

// PlainText strips the markup from a chapter body. Paragraphs are separated
// by a blank line and <br/> becomes a newline.
func PlainText(bodyHTML string) string {
	z := html.NewTokenizer(strings.NewReader(bodyHTML))

	var paragraphs []string
	var cur strings.Builder
	flush := func() {
		if p := strings.TrimSpace(cur.String()); p != "" {
			paragraphs = append(paragraphs, p)
		}
		cur.Reset()
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			flush()
			return strings.Join(paragraphs, document.Separator)
		case html.TextToken:
			cur.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br":
				cur.WriteByte('\n')
			case "p":
				flush()
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "p" {
				flush()
			}
		}
	}
}
