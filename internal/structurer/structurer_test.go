package structurer

import (
	"strings"
	"testing"

	"github.com/valpere/scanbook/internal/document"
	"github.com/valpere/scanbook/internal/logger"
)

func quiet() *Structurer {
	return New(Options{Logger: logger.Discard()})
}

func TestChapterPartMatcher(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Chapter 1", true},
		{"CHAPTER 12: The Road", true},
		{"Part IV", true},
		{"part ii", true},
		{"  Chapter 3  ", true},
		{"Chapters 1 to 3", false},
		{"Chapter One", false},
		{"Partial results", false},
		{"Chapter Idle", false},
		{"In Chapter 2 we saw", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			title, ok := ChapterPartMatcher{}.Match(tt.line)
			if ok != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.line, ok, tt.want)
			}
			if ok && title != strings.TrimSpace(tt.line) {
				t.Errorf("unexpected title %q", title)
			}
		})
	}
}

func TestAllCapsMatcher(t *testing.T) {
	m := AllCapsMatcher{MaxLen: 20}
	tests := []struct {
		line string
		want bool
	}{
		{"THE RETURN", true},
		{"ПОВЕРНЕННЯ", true},
		{"EPILOGUE.", true},
		{"The Return", false},
		{"I", false},
		{"1984", false},
		{"A VERY LONG SHOUTED SENTENCE", false},
		{"", false},
	}
	for _, tt := range tests {
		if _, ok := m.Match(tt.line); ok != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.line, ok, tt.want)
		}
	}
}

func TestClassify_HeadingWithBody(t *testing.T) {
	blocks := quiet().Classify([]string{"Chapter 1\nHello world.", "Plain text."})

	want := []Block{
		{Kind: Heading, Title: "Chapter 1"},
		{Kind: BodyText, Text: "Hello world."},
		{Kind: BodyText, Text: "Plain text."},
	}
	if len(blocks) != len(want) {
		t.Fatalf("expected %d blocks, got %+v", len(want), blocks)
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Errorf("block %d = %+v, want %+v", i, blocks[i], want[i])
		}
	}
}

func TestClassify_AllCapsNeedsStandaloneLine(t *testing.T) {
	blocks := quiet().Classify([]string{
		"NASA ENGINEERS\nlaunched the rocket at dawn.",
		"THE RETURN",
		"PART II\nThe second half.",
	})

	want := []Block{
		{Kind: BodyText, Text: "NASA ENGINEERS\nlaunched the rocket at dawn."},
		{Kind: Heading, Title: "THE RETURN"},
		{Kind: Heading, Title: "PART II"},
		{Kind: BodyText, Text: "The second half."},
	}
	if len(blocks) != len(want) {
		t.Fatalf("expected %d blocks, got %+v", len(want), blocks)
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Errorf("block %d = %+v, want %+v", i, blocks[i], want[i])
		}
	}
}

func TestStructure_TwoChapters(t *testing.T) {
	chapters := quiet().Structure("Chapter 1\nHello world.\n\nChapter 2\nGoodbye.", "Book")

	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %+v", chapters)
	}
	if chapters[0].Title != "Chapter 1" || chapters[0].BodyHTML != "<p>Hello world.</p>" {
		t.Errorf("unexpected first chapter %+v", chapters[0])
	}
	if chapters[1].Title != "Chapter 2" || chapters[1].BodyHTML != "<p>Goodbye.</p>" {
		t.Errorf("unexpected second chapter %+v", chapters[1])
	}
	for i, c := range chapters {
		if c.Order != i {
			t.Errorf("chapter %d has order %d", i, c.Order)
		}
	}
}

func TestStructure_FrontMatter(t *testing.T) {
	text := "Copyright notice.\n\nCHAPTER I\n\nIt began.\n\nIt went on."
	chapters := quiet().Structure(text, "Book")

	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %+v", chapters)
	}
	if chapters[0].Title != DefaultFrontMatterTitle || chapters[0].BodyHTML != "<p>Copyright notice.</p>" {
		t.Errorf("unexpected front matter %+v", chapters[0])
	}
	if chapters[1].BodyHTML != "<p>It began.</p>\n<p>It went on.</p>" {
		t.Errorf("unexpected body %q", chapters[1].BodyHTML)
	}
}

func TestStructure_CustomFrontMatterTitle(t *testing.T) {
	s := New(Options{FrontMatterTitle: "Introduction", Logger: logger.Discard()})
	chapters := s.Structure("Preface.\n\nChapter 1\nText.", "")
	if chapters[0].Title != "Introduction" {
		t.Errorf("expected Introduction, got %q", chapters[0].Title)
	}
}

func TestStructure_NoHeadings(t *testing.T) {
	chapters := quiet().Structure("Just some text.\n\nMore text.", "My Book")
	if len(chapters) != 1 {
		t.Fatalf("expected a single chapter, got %+v", chapters)
	}
	if chapters[0].Title != "My Book" {
		t.Errorf("expected default title, got %q", chapters[0].Title)
	}

	chapters = quiet().Structure("Just some text.", "  ")
	if chapters[0].Title != "Untitled" {
		t.Errorf("expected Untitled, got %q", chapters[0].Title)
	}
}

func TestStructure_Empty(t *testing.T) {
	for _, text := range []string{"", "  \n\n \n"} {
		if chapters := quiet().Structure(text, "Book"); len(chapters) != 0 {
			t.Errorf("expected no chapters for %q, got %+v", text, chapters)
		}
	}
}

func TestStructure_EscapesAndLineBreaks(t *testing.T) {
	chapters := quiet().Structure("Tom & Jerry <3\nsecond line", "Book")
	want := "<p>Tom &amp; Jerry &lt;3<br/>second line</p>"
	if chapters[0].BodyHTML != want {
		t.Errorf("got %q, want %q", chapters[0].BodyHTML, want)
	}
}

func TestStructure_CustomMatcher(t *testing.T) {
	stars := MatcherFunc(func(line string) (string, bool) {
		if strings.HasPrefix(line, "* ") {
			return strings.TrimPrefix(line, "* "), true
		}
		return "", false
	})
	s := New(Options{Matchers: []Matcher{stars}, Logger: logger.Discard()})

	chapters := s.Structure("* One\nA.\n\nCHAPTER 2\n\n* Two\nB.", "Book")
	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %+v", chapters)
	}
	if chapters[0].Title != "One" || chapters[1].Title != "Two" {
		t.Errorf("unexpected titles %q, %q", chapters[0].Title, chapters[1].Title)
	}
	// Default matchers are replaced, so CHAPTER 2 is body text.
	if !strings.Contains(chapters[0].BodyHTML, "CHAPTER 2") {
		t.Errorf("expected CHAPTER 2 in body, got %q", chapters[0].BodyHTML)
	}
}

func TestStructure_Coverage(t *testing.T) {
	text := strings.Join([]string{
		"A dedication.",
		"Chapter 1\nThe first line.\nThe second line.",
		"Body one & two.",
		"PART II",
		"Body <three>.",
		"Chapter 3",
		"Body four.",
	}, document.Separator)

	s := quiet()
	var body []string
	for _, b := range s.Classify(document.Parse(text).Paragraphs) {
		if b.Kind == BodyText {
			body = append(body, b.Text)
		}
	}

	var plain []string
	for _, c := range s.Structure(text, "Book") {
		if p := PlainText(c.BodyHTML); p != "" {
			plain = append(plain, p)
		}
	}

	if got, want := strings.Join(plain, document.Separator), strings.Join(body, document.Separator); got != want {
		t.Errorf("chapter bodies do not cover the text exactly:\n got %q\nwant %q", got, want)
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText("<p>Tom &amp; Jerry<br/>again</p>\n<p>Second</p>")
	want := "Tom & Jerry\nagain\n\nSecond"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if PlainText("") != "" {
		t.Error("expected empty text")
	}
}
