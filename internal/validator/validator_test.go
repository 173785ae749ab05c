package validator

import (
	"strings"
	"testing"

	lingua "github.com/pemistahl/lingua-go"

	"github.com/valpere/scanbook/internal/detector"
)

// smallDetector keeps tests fast; building a detector for every language is slow.
var smallDetector = detector.New(lingua.English, lingua.German, lingua.French, lingua.Ukrainian)

func TestCheck_EmptyCorrection(t *testing.T) {
	v := New(0, WithDetector(smallDetector))

	for _, corrected := range []string{"", "   ", "\n\n"} {
		if _, err := v.Check("Some source text", corrected, ""); err == nil {
			t.Errorf("expected error for empty correction %q", corrected)
		}
	}
}

func TestCheck_Unchanged(t *testing.T) {
	v := New(0, WithDetector(smallDetector))

	text := "The old lighthouse keeper climbed the stairs every evening.\n\nHe lit the lamp and waited."
	warnings, err := v.Check(text, text, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
}

func TestCheck_ParagraphDivergence(t *testing.T) {
	v := New(0.5, WithoutLanguageCheck())

	source := strings.Repeat("A paragraph of text.\n\n", 4)

	tests := []struct {
		name      string
		corrected string
		warn      bool
	}{
		{"same count", strings.Repeat("A paragraph.\n\n", 4), false},
		{"one merged", strings.Repeat("A paragraph.\n\n", 3), false},
		{"half lost", strings.Repeat("A paragraph.\n\n", 2), false},
		{"most lost", "A single paragraph.", true},
		{"doubled plus", strings.Repeat("A paragraph.\n\n", 7), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings, err := v.Check(source, tt.corrected, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := len(warnings) > 0; got != tt.warn {
				t.Errorf("warn = %v, want %v (%v)", got, tt.warn, warnings)
			}
		})
	}
}

func TestCheck_ExpectedLanguage(t *testing.T) {
	v := New(0, WithDetector(smallDetector))

	english := "The old lighthouse keeper climbed the stairs every evening to light the lamp."

	warnings, err := v.Check(english, english, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings for English, got %v", warnings)
	}

	warnings, err = v.Check(english, english, "uk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 1 {
		t.Errorf("expected a language warning, got %v", warnings)
	}
}

func TestCheck_LanguageDrift(t *testing.T) {
	v := New(0, WithDetector(smallDetector))

	source := "The old lighthouse keeper climbed the stairs every evening to light the lamp."
	translated := "Der alte Leuchtturmwärter stieg jeden Abend die Treppe hinauf, um die Lampe anzuzünden."

	warnings, err := v.Check(source, translated, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "language changed") {
		t.Errorf("expected a language drift warning, got %v", warnings)
	}
}

func TestCheck_ShortTextSkipsLanguage(t *testing.T) {
	v := New(0, WithDetector(smallDetector))

	warnings, err := v.Check("Hi", "Hallo", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("short texts must not be language-checked, got %v", warnings)
	}
}
