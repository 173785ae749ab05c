package postprocess

import "testing"

type cleanCase struct {
	name string
	in   string
	want string
}

func runCases(t *testing.T, fn func(string) string, cases []cleanCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := fn(tc.in); got != tc.want {
				t.Errorf("got %q, want %q (input %q)", got, tc.want, tc.in)
			}
		})
	}
}

func TestRemoveThinkingBlocks(t *testing.T) {
	runCases(t, removeThinkingBlocks, []cleanCase{
		{"empty", "", ""},
		{"plain prose", "The ferry left at dawn.", "The ferry left at dawn."},
		{"thinking", "The ferry<thinking>tbe -> the</thinking> left at dawn.", "The ferry left at dawn."},
		{"think", "<think>fix hyphenation</think>Northbound trains were late.", "Northbound trains were late."},
		{"reasoning upper case", "<REASONING>rn -> m</REASONING>modern", "modern"},
		{"reflection spans lines", "<reflection>\nline one\nline two\n</reflection>\nDone.", "Done."},
		{"two blocks", "<think>a</think>Mid<think>b</think>", "Mid"},
		{"cut off mid thought", "<thinking>Checking the spelling of", ""},
		{"cut off after text", "The ferry left.<think>and then", "The ferry left."},
	})
}

func TestRemoveInstructionEchoes(t *testing.T) {
	runCases(t, removeInstructionEchoes, []cleanCase{
		{"empty", "", ""},
		{"no echo", "The ferry left at dawn.", "The ferry left at dawn."},
		{"here is the corrected text", "Here is the corrected text: The ferry left.", "The ferry left."},
		{"here's the proofread version", "Here's the proofread version:\nThe ferry left.", "The ferry left."},
		{"label only", "Corrected passage: The ferry left.", "The ferry left."},
		{"the revised text", "The revised text:\n\nThe ferry left.", "The ferry left."},
		{"sure", "Sure, here is the cleaned text: The ferry left.", "The ferry left."},
		{"of course", "Of course! Here's the corrected version: The ferry left.", "The ferry left."},
		{"not at the start", "She wrote: Here is the corrected text: nothing", "She wrote: Here is the corrected text: nothing"},
		{"no colon", "Here is the text of the letter", "Here is the text of the letter"},
	})
}

func TestRemoveQuoteWrapping(t *testing.T) {
	runCases(t, removeQuoteWrapping, []cleanCase{
		{"empty", "", ""},
		{"one rune", "\"", "\""},
		{"unquoted", "The ferry left.", "The ferry left."},
		{"straight double", "\"The ferry left.\"", "The ferry left."},
		{"straight single", "'The ferry left.'", "The ferry left."},
		{"guillemets", "«Le bac est parti.»", "Le bac est parti."},
		{"curly double", "“The ferry left.”", "The ferry left."},
		{"curly single", "‘The ferry left.’", "The ferry left."},
		{"mismatched", "\"The ferry left.'", "\"The ferry left.'"},
		{"opening only", "\"The ferry left.", "\"The ferry left."},
		{"inner padding trimmed", "\"  The ferry left.  \"", "The ferry left."},
		{"inner quotes kept", "\"He said \"go\" twice\"", "He said \"go\" twice"},
	})
}

func TestClean(t *testing.T) {
	runCases(t, Clean, []cleanCase{
		{"empty", "", ""},
		{"thinking then echo", "<think>two typos</think>Here is the corrected text:\nThe ferry left.", "The ferry left."},
		{"dialogue untouched", "\"Wait,\" he said. \"Not yet.\"", "\"Wait,\" he said. \"Not yet.\""},
		{"paragraphs kept", "\n\nFirst paragraph.\n\nSecond paragraph.\n", "First paragraph.\n\nSecond paragraph."},
	})
}

func TestCleanCorrection(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		corrected string
		want      string
	}{
		{"wrapping added by model", "Tbe ferry left.", "\"The ferry left.\"", "The ferry left."},
		{"source is dialogue", "\"Wiat,\" he said. \"Not yet.\"", "\"Wait,\" he said. \"Not yet.\"", "\"Wait,\" he said. \"Not yet.\""},
		{"source in guillemets", "«Bonjuor»", "«Bonjour»", "«Bonjour»"},
		{"echo plus wrapping", "The fery left.", "Corrected text: 'The ferry left.'", "The ferry left."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCorrection(tt.source, tt.corrected); got != tt.want {
				t.Errorf("CleanCorrection(%q, %q) = %q, want %q", tt.source, tt.corrected, got, tt.want)
			}
		})
	}
}
