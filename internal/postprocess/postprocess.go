// Package postprocess removes common LLM artifacts from correction output.
//
// It is applied to the raw text returned by every correction backend
// (OpenAI-compatible, Anthropic, Ollama) before the result is used downstream.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean removes LLM artifacts from text in two phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	return strings.TrimSpace(text)
}

// CleanCorrection runs Clean and then strips quotes the model wrapped around
// the whole answer. Book text often starts and ends with dialogue quotes, so
// the wrapping is only removed when source itself was not wrapped.
func CleanCorrection(source, corrected string) string {
	corrected = Clean(corrected)
	if isQuoteWrapped(strings.TrimSpace(source)) {
		return corrected
	}
	return removeQuoteWrapping(corrected)
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: instruction echoes ---

// echoPatterns match introductory phrases that LLMs sometimes prepend even
// when instructed not to. Each pattern is anchored to the start of the string
// and requires a colon to reduce false positives on legitimate content.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [corrected|proofread|cleaned] [text|version|passage]:"
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:corrected |proofread |proof-read |cleaned |revised )?(?:text|version|passage)\s*:`),
	// "[The] corrected [text|version]:"
	regexp.MustCompile(`(?i)^(?:the )?(?:corrected|proofread|proof-read|revised) (?:text|version|passage)\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] corrected text:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)(?: the)? (?:corrected |proofread |proof-read |cleaned |revised )?(?:text|version|passage)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 3: quote wrapping ---

// quotePairs are the opening/closing pairs recognised as wrapping.
var quotePairs = [][2]rune{
	{'"', '"'},
	{'\'', '\''},
	{'«', '»'},
	{'“', '”'},
	{'‘', '’'},
}

func isQuoteWrapped(text string) bool {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return false
	}
	for _, p := range quotePairs {
		if runes[0] == p[0] && runes[n-1] == p[1] {
			return true
		}
	}
	return false
}

// removeQuoteWrapping strips a matching pair of outer quotes when the entire
// text is wrapped in them. Supported pairs:
//
//	"…"  '…'  «…»  "…"  '…'
func removeQuoteWrapping(text string) string {
	if !isQuoteWrapped(text) {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[1 : len(runes)-1]))
}
