package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Estimator approximates how many model tokens a text costs. Implementations
// must be pure: the same text always yields the same count.
type Estimator interface {
	Estimate(text string) int
}

// EstimatorFunc adapts a plain function to Estimator.
type EstimatorFunc func(text string) int

func (f EstimatorFunc) Estimate(text string) int { return f(text) }

// WordEstimator counts whitespace-separated words.
type WordEstimator struct{}

func (WordEstimator) Estimate(text string) int {
	return len(strings.Fields(text))
}

// ScaledWordEstimator converts a word count into tokens assuming
// WordsPerToken words per token. It is the conservative budget estimate used
// when no real tokenizer is available.
type ScaledWordEstimator struct {
	WordsPerToken float64
}

func (e ScaledWordEstimator) Estimate(text string) int {
	ratio := e.WordsPerToken
	if ratio <= 0 {
		ratio = 0.6
	}
	return int(float64(len(strings.Fields(text))) / ratio)
}

// CharEstimator assumes CharsPerToken unicode code points per token,
// rounding up.
type CharEstimator struct {
	CharsPerToken int
}

func (e CharEstimator) Estimate(text string) int {
	n := e.CharsPerToken
	if n <= 0 {
		n = 4
	}
	runes := utf8.RuneCountInString(text)
	return (runes + n - 1) / n
}

// NewEstimator returns the estimator registered under name:
// "words", "scaled" or "chars".
func NewEstimator(name string) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "words", "word":
		return WordEstimator{}, nil
	case "", "scaled":
		return ScaledWordEstimator{WordsPerToken: 0.6}, nil
	case "chars", "char":
		return CharEstimator{CharsPerToken: 4}, nil
	default:
		return nil, fmt.Errorf("unknown token estimator %q", name)
	}
}
