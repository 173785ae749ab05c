// Package corrector talks to the LLM services that proof-read OCR text.
//
// Every backend returns the corrected text together with the token usage the
// provider reported, so the caller can account for cost. Failures are
// reported as *Error values carrying a FailureKind that tells the dispatcher
// whether a retry makes sense.
package corrector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valpere/scanbook/internal/placeholder"
	"github.com/valpere/scanbook/internal/postprocess"
)

const (
	// DefaultMaxOutputTokens bounds the length of a single corrected chunk.
	DefaultMaxOutputTokens = 4000

	// DefaultTemperature keeps corrections conservative and repeatable.
	DefaultTemperature = 0.1

	defaultHTTPTimeout = 180 * time.Second
)

// Request is one chunk of OCR text to be corrected.
type Request struct {
	Text     string `json:"text"`
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`

	// PreviousContext is the tail of the preceding chunk. It is shown to the
	// model for continuity and must not be returned.
	PreviousContext string `json:"previous_context,omitempty"`
}

// Response is a successful correction.
type Response struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model"`
	Cached       bool   `json:"cached"`
}

// Corrector proof-reads text through an LLM service.
type Corrector interface {
	Name() string
	Correct(ctx context.Context, req Request) (*Response, error)
}

// ServiceConfig holds the settings shared by the HTTP-based backends.
type ServiceConfig struct {
	APIKey          string        `mapstructure:"api_key" json:"api_key"`
	BaseURL         string        `mapstructure:"base_url" json:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" json:"max_output_tokens"`
	Temperature     float64       `mapstructure:"temperature" json:"temperature"`
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultHTTPTimeout
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	return c
}

const proofReaderPrompt = "You are a proof-reader. Return the text corrected for spelling, " +
	"punctuation and OCR errors only. Preserve all headings and blank lines. " +
	"DO NOT summarise or omit content."

// buildSystemPrompt returns the proof-reading instructions, optionally
// naming the language of the book and carrying the previous passage.
func buildSystemPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString(proofReaderPrompt)
	sb.WriteString(" Respond with the corrected text only.")

	if req.Language != "" {
		sb.WriteString(fmt.Sprintf(" The text is written in %s; keep it in that language.", req.Language))
	}
	if placeholder.Has(req.Text) {
		sb.WriteString(" " + placeholder.InstructionHint())
	}

	if req.PreviousContext != "" {
		sb.WriteString(fmt.Sprintf("\n\nCONTEXT (end of the previous passage, do NOT include it in your answer):\n...%s", req.PreviousContext))
	}

	return sb.String()
}

// finish applies postprocess cleanup and rejects an empty answer while
// keeping the reported usage so it is still billed.
func finish(source string, resp *Response) (*Response, error) {
	resp.Text = postprocess.CleanCorrection(source, resp.Text)
	if resp.Text == "" {
		return nil, &Error{
			Kind:         Invalid,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			Err:          ErrEmptyResponse,
		}
	}
	return resp, nil
}

// New builds a backend by provider name.
func New(provider string, cfg ServiceConfig) (Corrector, error) {
	switch strings.ToLower(provider) {
	case "openai":
		return NewOpenAIService(cfg), nil
	case "openrouter":
		if cfg.BaseURL == "" {
			cfg.BaseURL = OpenRouterBaseURL
		}
		svc := NewOpenAIService(cfg)
		svc.name = "openrouter"
		return svc, nil
	case "anthropic", "claude":
		return NewAnthropicService(cfg), nil
	case "ollama":
		return NewOllamaService(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (expected openai, openrouter, anthropic or ollama)", provider)
	}
}
