package corrector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicService corrects text with Claude through the official SDK.
type AnthropicService struct {
	cfg    ServiceConfig
	client *anthropic.Client
}

// NewAnthropicService builds a Claude client. SDK retries are disabled; the
// dispatcher owns retry and backoff.
func NewAnthropicService(cfg ServiceConfig) *AnthropicService {
	cfg = cfg.withDefaults()
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicService{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
	}
}

func (s *AnthropicService) Name() string {
	return "anthropic"
}

func (s *AnthropicService) Correct(ctx context.Context, req Request) (*Response, error) {
	if s.cfg.APIKey == "" {
		return nil, &Error{Kind: Invalid, Err: fmt.Errorf("anthropic API key required")}
	}

	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.F(anthropic.Model(req.Model)),
		MaxTokens:   anthropic.F(int64(s.cfg.MaxOutputTokens)),
		Temperature: anthropic.F(s.cfg.Temperature),
		System: anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(buildSystemPrompt(req)),
		}),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Text)),
		}),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &Error{
				Kind:       KindForStatus(apiErr.StatusCode),
				StatusCode: apiErr.StatusCode,
				Err:        fmt.Errorf("claude api error: %w", err),
			}
		}
		return nil, fmt.Errorf("claude api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		sb.WriteString(block.Text)
	}

	return finish(req.Text, &Response{
		Text:         sb.String(),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
		Model:        string(message.Model),
	})
}
