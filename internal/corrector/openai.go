package corrector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenAIService speaks the OpenAI chat completions protocol, which OpenRouter
// and most self-hosted gateways also implement.
type OpenAIService struct {
	name    string
	cfg     ServiceConfig
	baseURL string
	client  *http.Client
}

func NewOpenAIService(cfg ServiceConfig) *OpenAIService {
	cfg = cfg.withDefaults()
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = OpenAIBaseURL
	}
	return &OpenAIService{
		name:    "openai",
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *OpenAIService) Name() string {
	return s.name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (s *OpenAIService) Correct(ctx context.Context, req Request) (*Response, error) {
	if s.cfg.APIKey == "" {
		return nil, &Error{Kind: Invalid, Err: fmt.Errorf("%s API key required", s.name)}
	}

	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(req)},
			{Role: "user", Content: req.Text},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxOutputTokens,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: Invalid, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/chat/completions", s.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &Error{Kind: Invalid, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.cfg.APIKey))
	if s.name == "openrouter" {
		httpReq.Header.Set("HTTP-Referer", "https://scanbook.local")
		httpReq.Header.Set("X-Title", "scanbook")
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, string(errBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &Error{Kind: Transient, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	out := &Response{
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
		Model:        req.Model,
	}
	if chatResp.Model != "" {
		out.Model = chatResp.Model
	}
	if len(chatResp.Choices) > 0 {
		out.Text = chatResp.Choices[0].Message.Content
	}

	return finish(req.Text, out)
}
