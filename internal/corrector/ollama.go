package corrector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const OllamaBaseURL = "http://localhost:11434"

// OllamaService uses a local Ollama model as the proof-reader.
type OllamaService struct {
	cfg     ServiceConfig
	baseURL string
	client  *http.Client
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// NewOllamaService creates a corrector backed by a local Ollama server.
func NewOllamaService(cfg ServiceConfig) *OllamaService {
	cfg = cfg.withDefaults()
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = OllamaBaseURL
	}
	return &OllamaService{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *OllamaService) Name() string {
	return "ollama"
}

// Correct sends the chunk to /api/generate with the proof-reader prompt.
func (s *OllamaService) Correct(ctx context.Context, req Request) (*Response, error) {
	reqBody := ollamaRequest{
		Model:  req.Model,
		System: buildSystemPrompt(req),
		Prompt: req.Text,
		Stream: false,
		Options: map[string]any{
			"temperature": s.cfg.Temperature,
			"num_predict": s.cfg.MaxOutputTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &Error{Kind: Invalid, Err: fmt.Errorf("failed to marshal correction request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/generate", s.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &Error{Kind: Invalid, Err: fmt.Errorf("failed to create correction request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("correction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, string(errBody))
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, &Error{Kind: Transient, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode correction response: %w", err)}
	}

	model := ollamaResp.Model
	if model == "" {
		model = req.Model
	}
	return finish(req.Text, &Response{
		Text:         ollamaResp.Response,
		InputTokens:  ollamaResp.PromptEvalCount,
		OutputTokens: ollamaResp.EvalCount,
		Model:        model,
	})
}
