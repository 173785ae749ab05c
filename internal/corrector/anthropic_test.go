package corrector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicService_Correct_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("unexpected api key header %q", r.Header.Get("X-Api-Key"))
		}

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "claude-sonnet-4-20250514" {
			t.Errorf("unexpected model %v", body["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "The cat sat on the mat."}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 55, "output_tokens": 9}
		}`))
	}))
	defer server.Close()

	svc := NewAnthropicService(ServiceConfig{APIKey: "test-key", BaseURL: server.URL + "/"})

	resp, err := svc.Correct(context.Background(), Request{Text: "Tbe cat sat on tbe mat.", Model: "claude-sonnet-4-20250514"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "The cat sat on the mat." {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if resp.InputTokens != 55 || resp.OutputTokens != 9 {
		t.Errorf("unexpected usage %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestAnthropicService_Correct_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer server.Close()

	svc := NewAnthropicService(ServiceConfig{APIKey: "test-key", BaseURL: server.URL + "/"})

	_, err := svc.Correct(context.Background(), Request{Text: "Hello", Model: "nope"})
	if Classify(err) != Invalid {
		t.Errorf("expected invalid failure, got %v", err)
	}
}

func TestAnthropicService_Correct_NoAPIKey(t *testing.T) {
	svc := NewAnthropicService(ServiceConfig{})

	_, err := svc.Correct(context.Background(), Request{Text: "Hello", Model: "claude-3-5-haiku-20241022"})
	if Classify(err) != Invalid {
		t.Errorf("expected invalid failure without key, got %v", err)
	}
}
