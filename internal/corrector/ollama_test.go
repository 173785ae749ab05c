package corrector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaService_New(t *testing.T) {
	svc := NewOllamaService(ServiceConfig{})

	if svc.baseURL != OllamaBaseURL {
		t.Errorf("expected default baseURL, got %q", svc.baseURL)
	}
	if svc.client == nil {
		t.Error("expected non-nil HTTP client")
	}
	if svc.Name() != "ollama" {
		t.Errorf("expected 'ollama', got %q", svc.Name())
	}
}

func TestOllamaService_Correct_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}

		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Model != "llama3.2" {
			t.Errorf("expected model 'llama3.2', got %q", req.Model)
		}
		if req.Stream != false {
			t.Error("expected stream=false")
		}
		if req.Prompt != "Tbe cat sat." {
			t.Errorf("expected chunk text as prompt, got %q", req.Prompt)
		}
		if req.System == "" {
			t.Error("expected system prompt")
		}

		json.NewEncoder(w).Encode(ollamaResponse{
			Model:           "llama3.2",
			Response:        "The cat sat.",
			PromptEvalCount: 40,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	svc := NewOllamaService(ServiceConfig{BaseURL: server.URL})

	resp, err := svc.Correct(context.Background(), Request{Text: "Tbe cat sat.", Model: "llama3.2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "The cat sat." {
		t.Errorf("expected 'The cat sat.', got %q", resp.Text)
	}
	if resp.InputTokens != 40 || resp.OutputTokens != 5 {
		t.Errorf("unexpected usage %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaService_Correct_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaResponse{Response: ""})
	}))
	defer server.Close()

	svc := NewOllamaService(ServiceConfig{BaseURL: server.URL})

	_, err := svc.Correct(context.Background(), Request{Text: "Hello", Model: "llama3.2"})
	if Classify(err) != Invalid {
		t.Errorf("expected invalid failure for empty answer, got %v", err)
	}
}

func TestOllamaService_Correct_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewOllamaService(ServiceConfig{BaseURL: server.URL})

	_, err := svc.Correct(context.Background(), Request{Text: "Hello", Model: "llama3.2"})
	if Classify(err) != Transient {
		t.Errorf("expected transient failure, got %v", err)
	}
}

func TestOllamaService_Correct_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	svc := NewOllamaService(ServiceConfig{BaseURL: server.URL})

	_, err := svc.Correct(context.Background(), Request{Text: "Hello", Model: "llama3.2"})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if Classify(err) != Transient {
		t.Errorf("expected transient failure, got %v", err)
	}
}
