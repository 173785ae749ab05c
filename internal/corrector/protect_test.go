package corrector

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

type funcCorrector struct {
	correctFn func(ctx context.Context, req Request) (*Response, error)
	calls     atomic.Int32
	lastText  atomic.Value
}

func (f *funcCorrector) Name() string { return "func" }

func (f *funcCorrector) Correct(ctx context.Context, req Request) (*Response, error) {
	f.calls.Add(1)
	f.lastText.Store(req.Text)
	return f.correctFn(ctx, req)
}

func TestProtector_RestoresSpans(t *testing.T) {
	next := &funcCorrector{correctFn: func(ctx context.Context, req Request) (*Response, error) {
		return &Response{Text: strings.Replace(req.Text, "teh", "the", 1), InputTokens: 4, OutputTokens: 4}, nil
	}}
	p := NewProtector(next)

	resp, err := p.Correct(context.Background(), Request{Text: "See teh site https://example.org/a_b."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "See the site https://example.org/a_b." {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if sent := next.lastText.Load().(string); strings.Contains(sent, "example.org") {
		t.Errorf("address was sent to the model: %q", sent)
	}
}

func TestProtector_LostMarkerIsInvalid(t *testing.T) {
	next := &funcCorrector{correctFn: func(ctx context.Context, req Request) (*Response, error) {
		return &Response{Text: "Mail me.", InputTokens: 6, OutputTokens: 2}, nil
	}}
	p := NewProtector(next)

	_, err := p.Correct(context.Background(), Request{Text: "Mail me@example.org."})
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind != Invalid {
		t.Fatalf("expected Invalid error, got %v", err)
	}
	if in, out := Usage(err); in != 6 || out != 2 {
		t.Errorf("usage must be kept, got %d/%d", in, out)
	}
}

func TestProtector_PassThrough(t *testing.T) {
	next := &funcCorrector{correctFn: func(ctx context.Context, req Request) (*Response, error) {
		return &Response{Text: req.Text}, nil
	}}
	p := NewProtector(next)

	resp, err := p.Correct(context.Background(), Request{Text: "Plain prose."})
	if err != nil || resp.Text != "Plain prose." {
		t.Errorf("unexpected result %v, %v", resp, err)
	}
	if p.Name() != "func" {
		t.Errorf("unexpected name %q", p.Name())
	}
}
