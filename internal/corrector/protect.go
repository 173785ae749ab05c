package corrector

import (
	"context"
	"fmt"

	"github.com/valpere/scanbook/internal/placeholder"
)

// Protector hides web addresses, e-mail addresses and markup from the model
// and restores them in the answer. An answer that lost a marker is
// rejected as Invalid so the chunk keeps its original text.
type Protector struct {
	next Corrector
}

func NewProtector(next Corrector) *Protector {
	return &Protector{next: next}
}

func (p *Protector) Name() string {
	return p.next.Name()
}

func (p *Protector) Correct(ctx context.Context, req Request) (*Response, error) {
	text, markers := placeholder.Protect(req.Text)
	if len(markers) == 0 {
		return p.next.Correct(ctx, req)
	}

	req.Text = text
	resp, err := p.next.Correct(ctx, req)
	if err != nil {
		return nil, err
	}

	restored, missing := placeholder.Restore(resp.Text, markers)
	if len(missing) > 0 {
		return nil, &Error{
			Kind:         Invalid,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			Err:          fmt.Errorf("answer lost %d of %d protected spans", len(missing), len(markers)),
		}
	}
	resp.Text = restored
	return resp, nil
}
