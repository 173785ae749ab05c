package cost

import (
	"sync"
)

// Snapshot is a consistent view of a Ledger.
type Snapshot struct {
	Model             string  `json:"model"`
	Calls             int     `json:"calls"`
	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	TotalCost         float64 `json:"total_cost"`
}

// Ledger accumulates token usage and cost for one run. It is shared by all
// dispatcher workers; every update happens under a single lock so no
// concurrent update is lost and TotalCost never decreases.
type Ledger struct {
	table RateTable
	model string

	mu   sync.Mutex
	snap Snapshot
}

// NewLedger validates model against table and returns an empty ledger.
// An unknown model is reported before any work is dispatched.
func NewLedger(table RateTable, model string) (*Ledger, error) {
	if _, err := table.Lookup(model); err != nil {
		return nil, err
	}
	return &Ledger{
		table: table,
		model: model,
		snap:  Snapshot{Model: model},
	}, nil
}

// Record prices one attempt and adds it to the totals, returning the state
// after the update.
func (l *Ledger) Record(inputTokens, outputTokens int) (Snapshot, error) {
	price, err := l.table.Price(l.model, inputTokens, outputTokens)
	if err != nil {
		return l.Snapshot(), err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap.Calls++
	l.snap.TotalInputTokens += inputTokens
	l.snap.TotalOutputTokens += outputTokens
	l.snap.TotalCost += price
	return l.snap, nil
}

// Snapshot returns the current totals.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// Model returns the model this ledger prices.
func (l *Ledger) Model() string {
	return l.model
}

// Table returns the rate table used for pricing.
func (l *Ledger) Table() RateTable {
	return l.table
}
