package cost

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPrice(t *testing.T) {
	table := DefaultRates()

	tests := []struct {
		name   string
		model  string
		in     int
		out    int
		expect float64
	}{
		{name: "sonnet", model: "claude-sonnet-4-20250514", in: 1000, out: 1000, expect: 0.018},
		{name: "haiku", model: "claude-3-5-haiku-20241022", in: 2000, out: 500, expect: 0.0016 + 0.002},
		{name: "gpt-4.1", model: "gpt-4.1", in: 2500, out: 1250, expect: 0.005 + 0.01},
		{name: "zero usage", model: "gpt-4o", in: 0, out: 0, expect: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Price(tt.model, tt.in, tt.out)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !almostEqual(got, tt.expect) {
				t.Errorf("Price = %v, want %v", got, tt.expect)
			}
		})
	}
}

func TestPrice_UnknownModel(t *testing.T) {
	_, err := DefaultRates().Price("gpt-99", 10, 10)
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
	var ume *UnknownModelError
	if !errors.As(err, &ume) || ume.Model != "gpt-99" {
		t.Errorf("expected UnknownModelError naming gpt-99, got %v", err)
	}
}

func TestPrice_NegativeTokens(t *testing.T) {
	if _, err := DefaultRates().Price("gpt-4", -1, 0); err == nil {
		t.Error("expected error for negative tokens")
	}
}

func TestMergeAndModels(t *testing.T) {
	base := RateTable{"a": {InputPer1K: 1}}
	merged := base.Merge(RateTable{"b": {OutputPer1K: 2}, "a": {InputPer1K: 3}})

	if merged["a"].InputPer1K != 3 {
		t.Errorf("override not applied: %+v", merged["a"])
	}
	if base["a"].InputPer1K != 1 {
		t.Error("Merge must not modify the receiver")
	}
	models := merged.Models()
	if len(models) != 2 || models[0] != "a" || models[1] != "b" {
		t.Errorf("unexpected models %v", models)
	}
}

func TestEstimate(t *testing.T) {
	got, err := DefaultRates().Estimate("gpt-4.1", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1000 in at 0.002 + 500 out at 0.008
	if !almostEqual(got, 0.006) {
		t.Errorf("Estimate = %v, want 0.006", got)
	}
}

func TestNewLedger_UnknownModel(t *testing.T) {
	if _, err := NewLedger(DefaultRates(), "nope"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}

func TestLedger_RecordIsMonotonicAndExact(t *testing.T) {
	table := DefaultRates()
	ledger, err := NewLedger(table, "gpt-4")
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}

	usage := [][2]int{{100, 50}, {0, 0}, {2500, 1200}, {7, 3}}
	want := 0.0
	prev := 0.0
	for _, u := range usage {
		snap, err := ledger.Record(u[0], u[1])
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if snap.TotalCost < prev {
			t.Errorf("cost decreased: %v -> %v", prev, snap.TotalCost)
		}
		prev = snap.TotalCost
		p, _ := table.Price("gpt-4", u[0], u[1])
		want += p
	}

	snap := ledger.Snapshot()
	if !almostEqual(snap.TotalCost, want) {
		t.Errorf("TotalCost = %v, want %v", snap.TotalCost, want)
	}
	if snap.TotalInputTokens != 2607 || snap.TotalOutputTokens != 1253 {
		t.Errorf("unexpected token totals %+v", snap)
	}
	if snap.Calls != len(usage) {
		t.Errorf("Calls = %d, want %d", snap.Calls, len(usage))
	}
	if ledger.Model() != "gpt-4" {
		t.Errorf("Model = %q", ledger.Model())
	}
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	ledger, err := NewLedger(RateTable{"m": {InputPer1K: 1, OutputPer1K: 1}}, "m")
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}

	const workers, perWorker = 16, 250
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := ledger.Record(1, 1); err != nil {
					t.Errorf("Record failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	snap := ledger.Snapshot()
	total := workers * perWorker
	if snap.Calls != total || snap.TotalInputTokens != total || snap.TotalOutputTokens != total {
		t.Errorf("lost updates: %+v", snap)
	}
	if !almostEqual(snap.TotalCost, float64(total)*0.002) {
		t.Errorf("TotalCost = %v, want %v", snap.TotalCost, float64(total)*0.002)
	}
}
