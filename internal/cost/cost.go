// Package cost prices model usage and accumulates it across a run.
package cost

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownModel is returned when a model has no entry in the rate table.
var ErrUnknownModel = errors.New("unknown model")

// UnknownModelError names the model that could not be priced.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q: no rate configured", e.Model)
}

func (e *UnknownModelError) Is(target error) bool {
	return target == ErrUnknownModel
}

// Rate is the price in currency units per 1000 tokens.
type Rate struct {
	InputPer1K  float64 `mapstructure:"input" json:"input" yaml:"input"`
	OutputPer1K float64 `mapstructure:"output" json:"output" yaml:"output"`
}

// RateTable maps model identifiers to their rates.
type RateTable map[string]Rate

// DefaultRates returns the built-in rate table. Local models (Ollama) are
// not listed; add them with a zero rate through configuration.
func DefaultRates() RateTable {
	return RateTable{
		"claude-sonnet-4-20250514":   {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-3-7-sonnet-20250219": {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-3-5-sonnet-20240620": {InputPer1K: 0.003, OutputPer1K: 0.015},
		"claude-3-5-haiku-20241022":  {InputPer1K: 0.0008, OutputPer1K: 0.004},
		"claude-3-opus-20240229":     {InputPer1K: 0.015, OutputPer1K: 0.075},
		"gpt-4":                      {InputPer1K: 0.03, OutputPer1K: 0.06},
		"gpt-4.1":                    {InputPer1K: 0.002, OutputPer1K: 0.008},
		"gpt-4o":                     {InputPer1K: 0.005, OutputPer1K: 0.015},
	}
}

// Merge returns a copy of t with overrides applied on top.
func (t RateTable) Merge(overrides RateTable) RateTable {
	out := make(RateTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Models returns the configured model identifiers in sorted order.
func (t RateTable) Models() []string {
	models := make([]string, 0, len(t))
	for k := range t {
		models = append(models, k)
	}
	sort.Strings(models)
	return models
}

// Lookup returns the rate for model or an UnknownModelError.
func (t RateTable) Lookup(model string) (Rate, error) {
	r, ok := t[model]
	if !ok {
		return Rate{}, &UnknownModelError{Model: model}
	}
	return r, nil
}

// Price returns the cost of one call. It performs no I/O.
func (t RateTable) Price(model string, inputTokens, outputTokens int) (float64, error) {
	r, err := t.Lookup(model)
	if err != nil {
		return 0, err
	}
	if inputTokens < 0 || outputTokens < 0 {
		return 0, fmt.Errorf("negative token count (%d in, %d out)", inputTokens, outputTokens)
	}
	return float64(inputTokens)*r.InputPer1K/1000 + float64(outputTokens)*r.OutputPer1K/1000, nil
}

// outputRatio is the share of input tokens expected back from a
// proof-reading pass when no usage is known yet.
const outputRatio = 0.5

// Estimate prices a run before it starts, assuming the model returns half as
// many tokens as it receives.
func (t RateTable) Estimate(model string, inputTokens int) (float64, error) {
	return t.Price(model, inputTokens, int(float64(inputTokens)*outputRatio))
}
