// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

// Package cost provides token pricing for Azure OpenAI deployments so run
// metadata can carry an estimated spend per agent and per run.
package cost

import (
	"strings"
	"sync"
)

// ModelPricing contains pricing per 1K tokens for a model.
type ModelPricing struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
}

// PricingTable holds pricing keyed by deployment/model name. The "*" entry
// is the fallback for unknown deployments.
type PricingTable struct {
	mu     sync.RWMutex
	models map[string]ModelPricing
}

// DefaultPricing contains list prices for common Azure OpenAI deployments,
// per 1K tokens in USD (as of January 2025). Azure OpenAI matches OpenAI
// list pricing.
func DefaultPricing() *PricingTable {
	return &PricingTable{
		models: map[string]ModelPricing{
			"gpt-4o":           {InputPer1K: 0.0025, OutputPer1K: 0.01},
			"gpt-4o-mini":      {InputPer1K: 0.00015, OutputPer1K: 0.0006},
			"gpt-4-turbo":      {InputPer1K: 0.01, OutputPer1K: 0.03},
			"gpt-4":            {InputPer1K: 0.03, OutputPer1K: 0.06},
			"gpt-4-32k":        {InputPer1K: 0.06, OutputPer1K: 0.12},
			"gpt-35-turbo":     {InputPer1K: 0.0005, OutputPer1K: 0.0015},
			"gpt-35-turbo-16k": {InputPer1K: 0.003, OutputPer1K: 0.004},
			"o1-preview":       {InputPer1K: 0.015, OutputPer1K: 0.06},
			"o1-mini":          {InputPer1K: 0.003, OutputPer1K: 0.012},
			"*":                {InputPer1K: 0.01, OutputPer1K: 0.03},
		},
	}
}

// Lookup returns pricing for a deployment name. Versioned deployment names
// like "gpt-4o-mini-2024-07-18" match their base model prefix; unknown
// names fall back to the wildcard entry.
func (t *PricingTable) Lookup(model string) ModelPricing {
	t.mu.RLock()
	defer t.mu.RUnlock()

	model = strings.ToLower(model)
	if p, ok := t.models[model]; ok {
		return p
	}

	// Longest-prefix match so "gpt-4o-mini-…" resolves to gpt-4o-mini,
	// not gpt-4o.
	bestLen := 0
	var best ModelPricing
	for name, p := range t.models {
		if name != "*" && strings.HasPrefix(model, name) && len(name) > bestLen {
			bestLen = len(name)
			best = p
		}
	}
	if bestLen > 0 {
		return best
	}
	return t.models["*"]
}

// Set overrides pricing for a deployment name.
func (t *PricingTable) Set(model string, pricing ModelPricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.models[strings.ToLower(model)] = pricing
}

// Estimate returns the USD cost of a completion given its token counts.
func (t *PricingTable) Estimate(model string, promptTokens, completionTokens int) float64 {
	p := t.Lookup(model)
	return float64(promptTokens)/1000*p.InputPer1K + float64(completionTokens)/1000*p.OutputPer1K
}
