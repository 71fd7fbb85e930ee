// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archforge/orchestrator/cost"
	"archforge/orchestrator/llm"
)

func TestMetricsCollector_RecordAndSnapshot(t *testing.T) {
	c := NewMetricsCollector(cost.DefaultPricing())

	usage := llm.UsageStats{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500}
	c.RecordCall("solution-architect", "gpt-4o", 200*time.Millisecond, usage, false)
	c.RecordCall("solution-architect", "gpt-4o", 400*time.Millisecond, usage, false)
	c.RecordCall("cost-estimator", "gpt-4o", 100*time.Millisecond, llm.UsageStats{}, true)

	snap := c.Snapshot()

	assert.Equal(t, int64(3), snap.TotalCalls)
	assert.Equal(t, int64(3000), snap.TotalTokens)

	architect := snap.Agents["solution-architect"]
	assert.Equal(t, int64(2), architect.Calls)
	assert.Equal(t, int64(2), architect.Succeeded)
	assert.Equal(t, float64(400), architect.MaxLatencyMS)
	assert.Equal(t, float64(300), architect.AvgLatencyMS)
	// 1K prompt at $0.0025 + 0.5K completion at $0.01, twice.
	assert.InDelta(t, 0.015, architect.EstimatedCostUSD, 1e-9)

	estimator := snap.Agents["cost-estimator"]
	assert.Equal(t, int64(1), estimator.Degraded)
	assert.Zero(t, estimator.Succeeded)
}

func TestMetricsCollector_PrometheusDump(t *testing.T) {
	c := NewMetricsCollector(nil)
	c.RecordCall("researcher", "gpt-4o-mini", 50*time.Millisecond,
		llm.UsageStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, false)

	snap := c.Snapshot()
	require.NotEmpty(t, snap.Prometheus)

	byName := make(map[string]MetricFamilyDump)
	for _, fam := range snap.Prometheus {
		byName[fam.Name] = fam
	}

	calls, ok := byName["archforge_agent_calls_total"]
	require.True(t, ok, "calls counter family missing")
	require.Len(t, calls.Metrics, 1)
	assert.Equal(t, "researcher", calls.Metrics[0].Labels["agent"])
	assert.Equal(t, "success", calls.Metrics[0].Labels["status"])
	assert.Equal(t, float64(1), calls.Metrics[0].Value)

	tokens, ok := byName["archforge_agent_tokens_total"]
	require.True(t, ok, "tokens counter family missing")
	total := 0.0
	for _, m := range tokens.Metrics {
		total += m.Value
	}
	assert.Equal(t, float64(15), total)
}

func TestMetricsCollector_SeparateRegistries(t *testing.T) {
	// Two collectors must not collide on metric registration.
	assert.NotPanics(t, func() {
		_ = NewMetricsCollector(nil)
		_ = NewMetricsCollector(nil)
	})
}
