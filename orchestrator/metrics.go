// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"archforge/orchestrator/cost"
	"archforge/orchestrator/llm"
)

// MetricsCollector aggregates per-agent metrics for one process. It feeds
// the performance-report artifact; a run holds exactly one collector.
type MetricsCollector struct {
	mu      sync.Mutex
	agents  map[string]*AgentMetrics
	started time.Time
	pricing *cost.PricingTable

	registry     *prometheus.Registry
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	tokensTotal  *prometheus.CounterVec
}

// AgentMetrics tracks metrics for one agent.
type AgentMetrics struct {
	Calls            int64         `json:"calls"`
	Succeeded        int64         `json:"succeeded"`
	Degraded         int64         `json:"degraded"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	TotalLatency     time.Duration `json:"-"`
	MaxLatencyMS     float64       `json:"max_latency_ms"`
	AvgLatencyMS     float64       `json:"avg_latency_ms"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
}

// MetricsSnapshot is the serializable view written to the performance report.
type MetricsSnapshot struct {
	Agents           map[string]AgentMetrics `json:"agents"`
	TotalCalls       int64                   `json:"total_calls"`
	TotalTokens      int64                   `json:"total_tokens"`
	EstimatedCostUSD float64                 `json:"estimated_cost_usd"`
	UptimeMS         float64                 `json:"uptime_ms"`
	Prometheus       []MetricFamilyDump      `json:"prometheus"`
}

// MetricFamilyDump is a flattened prometheus metric family.
type MetricFamilyDump struct {
	Name    string       `json:"name"`
	Help    string       `json:"help,omitempty"`
	Type    string       `json:"type"`
	Metrics []MetricDump `json:"metrics"`
}

// MetricDump is a single labeled sample.
type MetricDump struct {
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// NewMetricsCollector creates a collector with its own prometheus registry
// so concurrent runs in tests never collide on metric registration.
func NewMetricsCollector(pricing *cost.PricingTable) *MetricsCollector {
	registry := prometheus.NewRegistry()

	callsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archforge_agent_calls_total",
			Help: "Completion calls per agent and outcome",
		},
		[]string{"agent", "status"},
	)
	callDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archforge_agent_call_duration_seconds",
			Help:    "Completion call latency per agent",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"agent"},
	)
	tokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archforge_agent_tokens_total",
			Help: "Token usage per agent and kind",
		},
		[]string{"agent", "kind"},
	)

	registry.MustRegister(callsTotal)
	registry.MustRegister(callDuration)
	registry.MustRegister(tokensTotal)

	return &MetricsCollector{
		agents:       make(map[string]*AgentMetrics),
		started:      time.Now(),
		pricing:      pricing,
		registry:     registry,
		callsTotal:   callsTotal,
		callDuration: callDuration,
		tokensTotal:  tokensTotal,
	}
}

// RecordCall records one completion call for an agent.
func (c *MetricsCollector) RecordCall(agent, model string, latency time.Duration, usage llm.UsageStats, degraded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.agents[agent]
	if !ok {
		m = &AgentMetrics{}
		c.agents[agent] = m
	}

	m.Calls++
	if degraded {
		m.Degraded++
	} else {
		m.Succeeded++
	}
	m.PromptTokens += int64(usage.PromptTokens)
	m.CompletionTokens += int64(usage.CompletionTokens)
	m.TotalLatency += latency
	if ms := float64(latency.Milliseconds()); ms > m.MaxLatencyMS {
		m.MaxLatencyMS = ms
	}
	if c.pricing != nil {
		m.EstimatedCostUSD += c.pricing.Estimate(model, usage.PromptTokens, usage.CompletionTokens)
	}

	status := "success"
	if degraded {
		status = "degraded"
	}
	c.callsTotal.WithLabelValues(agent, status).Inc()
	c.callDuration.WithLabelValues(agent).Observe(latency.Seconds())
	c.tokensTotal.WithLabelValues(agent, "prompt").Add(float64(usage.PromptTokens))
	c.tokensTotal.WithLabelValues(agent, "completion").Add(float64(usage.CompletionTokens))
}

// Snapshot returns the serializable metrics view, including the flattened
// prometheus families.
func (c *MetricsCollector) Snapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := MetricsSnapshot{
		Agents:   make(map[string]AgentMetrics, len(c.agents)),
		UptimeMS: float64(time.Since(c.started).Milliseconds()),
	}

	for name, m := range c.agents {
		view := *m
		if m.Calls > 0 {
			view.AvgLatencyMS = float64(m.TotalLatency.Milliseconds()) / float64(m.Calls)
		}
		snap.Agents[name] = view
		snap.TotalCalls += m.Calls
		snap.TotalTokens += m.PromptTokens + m.CompletionTokens
		snap.EstimatedCostUSD += m.EstimatedCostUSD
	}

	families, err := c.registry.Gather()
	if err == nil {
		snap.Prometheus = flattenFamilies(families)
	}
	return snap
}

func flattenFamilies(families []*dto.MetricFamily) []MetricFamilyDump {
	dumps := make([]MetricFamilyDump, 0, len(families))
	for _, family := range families {
		dump := MetricFamilyDump{
			Name: family.GetName(),
			Help: family.GetHelp(),
			Type: family.GetType().String(),
		}
		for _, metric := range family.GetMetric() {
			sample := MetricDump{}
			if labels := metric.GetLabel(); len(labels) > 0 {
				sample.Labels = make(map[string]string, len(labels))
				for _, l := range labels {
					sample.Labels[l.GetName()] = l.GetValue()
				}
			}
			switch {
			case metric.GetCounter() != nil:
				sample.Value = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				sample.Value = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				// Histograms flatten to their sample count; buckets stay
				// native to prometheus scrapes.
				sample.Value = float64(metric.GetHistogram().GetSampleCount())
			}
			dump.Metrics = append(dump.Metrics, sample)
		}
		dumps = append(dumps, dump)
	}
	return dumps
}
