// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultAgentTable_Valid(t *testing.T) {
	table := DefaultAgentTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}

	names := table.Names()
	if len(names) != 9 {
		t.Errorf("agent count = %d, want 9", len(names))
	}

	for _, name := range names {
		p, ok := table.Get(name)
		if !ok {
			t.Fatalf("agent %s missing", name)
		}
		if p.Temperature < 0 || p.Temperature > MaxAgentTemperature {
			t.Errorf("agent %s temperature %.2f out of range", name, p.Temperature)
		}
		if p.MaxTokens <= 0 {
			t.Errorf("agent %s max tokens %d not positive", name, p.MaxTokens)
		}
		if p.SystemPrompt == "" {
			t.Errorf("agent %s has empty system prompt", name)
		}
	}
}

func TestValidateProfile_Rejections(t *testing.T) {
	base := AgentProfile{
		Name:         "tester",
		SystemPrompt: "prompt",
		Temperature:  0.5,
		MaxTokens:    100,
		Timeout:      time.Minute,
	}

	tests := []struct {
		name   string
		mutate func(*AgentProfile)
	}{
		{"temperature too high", func(p *AgentProfile) { p.Temperature = 2.1 }},
		{"temperature negative", func(p *AgentProfile) { p.Temperature = -0.1 }},
		{"zero max tokens", func(p *AgentProfile) { p.MaxTokens = 0 }},
		{"negative max tokens", func(p *AgentProfile) { p.MaxTokens = -5 }},
		{"empty prompt", func(p *AgentProfile) { p.SystemPrompt = "" }},
		{"bad name", func(p *AgentProfile) { p.Name = "Bad Name!" }},
		{"zero timeout", func(p *AgentProfile) { p.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			if err := validateProfile(p); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}

	if err := validateProfile(base); err != nil {
		t.Errorf("valid profile rejected: %v", err)
	}
}

const validOverrideFile = `
apiVersion: archforge.io/v1
kind: AgentTable
spec:
  agents:
    - name: cost-estimator
      temperature: 0.1
      max_tokens: 1000
      timeout_seconds: 30
    - name: researcher
      system_prompt: "Custom research prompt."
`

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAgentTable_Overrides(t *testing.T) {
	path := writeTempFile(t, validOverrideFile)

	table, err := LoadAgentTable(path)
	if err != nil {
		t.Fatalf("LoadAgentTable failed: %v", err)
	}

	cost, _ := table.Get(AgentCostEstimator)
	if cost.Temperature != 0.1 {
		t.Errorf("temperature = %.2f, want 0.1", cost.Temperature)
	}
	if cost.MaxTokens != 1000 {
		t.Errorf("max tokens = %d, want 1000", cost.MaxTokens)
	}
	if cost.Timeout != 30*time.Second {
		t.Errorf("timeout = %s, want 30s", cost.Timeout)
	}

	research, _ := table.Get(AgentResearcher)
	if research.SystemPrompt != "Custom research prompt." {
		t.Errorf("system prompt not overridden: %q", research.SystemPrompt)
	}
	// Untouched fields keep their defaults.
	if research.MaxTokens != 1800 {
		t.Errorf("max tokens = %d, want default 1800", research.MaxTokens)
	}
}

func TestLoadAgentTable_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"wrong apiVersion", "apiVersion: other.io/v1\nkind: AgentTable\n"},
		{"wrong kind", "apiVersion: archforge.io/v1\nkind: Workflow\n"},
		{"unknown agent", `
apiVersion: archforge.io/v1
kind: AgentTable
spec:
  agents:
    - name: nonexistent-agent
      max_tokens: 100
`},
		{"out of range temperature", `
apiVersion: archforge.io/v1
kind: AgentTable
spec:
  agents:
    - name: researcher
      temperature: 3.0
`},
		{"not yaml", "{{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, tt.content)
			if _, err := LoadAgentTable(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadAgentTable_MissingFile(t *testing.T) {
	if _, err := LoadAgentTable("/nonexistent/agents.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadAgentTable_NoPath(t *testing.T) {
	table, err := LoadAgentTable("")
	if err != nil {
		t.Fatalf("LoadAgentTable failed: %v", err)
	}
	if len(table.Names()) != 9 {
		t.Errorf("agent count = %d, want 9", len(table.Names()))
	}
}
