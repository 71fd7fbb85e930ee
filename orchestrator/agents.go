// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentProfile is one named prompt configuration. Profiles are immutable
// after table construction; the pipeline only reads them.
type AgentProfile struct {
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	SystemPrompt string        `yaml:"system_prompt"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"-"`
}

// Configuration limits for agent profiles.
const (
	// MaxAgentTemperature is the maximum allowed sampling temperature.
	MaxAgentTemperature = 2.0

	// DefaultAgentTimeout bounds a single phase's wall-clock time.
	DefaultAgentTimeout = 120 * time.Second

	// MaxAgentNameLength bounds agent names in override files.
	MaxAgentNameLength = 63
)

var agentNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Agent names used by the pipeline phases.
const (
	AgentResearcher          = "researcher"
	AgentRequirementsAnalyst = "requirements-analyst"
	AgentSolutionArchitect   = "solution-architect"
	AgentDiagramDesigner     = "diagram-designer"
	AgentCostEstimator       = "cost-estimator"
	AgentRiskAssessor        = "risk-assessor"
	AgentChangeManager       = "change-manager"
	AgentWAFAuditor          = "waf-auditor"
	AgentTechnicalWriter     = "technical-writer"
)

// AgentTable is an immutable mapping from agent name to profile, built once
// at startup and injected into the pipeline.
type AgentTable struct {
	profiles map[string]AgentProfile
}

// DefaultAgentTable returns the built-in agent configuration.
func DefaultAgentTable() *AgentTable {
	profiles := []AgentProfile{
		{
			Name:        AgentResearcher,
			Description: "Extracts business context, constraints and drivers from the case study",
			SystemPrompt: "You are a senior cloud consultant preparing a discovery briefing for an Azure engagement. " +
				"Read the case study and produce a structured research summary with these markdown sections: " +
				"## Business Context, ## Technical Landscape, ## Constraints, ## Key Drivers. " +
				"Quote concrete facts from the case study; do not invent requirements that are not stated or clearly implied.",
			Temperature: 0.4,
			MaxTokens:   1800,
			Timeout:     DefaultAgentTimeout,
		},
		{
			Name:        AgentRequirementsAnalyst,
			Description: "Derives functional and non-functional requirements",
			SystemPrompt: "You are a requirements analyst for Azure solutions. From the research briefing and case study, " +
				"produce: ## Functional Requirements (numbered FR-1, FR-2, ...), ## Non-Functional Requirements " +
				"(numbered NFR-1, NFR-2, ... covering availability, performance, security, compliance), and " +
				"## Assumptions. Keep each requirement testable and one sentence long.",
			Temperature: 0.3,
			MaxTokens:   2000,
			Timeout:     DefaultAgentTimeout,
		},
		{
			Name:        AgentSolutionArchitect,
			Description: "Designs the target Azure architecture",
			SystemPrompt: "You are an Azure solution architect. Design a target architecture that satisfies the stated " +
				"requirements. Produce: ## Architecture (component-by-component design naming specific Azure services " +
				"and SKUs where relevant), ## Data Flow, ## Networking, ## Identity and Access. Prefer managed " +
				"PaaS services and justify each major service choice in one sentence.",
			Temperature: 0.5,
			MaxTokens:   3000,
			Timeout:     DefaultAgentTimeout,
		},
		{
			Name:        AgentDiagramDesigner,
			Description: "Renders the architecture as a Mermaid diagram",
			SystemPrompt: "You are a technical illustrator. Render the given Azure architecture as a Mermaid flowchart " +
				"inside a fenced mermaid code block under a ## Diagram heading. Use subgraphs for network boundaries " +
				"and keep node labels to the Azure service name plus its role.",
			Temperature: 0.2,
			MaxTokens:   1500,
			Timeout:     DefaultAgentTimeout,
		},
		{
			Name:        AgentCostEstimator,
			Description: "Estimates monthly Azure spend for the design",
			SystemPrompt: "You are an Azure cost analyst. Estimate the monthly cost of the proposed architecture. " +
				"Produce a ## Cost section with a per-service table (service, SKU/tier, estimated monthly USD), a " +
				"total, and a ## Cost Optimization subsection listing at least three savings levers (reservations, " +
				"autoscale, right-sizing). State that figures are indicative list prices.",
			Temperature: 0.3,
			MaxTokens:   2000,
			Timeout:     DefaultAgentTimeout,
		},
		{
			Name:        AgentRiskAssessor,
			Description: "Identifies delivery and operational risks",
			SystemPrompt: "You are a risk assessor for cloud migrations. Produce a ## Risks section: a numbered list of " +
				"risks, each with likelihood (low/medium/high), impact (low/medium/high) and a one-sentence " +
				"mitigation. Cover technical, organisational and compliance risks. End with a ## Top 3 Risks summary.",
			Temperature: 0.4,
			MaxTokens:   2000,
			Timeout:     DefaultAgentTimeout,
		},
		{
			Name:        AgentChangeManager,
			Description: "Plans the organisational change and migration sequencing",
			SystemPrompt: "You are an organisational change manager. Produce a ## Change Management section covering: " +
				"migration phases with rough durations, stakeholder communication, training needs, and rollback " +
				"strategy. Keep it pragmatic for a mid-size enterprise.",
			Temperature: 0.5,
			MaxTokens:   1800,
			Timeout:     DefaultAgentTimeout,
		},
		{
			Name:        AgentWAFAuditor,
			Description: "Scores the design against the Well-Architected checklist",
			SystemPrompt: "You are an Azure Well-Architected Framework reviewer. Evaluate the proposed architecture " +
				"against the five pillars. For every checklist recommendation the design addresses, cite its " +
				"identifier inline (for example SE:01 or RE:05). Produce a ## Well-Architected Review section with " +
				"one subsection per pillar and an explicit list of cited identifiers per pillar.",
			Temperature: 0.2,
			MaxTokens:   2500,
			Timeout:     DefaultAgentTimeout,
		},
		{
			Name:        AgentTechnicalWriter,
			Description: "Assembles the final blueprint document",
			SystemPrompt: "You are a technical writer. Assemble the provided section drafts into a single coherent " +
				"Azure solution blueprint. Start with a # heading naming the solution, then an ## Executive Summary, " +
				"then the provided sections in order. Smooth transitions, fix obvious inconsistencies, do not drop " +
				"any section and do not invent new technical content.",
			Temperature: 0.4,
			MaxTokens:   4000,
			Timeout:     3 * time.Minute,
		},
	}

	table := make(map[string]AgentProfile, len(profiles))
	for _, p := range profiles {
		table[p.Name] = p
	}
	return &AgentTable{profiles: table}
}

// Get returns the profile for an agent name.
func (t *AgentTable) Get(name string) (AgentProfile, bool) {
	p, ok := t.profiles[name]
	return p, ok
}

// Names returns all agent names in sorted order.
func (t *AgentTable) Names() []string {
	names := make([]string, 0, len(t.profiles))
	for name := range t.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every profile against the configuration invariants.
// The pipeline never issues a completion from a profile that fails here.
func (t *AgentTable) Validate() error {
	for name, p := range t.profiles {
		if err := validateProfile(p); err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
	}
	return nil
}

func validateProfile(p AgentProfile) error {
	if !agentNamePattern.MatchString(p.Name) || len(p.Name) > MaxAgentNameLength {
		return fmt.Errorf("invalid name %q: must match %s and be at most %d chars",
			p.Name, agentNamePattern.String(), MaxAgentNameLength)
	}
	if p.SystemPrompt == "" {
		return fmt.Errorf("system prompt must not be empty")
	}
	if p.Temperature < 0 || p.Temperature > MaxAgentTemperature {
		return fmt.Errorf("temperature %.2f outside valid range [0, %.1f]", p.Temperature, MaxAgentTemperature)
	}
	if p.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", p.MaxTokens)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", p.Timeout)
	}
	return nil
}

// AgentTableFile is the on-disk override format, following the
// apiVersion/kind convention.
type AgentTableFile struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Spec       AgentTableSpec `yaml:"spec"`
}

// AgentTableSpec lists profile overrides.
type AgentTableSpec struct {
	Agents []AgentOverride `yaml:"agents"`
}

// AgentOverride selectively replaces fields of a built-in profile.
// Zero values leave the built-in value untouched, except Temperature
// where an explicit 0 is meaningful and signalled by SetTemperature.
type AgentOverride struct {
	Name           string   `yaml:"name"`
	SystemPrompt   string   `yaml:"system_prompt"`
	Temperature    *float64 `yaml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// LoadAgentTable builds the agent table, applying overrides from path when
// it is non-empty. An invalid file is a startup error, never a degraded run.
func LoadAgentTable(path string) (*AgentTable, error) {
	table := DefaultAgentTable()
	if path == "" {
		if err := table.Validate(); err != nil {
			return nil, err
		}
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent table %s: %w", path, err)
	}

	var file AgentTableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse agent table %s: %w", path, err)
	}

	if !strings.HasPrefix(file.APIVersion, "archforge.io/") {
		return nil, fmt.Errorf("invalid apiVersion: must start with 'archforge.io/', got %q", file.APIVersion)
	}
	if file.Kind != "AgentTable" {
		return nil, fmt.Errorf("invalid kind: expected 'AgentTable', got %q", file.Kind)
	}

	for _, o := range file.Spec.Agents {
		p, ok := table.profiles[o.Name]
		if !ok {
			return nil, fmt.Errorf("override references unknown agent %q", o.Name)
		}
		if o.SystemPrompt != "" {
			p.SystemPrompt = o.SystemPrompt
		}
		if o.Temperature != nil {
			p.Temperature = *o.Temperature
		}
		if o.MaxTokens != 0 {
			p.MaxTokens = o.MaxTokens
		}
		if o.TimeoutSeconds != 0 {
			p.Timeout = time.Duration(o.TimeoutSeconds) * time.Second
		}
		table.profiles[o.Name] = p
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
