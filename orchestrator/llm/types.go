// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the gateway contract for model completions.
// The orchestrator talks to the hosted model exclusively through the
// Provider interface, which keeps the pipeline testable with stubs.
package llm

import (
	"context"
	"fmt"
	"time"
)

// CompletionRequest encapsulates all parameters for a completion request.
type CompletionRequest struct {
	// Prompt is the user's input text.
	Prompt string `json:"prompt"`

	// SystemPrompt is an optional system message that sets context/behavior.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens limits the maximum number of tokens in the response.
	// If 0, provider defaults are used.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Valid range is 0.0 to 2.0.
	Temperature float64 `json:"temperature,omitempty"`

	// TopP is the nucleus sampling parameter (0.0 to 1.0).
	TopP float64 `json:"top_p,omitempty"`

	// Model overrides the provider's default deployment.
	Model string `json:"model,omitempty"`

	// StopSequences are strings that cause generation to stop.
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// CompletionResponse contains the result of a completion.
type CompletionResponse struct {
	// Content is the generated text response.
	Content string `json:"content"`

	// Model is the actual model used (may differ from requested).
	Model string `json:"model"`

	// Usage contains token usage statistics.
	Usage UsageStats `json:"usage"`

	// Latency is the time taken to generate the response.
	Latency time.Duration `json:"latency"`

	// FinishReason indicates why generation stopped.
	// Common values: "stop", "max_tokens", "content_filter".
	FinishReason string `json:"finish_reason,omitempty"`
}

// UsageStats tracks token usage for cost accounting.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage from another response.
func (u *UsageStats) Add(other UsageStats) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// HealthCheckResult reports the outcome of a provider health probe.
type HealthCheckResult struct {
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Provider is the gateway interface for model completions.
// Implementations must be safe for concurrent use.
//
// The provider performs exactly one network call per Complete invocation:
// no retries, no backoff, no fallback substitution. Timeout and degradation
// policy belong to the caller, which passes a context carrying the deadline
// so the underlying request is genuinely aborted rather than abandoned.
type Provider interface {
	// Name returns the unique identifier for this provider instance.
	// Used for logging and metrics.
	Name() string

	// Complete generates a completion for the given request.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// HealthCheck verifies the provider is operational.
	HealthCheck(ctx context.Context) (*HealthCheckResult, error)
}

// ValidateRequest checks request parameters against provider limits.
// Callers that assemble requests from configuration should validate at
// load time; this is the shared definition of "valid".
func ValidateRequest(req CompletionRequest) error {
	if req.Prompt == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return fmt.Errorf("temperature %.2f outside valid range [0, 2]", req.Temperature)
	}
	if req.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative, got %d", req.MaxTokens)
	}
	if req.TopP < 0 || req.TopP > 1 {
		return fmt.Errorf("top_p %.2f outside valid range [0, 1]", req.TopP)
	}
	return nil
}
