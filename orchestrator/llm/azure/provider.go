// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

// Package azure implements the llm.Provider gateway against Azure OpenAI
// Service chat completions. It supports api-key, static Bearer, and Azure AD
// token authentication (via azidentity) and aborts in-flight requests when
// the caller's context is cancelled.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"archforge/orchestrator/llm"
)

const (
	// DefaultAPIVersion is the default Azure OpenAI API version.
	DefaultAPIVersion = "2024-08-01-preview"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxTokens is the default max output tokens for completions.
	DefaultMaxTokens = 4096

	// DefaultTemperature is the default temperature for completions.
	DefaultTemperature = 0.7

	// cognitiveScope is the OAuth scope for Azure AD token requests
	// against Azure OpenAI / Cognitive Services endpoints.
	cognitiveScope = "https://cognitiveservices.azure.com/.default"
)

// Model constants for common Azure OpenAI deployments.
const (
	ModelGPT4o     = "gpt-4o"
	ModelGPT4oMini = "gpt-4o-mini"
	ModelGPT4      = "gpt-4"
	ModelGPT4Turbo = "gpt-4-turbo"

	ModelGPT35Turbo = "gpt-35-turbo"

	DefaultModel = ModelGPT4oMini
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthType represents the authentication method for Azure OpenAI.
type AuthType string

const (
	// AuthTypeAPIKey uses the api-key header (Classic Azure OpenAI).
	AuthTypeAPIKey AuthType = "api-key"

	// AuthTypeBearer uses Authorization: Bearer with a static key
	// (Azure AI Foundry endpoints).
	AuthTypeBearer AuthType = "bearer"

	// AuthTypeAzureAD uses Authorization: Bearer with a token acquired
	// from azidentity at call time.
	AuthTypeAzureAD AuthType = "azure-ad"
)

// TokenCredential is the subset of azcore.TokenCredential the provider
// needs; azidentity credentials satisfy it.
type TokenCredential interface {
	GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error)
}

// Provider implements llm.Provider for Azure OpenAI.
type Provider struct {
	endpoint       string // e.g. https://myresource.openai.azure.com
	apiKey         string
	deploymentName string
	apiVersion     string
	authType       AuthType
	credential     TokenCredential
	client         HTTPClient

	mu      sync.RWMutex
	healthy bool
	token   azcore.AccessToken // cached AD token
}

// Config contains configuration for the Azure OpenAI provider.
type Config struct {
	Endpoint       string        // Required: Azure OpenAI endpoint URL
	APIKey         string        // API key; empty selects Azure AD auth
	DeploymentName string        // Required: Azure deployment name
	APIVersion     string        // Optional: API version (default: 2024-08-01-preview)
	AuthType       AuthType      // Optional: auto-detected when empty
	Timeout        time.Duration // Optional: HTTP timeout (default: 120s)
	Credential     TokenCredential
	HTTPClient     HTTPClient // Optional: override for tests
}

// NewProvider creates a new Azure OpenAI provider instance.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure OpenAI endpoint is required")
	}
	if cfg.DeploymentName == "" {
		return nil, fmt.Errorf("azure OpenAI deployment name is required")
	}

	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	authType := cfg.AuthType
	if authType == "" {
		authType = detectAuthType(cfg.Endpoint, cfg.APIKey)
	}

	credential := cfg.Credential
	if authType == AuthTypeAzureAD && credential == nil {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		credential = cred
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Provider{
		endpoint:       cfg.Endpoint,
		apiKey:         cfg.APIKey,
		deploymentName: cfg.DeploymentName,
		apiVersion:     cfg.APIVersion,
		authType:       authType,
		credential:     credential,
		client:         client,
		healthy:        true,
	}, nil
}

// detectAuthType picks the authentication method from the endpoint shape.
// Classic Azure OpenAI (*.openai.azure.com) uses the api-key header, Azure
// AI Foundry (*.cognitiveservices.azure.com) uses Bearer. An empty key
// means Azure AD regardless of endpoint.
func detectAuthType(endpoint, apiKey string) AuthType {
	if apiKey == "" {
		return AuthTypeAzureAD
	}
	if strings.Contains(strings.ToLower(endpoint), ".cognitiveservices.azure.com") {
		return AuthTypeBearer
	}
	return AuthTypeAPIKey
}

// authorize sets authentication headers, fetching an AD token when needed.
func (p *Provider) authorize(ctx context.Context, req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	switch p.authType {
	case AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	case AuthTypeAzureAD:
		tok, err := p.accessToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire Azure AD token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	default:
		req.Header.Set("api-key", p.apiKey)
	}
	return nil
}

// accessToken returns a cached AD token, refreshing within 2 minutes of expiry.
func (p *Provider) accessToken(ctx context.Context) (string, error) {
	p.mu.RLock()
	tok := p.token
	p.mu.RUnlock()

	if tok.Token != "" && time.Until(tok.ExpiresOn) > 2*time.Minute {
		return tok.Token, nil
	}

	fresh, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{cognitiveScope},
	})
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.token = fresh
	p.mu.Unlock()
	return fresh.Token, nil
}

// GetAuthType returns the authentication type being used.
func (p *Provider) GetAuthType() AuthType {
	return p.authType
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "azure-openai"
}

// IsHealthy reports the last observed health state.
func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// buildURL constructs the Azure OpenAI chat completions URL.
func (p *Provider) buildURL(deploymentName string) string {
	// https://{resource}.openai.azure.com/openai/deployments/{deployment}/chat/completions?api-version={version}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.endpoint, deploymentName, p.apiVersion)
}

// Complete generates a completion for the given request. The caller's
// context deadline cancels the underlying HTTP request.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()

	deploymentName := p.deploymentName
	if req.Model != "" {
		deploymentName = req.Model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	// Temperature 0.0 is valid (deterministic), negative is not.
	temperature := req.Temperature
	if temperature < 0 {
		temperature = DefaultTemperature
	}

	messages := make([]map[string]string, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": req.SystemPrompt,
		})
	}
	messages = append(messages, map[string]string{
		"role":    "user",
		"content": req.Prompt,
	})

	apiReq := map[string]any{
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	if req.TopP > 0 {
		apiReq["top_p"] = req.TopP
	}
	if len(req.StopSequences) > 0 {
		apiReq["stop"] = req.StopSequences
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(deploymentName), bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if err := p.authorize(ctx, httpReq); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("azure OpenAI API error: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			p.setHealthy(false)
		}
		return nil, p.parseAPIError(resp.StatusCode, body)
	}

	p.setHealthy(true)

	var apiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	content := ""
	finishReason := "unknown"
	if len(apiResp.Choices) > 0 {
		content = apiResp.Choices[0].Message.Content
		finishReason = mapFinishReason(apiResp.Choices[0].FinishReason)
	}

	return &llm.CompletionResponse{
		Content:      content,
		Model:        apiResp.Model,
		FinishReason: finishReason,
		Usage: llm.UsageStats{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// HealthCheck verifies the deployment answers a minimal completion.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthCheckResult, error) {
	start := time.Now()
	_, err := p.Complete(ctx, llm.CompletionRequest{
		Prompt:    "ping",
		MaxTokens: 1,
	})
	result := &llm.HealthCheckResult{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		CheckedAt: time.Now(),
	}
	if err != nil {
		result.Message = err.Error()
	}
	return result, nil
}

// parseAPIError parses an API error response.
func (p *Provider) parseAPIError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("azure OpenAI API error (status %d): %s", statusCode, string(body))
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       errResp.Error.Code,
		Type:       errResp.Error.Type,
		Message:    errResp.Error.Message,
	}
}

// mapFinishReason maps Azure OpenAI finish reasons to standard reasons.
func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return "stop"
	case "length":
		return "max_tokens"
	case "content_filter":
		return "content_filter"
	default:
		return reason
	}
}

// APIError represents an Azure OpenAI API error.
type APIError struct {
	StatusCode int
	Code       string
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("azure OpenAI API error (status %d, code %s, type %s): %s",
		e.StatusCode, e.Code, e.Type, e.Message)
}

// IsRateLimitError returns true if this is a rate limit error.
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden ||
		e.Code == "invalid_api_key"
}

// Internal API types (OpenAI-compatible format)

type openAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
