// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"archforge/orchestrator/llm"
)

// mockHTTPClient is a mock HTTP client for testing.
type mockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.DoFunc(req)
}

// staticCredential returns a fixed Azure AD token.
type staticCredential struct {
	token string
}

func (c *staticCredential) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: c.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

// Helper to create a successful response.
func successResponse(content string, promptTokens, completionTokens int) *http.Response {
	resp := map[string]any{
		"id":      "chatcmpl-test123",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o-mini-2024-07-18",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
	body, _ := json.Marshal(resp)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

// Helper to create an error response.
func errorResponse(statusCode int, code, message string) *http.Response {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"type":    "invalid_request_error",
		},
	}
	body, _ := json.Marshal(resp)
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestProvider(t *testing.T, cfg Config) *Provider {
	t.Helper()
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://test.openai.azure.com"
	}
	if cfg.DeploymentName == "" {
		cfg.DeploymentName = "gpt-4o-mini"
	}
	p, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return p
}

func TestNewProvider_Validation(t *testing.T) {
	if _, err := NewProvider(Config{DeploymentName: "d", APIKey: "k"}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := NewProvider(Config{Endpoint: "https://x.openai.azure.com", APIKey: "k"}); err == nil {
		t.Error("expected error for missing deployment name")
	}
}

func TestDetectAuthType(t *testing.T) {
	tests := []struct {
		endpoint string
		apiKey   string
		want     AuthType
	}{
		{"https://res.openai.azure.com", "key", AuthTypeAPIKey},
		{"https://res.cognitiveservices.azure.com", "key", AuthTypeBearer},
		{"https://res.openai.azure.com", "", AuthTypeAzureAD},
	}
	for _, tt := range tests {
		if got := detectAuthType(tt.endpoint, tt.apiKey); got != tt.want {
			t.Errorf("detectAuthType(%q, key=%q) = %v, want %v", tt.endpoint, tt.apiKey, got, tt.want)
		}
	}
}

func TestComplete_Success(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	client := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			captured = req
			capturedBody, _ = io.ReadAll(req.Body)
			return successResponse("Hello from Azure", 10, 5), nil
		},
	}

	p := newTestProvider(t, Config{APIKey: "test-key", HTTPClient: client})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Prompt:       "Say hello",
		SystemPrompt: "You are a test assistant",
		Temperature:  0.3,
		MaxTokens:    100,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != "Hello from Azure" {
		t.Errorf("content = %q, want %q", resp.Content, "Hello from Azure")
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("finish reason = %q, want stop", resp.FinishReason)
	}

	if got := captured.Header.Get("api-key"); got != "test-key" {
		t.Errorf("api-key header = %q, want test-key", got)
	}
	if !strings.Contains(captured.URL.String(), "/openai/deployments/gpt-4o-mini/chat/completions") {
		t.Errorf("unexpected URL: %s", captured.URL)
	}

	var apiReq map[string]any
	if err := json.Unmarshal(capturedBody, &apiReq); err != nil {
		t.Fatalf("failed to parse request body: %v", err)
	}
	messages := apiReq["messages"].([]any)
	if len(messages) != 2 {
		t.Errorf("messages = %d, want 2 (system + user)", len(messages))
	}
}

func TestComplete_AzureADToken(t *testing.T) {
	var captured *http.Request
	client := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			captured = req
			return successResponse("ok", 1, 1), nil
		},
	}

	p := newTestProvider(t, Config{
		Credential: &staticCredential{token: "ad-token"},
		HTTPClient: client,
	})
	if p.GetAuthType() != AuthTypeAzureAD {
		t.Fatalf("auth type = %v, want azure-ad", p.GetAuthType())
	}

	if _, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer ad-token" {
		t.Errorf("Authorization = %q, want Bearer ad-token", got)
	}
}

func TestComplete_APIError(t *testing.T) {
	client := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return errorResponse(http.StatusTooManyRequests, "rate_limit_exceeded", "slow down"), nil
		},
	}

	p := newTestProvider(t, Config{APIKey: "k", HTTPClient: client})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if !apiErr.IsRateLimitError() {
		t.Error("expected rate limit error")
	}
}

func TestComplete_ContextCancellation(t *testing.T) {
	client := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		},
	}

	p := newTestProvider(t, Config{APIKey: "k", HTTPClient: client})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Complete(ctx, llm.CompletionRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took %s, request was not aborted", elapsed)
	}
	if p.IsHealthy() {
		t.Error("provider should be marked unhealthy after transport error")
	}
}

func TestComplete_Defaults(t *testing.T) {
	var capturedBody []byte
	client := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			capturedBody, _ = io.ReadAll(req.Body)
			return successResponse("ok", 1, 1), nil
		},
	}

	p := newTestProvider(t, Config{APIKey: "k", HTTPClient: client})

	// Negative temperature falls back to the default; zero max tokens too.
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Prompt:      "hi",
		Temperature: -1,
	}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	var apiReq map[string]any
	if err := json.Unmarshal(capturedBody, &apiReq); err != nil {
		t.Fatalf("failed to parse request body: %v", err)
	}
	if temp := apiReq["temperature"].(float64); temp != DefaultTemperature {
		t.Errorf("temperature = %v, want %v", temp, DefaultTemperature)
	}
	if maxTok := apiReq["max_tokens"].(float64); int(maxTok) != DefaultMaxTokens {
		t.Errorf("max_tokens = %v, want %v", maxTok, DefaultMaxTokens)
	}
}
