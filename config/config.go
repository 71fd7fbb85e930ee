// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

// Package config loads runtime configuration from the environment, with
// an optional .env file for local development. Real environment variables
// always win over .env entries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the CLI needs to run a pipeline.
type Config struct {
	// Azure OpenAI
	Endpoint       string
	APIKey         string // empty means Azure AD token auth
	DeploymentName string
	APIVersion     string

	// Pipeline tuning
	MaxParallel    int
	RequestTimeout time.Duration
	AgentsFile     string
	MetricsEnabled bool

	// Output
	OutputDir string

	// Optional blob publishing; enabled when BlobContainer is set.
	BlobContainer           string
	StorageAccount          string
	StorageKey              string
	StorageConnectionString string
}

// Load reads configuration from the environment. If envFile is non-empty
// it is loaded first via godotenv, which never overwrites variables that
// are already set, so the process environment keeps precedence. A missing
// default .env file is not an error; a missing explicit one is.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Endpoint:       strings.TrimRight(os.Getenv("AZURE_OPENAI_ENDPOINT"), "/"),
		APIKey:         os.Getenv("AZURE_OPENAI_API_KEY"),
		DeploymentName: getEnv("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt-4o"),
		APIVersion:     getEnv("AZURE_OPENAI_API_VERSION", "2024-08-01-preview"),

		MaxParallel:    getEnvInt("ARCHFORGE_MAX_PARALLEL", 3),
		RequestTimeout: getEnvDuration("ARCHFORGE_REQUEST_TIMEOUT", 120*time.Second),
		AgentsFile:     os.Getenv("ARCHFORGE_AGENTS_FILE"),
		MetricsEnabled: getEnvBool("ARCHFORGE_METRICS", true),

		OutputDir: getEnv("ARCHFORGE_OUTPUT_DIR", "output"),

		BlobContainer:           os.Getenv("ARCHFORGE_BLOB_CONTAINER"),
		StorageAccount:          os.Getenv("AZURE_STORAGE_ACCOUNT"),
		StorageKey:              os.Getenv("AZURE_STORAGE_KEY"),
		StorageConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),
	}

	return cfg, nil
}

// Validate checks the fields a pipeline run actually needs. Blob settings
// are only validated when publishing is enabled.
func (c *Config) Validate() error {
	var problems []string

	if c.Endpoint == "" {
		problems = append(problems, "AZURE_OPENAI_ENDPOINT is required")
	} else if !strings.HasPrefix(c.Endpoint, "https://") {
		problems = append(problems, "AZURE_OPENAI_ENDPOINT must be an https:// URL")
	}
	if c.DeploymentName == "" {
		problems = append(problems, "AZURE_OPENAI_DEPLOYMENT_NAME is required")
	}
	if c.APIVersion == "" {
		problems = append(problems, "AZURE_OPENAI_API_VERSION is required")
	}
	if c.MaxParallel < 1 {
		problems = append(problems, "ARCHFORGE_MAX_PARALLEL must be at least 1")
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "ARCHFORGE_REQUEST_TIMEOUT must be positive")
	}
	if c.OutputDir == "" {
		problems = append(problems, "ARCHFORGE_OUTPUT_DIR must not be empty")
	}

	if c.BlobPublishingEnabled() {
		if c.StorageConnectionString == "" && c.StorageAccount == "" {
			problems = append(problems, "blob publishing needs AZURE_STORAGE_ACCOUNT or AZURE_STORAGE_CONNECTION_STRING")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// BlobPublishingEnabled reports whether runs should be mirrored to blob
// storage after saving.
func (c *Config) BlobPublishingEnabled() bool {
	return c.BlobContainer != ""
}

// UsesAzureAD reports whether the gateway should fall back to Azure AD
// token authentication because no API key is configured.
func (c *Config) UsesAzureAD() bool {
	return c.APIKey == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
