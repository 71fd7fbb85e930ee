// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"archforge/orchestrator/llm/azure"
)

// statusCmd returns the command that checks Azure OpenAI connectivity.
func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check Azure OpenAI connectivity",
		Long: `Send a minimal completion request to the configured deployment and
report reachability, authentication mode, and round-trip latency.

Examples:
  archforge status
  archforge status --env-file ./prod.env`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			provider, err := azure.NewProvider(azure.Config{
				Endpoint:       cfg.Endpoint,
				APIKey:         cfg.APIKey,
				DeploymentName: cfg.DeploymentName,
				APIVersion:     cfg.APIVersion,
				Timeout:        cfg.RequestTimeout,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Endpoint:   %s\n", cfg.Endpoint)
			fmt.Printf("Deployment: %s\n", cfg.DeploymentName)
			fmt.Printf("Auth:       %s\n", provider.GetAuthType())

			result, err := provider.HealthCheck(cmd.Context())
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			if !result.Healthy {
				fmt.Printf("Status:     ❌ unhealthy (%s)\n", result.Message)
				return fmt.Errorf("deployment %s is not reachable", cfg.DeploymentName)
			}

			fmt.Printf("Status:     ✅ healthy (%dms)\n", result.Latency.Milliseconds())
			return nil
		},
	}

	return cmd
}
