// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"archforge/orchestrator"
)

// validateCmd returns the command that checks configuration and the agent
// table without calling Azure OpenAI.
func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and the agent table",
		Long: `Check the environment configuration and the agent override file (when
configured) without making any network calls.

Examples:
  archforge validate
  ARCHFORGE_AGENTS_FILE=agents.yaml archforge validate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("✅ Configuration is valid")

			table, err := orchestrator.LoadAgentTable(cfg.AgentsFile)
			if err != nil {
				return fmt.Errorf("agent table invalid: %w", err)
			}
			if cfg.AgentsFile != "" {
				fmt.Printf("✅ Agent table %s is valid\n", cfg.AgentsFile)
			} else {
				fmt.Println("✅ Using the built-in agent table")
			}

			for _, name := range table.Names() {
				profile, _ := table.Get(name)
				fmt.Printf("  %-20s temp=%.1f max_tokens=%-5d timeout=%s\n",
					name, profile.Temperature, profile.MaxTokens, profile.Timeout)
			}

			if cfg.BlobPublishingEnabled() {
				fmt.Printf("📤 Blob publishing enabled (container: %s)\n", cfg.BlobContainer)
			}

			return nil
		},
	}

	return cmd
}
