// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

// Package main implements the archforge CLI for generating Azure
// architecture blueprints from written case studies.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "archforge",
		Short:   "Azure architecture blueprint generator",
		Long:    `archforge turns a written case study into a reviewed Azure architecture blueprint using a fixed pipeline of specialist agents.`,
		Version: version,
	}

	rootCmd.PersistentFlags().String("env-file", "", "Path to a .env file (environment variables take precedence)")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
