// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"archforge/config"
	"archforge/connectors/azureblob"
	"archforge/orchestrator"
	"archforge/orchestrator/cost"
	"archforge/orchestrator/llm/azure"
	"archforge/report"
)

// analyzeCmd returns the command that runs the full pipeline on a case
// study and writes the run folder.
func analyzeCmd() *cobra.Command {
	var outputDir string
	var skipBlob bool

	cmd := &cobra.Command{
		Use:   "analyze [case-study.md]",
		Short: "Run the full analysis pipeline on a case study",
		Long: `Run the agent pipeline on a case study and write the blueprint folder.

Reads the case study from the given file, or from stdin when no file is
given. The generated folder contains the full solution report, a quick
summary, run metadata, and per-agent debug output.

Examples:
  archforge analyze case-study.md
  cat case-study.md | archforge analyze
  archforge analyze case-study.md --output-dir ./runs`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			caseStudy, source, err := readCaseStudy(args)
			if err != nil {
				return err
			}

			table, err := orchestrator.LoadAgentTable(cfg.AgentsFile)
			if err != nil {
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

			opts := []orchestrator.PipelineOption{
				orchestrator.WithMaxParallel(int64(cfg.MaxParallel)),
			}
			if cfg.MetricsEnabled {
				opts = append(opts, orchestrator.WithMetrics(
					orchestrator.NewMetricsCollector(cost.DefaultPricing())))
			}

			pipeline, err := orchestrator.NewPipeline(provider, table, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Analyzing %s (deployment: %s, auth: %s)\n", source, cfg.DeploymentName, provider.GetAuthType())

			run, err := pipeline.Run(ctx, caseStudy)
			if err != nil {
				return fmt.Errorf("pipeline failed: %w", err)
			}

			printPhaseSummary(run)

			writer := report.NewWriter(cfg.OutputDir,
				report.WithPerformanceReport(cfg.MetricsEnabled))
			folder, err := writer.Save(ctx, run)
			if err != nil {
				return fmt.Errorf("failed to save run: %w", err)
			}

			fmt.Printf("\n✅ Blueprint written to %s\n", folder)

			if cfg.BlobPublishingEnabled() && !skipBlob {
				publishFolder(ctx, cfg, folder)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for run folders (default from environment)")
	cmd.Flags().BoolVar(&skipBlob, "skip-blob", false, "Skip blob publishing even when configured")

	return cmd
}

// readCaseStudy loads the case study from the file argument or stdin.
func readCaseStudy(args []string) (text, source string, err error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to read case study: %w", err)
		}
		return string(data), args[0], nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", "", fmt.Errorf("failed to read case study from stdin: %w", err)
	}
	return string(data), "stdin", nil
}

// printPhaseSummary renders a per-phase status table on stdout.
func printPhaseSummary(run *orchestrator.CaseStudyRun) {
	fmt.Printf("\nRun %s: %q completed in %s\n\n", run.ID, run.Title, run.ExecutionTime().Round(10*time.Millisecond))
	for _, phase := range run.Phases {
		mark := "✅"
		note := ""
		if phase.Status == orchestrator.PhaseDegraded {
			mark = "⚠️ "
			note = fmt.Sprintf(" (degraded: %s)", phase.Reason)
		}
		fmt.Printf("  %s %-18s %-20s %6dms%s\n", mark, phase.Phase, phase.AgentName, phase.Duration().Milliseconds(), note)
	}
	fmt.Printf("\nWell-Architected coverage: %d/%d recommendations cited\n",
		run.Checklist.Found, run.Checklist.Total)
}

// publishFolder mirrors the run folder to blob storage. Failures are
// reported but never fail the command; the local folder already exists.
func publishFolder(ctx context.Context, cfg *config.Config, folder string) {
	publisher, err := azureblob.NewPublisher(azureblob.Config{
		AccountName:      cfg.StorageAccount,
		Container:        cfg.BlobContainer,
		ConnectionString: cfg.StorageConnectionString,
		AccountKey:       cfg.StorageKey,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  blob publishing skipped: %v\n", err)
		return
	}

	n, err := publisher.PublishFolder(ctx, folder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  blob publishing incomplete after %d blobs: %v\n", n, err)
		return
	}
	fmt.Printf("📤 Published %d blobs to container %q\n", n, cfg.BlobContainer)
}

// loadConfig resolves the shared --env-file flag and loads configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, err
	}
	return config.Load(envFile)
}
