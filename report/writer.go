// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

// Package report persists a completed pipeline run as a folder of
// markdown and JSON artifacts. Writes within a run folder happen in
// parallel and are not transactional: a crash mid-save can leave a
// partial folder, and nothing ever rewrites a folder after the save.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"archforge/orchestrator"
	"archforge/shared/logger"
)

// timestampLayout is the local-time layout used in folder and file names.
const timestampLayout = "2006-01-02T15-04-05"

// maxTitleSlug bounds the sanitized title fragment in folder names.
const maxTitleSlug = 40

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Writer saves runs beneath a base directory.
type Writer struct {
	baseDir             string
	extractor           *orchestrator.Extractor
	log                 *logger.Logger
	performanceReport   bool
	quickSummarySection []string
}

// Option configures a Writer.
type Option func(*Writer)

// WithPerformanceReport toggles the performance-report artifact.
func WithPerformanceReport(enabled bool) Option {
	return func(w *Writer) { w.performanceReport = enabled }
}

// NewWriter creates a report writer rooted at baseDir.
func NewWriter(baseDir string, opts ...Option) *Writer {
	w := &Writer{
		baseDir:           baseDir,
		extractor:         orchestrator.NewExtractor(),
		log:               logger.New("report"),
		performanceReport: true,
		quickSummarySection: []string{
			"Executive Summary",
			"Architecture",
			"Cost",
			"Risks",
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Metadata is the metadata-<ts>.json document.
type Metadata struct {
	RunID           string                        `json:"run_id"`
	Title           string                        `json:"title"`
	StartedAt       time.Time                     `json:"started_at"`
	FinishedAt      time.Time                     `json:"finished_at"`
	ExecutionTimeMS int64                         `json:"execution_time_ms"`
	Phases          []PhaseMetadata               `json:"phases"`
	Checklist       orchestrator.ChecklistSummary `json:"checklist"`
}

// PhaseMetadata summarizes one phase without its full text.
type PhaseMetadata struct {
	Phase       string `json:"phase"`
	Agent       string `json:"agent"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	TotalTokens int    `json:"total_tokens"`
	Model       string `json:"model,omitempty"`
}

// Save writes all artifacts for a run and returns the folder path.
// Filesystem errors propagate: this is the one failure class that aborts
// a run and reaches the user.
func (w *Writer) Save(ctx context.Context, run *orchestrator.CaseStudyRun) (string, error) {
	if run == nil {
		return "", fmt.Errorf("run is required")
	}

	folder := filepath.Join(w.baseDir, FolderName(run))
	if err := os.MkdirAll(filepath.Join(folder, "agent-debug"), 0o755); err != nil {
		return "", fmt.Errorf("failed to create run folder: %w", err)
	}

	ts := run.StartedAt.Format(timestampLayout)

	metadata, err := json.MarshalIndent(buildMetadata(run), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	g, _ := errgroup.WithContext(ctx)

	write := func(name string, data []byte) {
		path := filepath.Join(folder, name)
		g.Go(func() error {
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
			return nil
		})
	}

	write("original-case-study.md", []byte(run.InputText))
	write(fmt.Sprintf("solution-%s.md", ts), []byte(run.Report))
	write(fmt.Sprintf("metadata-%s.json", ts), metadata)
	write(fmt.Sprintf("quick-summary-%s.md", ts), []byte(w.quickSummary(run)))

	if w.performanceReport && run.Metrics.TotalCalls > 0 {
		perf, err := json.MarshalIndent(run.Metrics, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal performance report: %w", err)
		}
		write(fmt.Sprintf("performance-report-%s.json", ts), perf)
	}

	for _, phase := range run.Phases {
		debug, err := json.MarshalIndent(phase, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal debug for %s: %w", phase.Phase, err)
		}
		write(filepath.Join("agent-debug", phase.AgentName+".json"), debug)
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	w.log.WithRun(run.ID).Info("", "run saved", map[string]interface{}{
		"folder": folder,
		"phases": len(run.Phases),
	})
	return folder, nil
}

// FolderName derives the run folder name: the case-study prefix, the
// timestamp-plus-suffix run ID, then the sanitized title. The random
// suffix inside the run ID keeps two same-second runs apart.
func FolderName(run *orchestrator.CaseStudyRun) string {
	return fmt.Sprintf("case-study-%s-%s", run.ID, SanitizeTitle(run.Title))
}

// SanitizeTitle reduces a title to a filesystem-safe slug.
func SanitizeTitle(title string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxTitleSlug {
		slug = strings.Trim(slug[:maxTitleSlug], "-")
	}
	if slug == "" {
		slug = "case-study"
	}
	return slug
}

func buildMetadata(run *orchestrator.CaseStudyRun) Metadata {
	m := Metadata{
		RunID:           run.ID,
		Title:           run.Title,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		ExecutionTimeMS: run.ExecutionTime().Milliseconds(),
		Checklist:       run.Checklist,
	}
	for _, phase := range run.Phases {
		m.Phases = append(m.Phases, PhaseMetadata{
			Phase:       phase.Phase,
			Agent:       phase.AgentName,
			Status:      string(phase.Status),
			Reason:      string(phase.Reason),
			DurationMS:  phase.Duration().Milliseconds(),
			TotalTokens: phase.Usage.TotalTokens,
			Model:       phase.Model,
		})
	}
	return m
}

// quickSummary extracts headline sections from the assembled report. A
// section no strategy can find renders the not-found marker; readers of
// the summary treat that marker as absence.
func (w *Writer) quickSummary(run *orchestrator.CaseStudyRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Quick Summary: %s\n\n", run.Title)
	fmt.Fprintf(&b, "Run %s completed in %s.\n\n", run.ID, run.ExecutionTime().Round(time.Millisecond))

	for _, section := range w.quickSummarySection {
		fmt.Fprintf(&b, "## %s\n\n", section)
		content, ok := w.extractor.Extract(run.Report, section)
		if !ok {
			content = orchestrator.SectionNotFound
		}
		b.WriteString(firstLines(content, 12))
		b.WriteString("\n\n")
	}

	b.WriteString(orchestrator.FormatChecklistSummary(run.Checklist))
	return b.String()
}

// firstLines truncates content to at most n lines for summary purposes.
func firstLines(content string, n int) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) <= n {
		return strings.TrimSpace(content)
	}
	return strings.Join(lines[:n], "\n") + "\n…"
}
