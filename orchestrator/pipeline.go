// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"archforge/orchestrator/llm"
	"archforge/shared/logger"
)

// Phase names, in execution order.
const (
	PhaseResearch      = "research"
	PhaseRequirements  = "requirements"
	PhaseArchitecture  = "architecture"
	PhaseDiagram       = "diagram"
	PhaseCost          = "cost"
	PhaseRisk          = "risk"
	PhaseChange        = "change-management"
	PhaseWAF           = "waf-review"
	PhaseDocumentation = "documentation"
)

// PhaseStatus reports how a phase ended.
type PhaseStatus string

const (
	// PhaseCompleted means the agent produced usable content.
	PhaseCompleted PhaseStatus = "completed"

	// PhaseDegraded means fallback text was substituted; the run continues.
	PhaseDegraded PhaseStatus = "degraded"
)

// DegradedReason is the tagged cause of a degraded phase. Keeping it an
// enum lets the report writer decide how to render degradation instead of
// conflating error text with real content.
type DegradedReason string

const (
	ReasonNone          DegradedReason = ""
	ReasonTimeout       DegradedReason = "timeout"
	ReasonUpstreamError DegradedReason = "upstream_error"
	ReasonEmptyResponse DegradedReason = "empty_response"
)

// PhaseResult is the record of one phase invocation.
type PhaseResult struct {
	Phase      string         `json:"phase"`
	AgentName  string         `json:"agent"`
	Text       string         `json:"text"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Status     PhaseStatus    `json:"status"`
	Reason     DegradedReason `json:"reason,omitempty"`
	Model      string         `json:"model,omitempty"`
	Usage      llm.UsageStats `json:"usage"`
	Prompt     string         `json:"-"`
}

// Duration returns the phase wall-clock time.
func (r PhaseResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CaseStudyRun is the complete record of one pipeline execution. It is
// assembled in memory and handed to the report writer; nothing mutates it
// after the run finishes.
type CaseStudyRun struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	InputText  string           `json:"-"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Phases     []PhaseResult    `json:"phases"`
	Report     string           `json:"-"`
	Checklist  ChecklistSummary `json:"checklist"`
	Metrics    MetricsSnapshot  `json:"metrics"`
}

// ExecutionTime returns total run wall-clock time.
func (r *CaseStudyRun) ExecutionTime() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Phase returns the result for a named phase.
func (r *CaseStudyRun) Phase(name string) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Phase == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// phaseFallbacks are substituted when an agent fails or times out. The
// run always produces a report; degraded sections carry these markers.
var phaseFallbacks = map[string]string{
	PhaseResearch:      "Research unavailable: the discovery agent did not return a usable response. The remaining phases work directly from the case study text.",
	PhaseRequirements:  "Requirements analysis unavailable: the requirements agent did not return a usable response.",
	PhaseArchitecture:  "Architecture design unavailable: the solution architect agent did not return a usable response.",
	PhaseDiagram:       "Diagram unavailable: the diagram agent did not return a usable response.",
	PhaseCost:          "Cost analysis unavailable: the cost estimation agent did not return a usable response.",
	PhaseRisk:          "Risk assessment unavailable: the risk agent did not return a usable response.",
	PhaseChange:        "Change management plan unavailable: the change management agent did not return a usable response.",
	PhaseWAF:           "Well-Architected review unavailable: the audit agent did not return a usable response.",
	PhaseDocumentation: "", // documentation falls back to local assembly, not a marker
}

// phaseSections maps phases to the canonical section heading used when the
// pipeline assembles the report locally.
var phaseSections = map[string]string{
	PhaseResearch:     "Research",
	PhaseRequirements: "Requirements",
	PhaseArchitecture: "Architecture",
	PhaseDiagram:      "Diagram",
	PhaseCost:         "Cost",
	PhaseRisk:         "Risks",
	PhaseChange:       "Change Management",
	PhaseWAF:          "Well-Architected Review",
}

// DefaultMaxParallel bounds concurrent completions in the fan-out batch.
const DefaultMaxParallel = 3

// Pipeline drives the fixed phase sequence against a completion provider.
type Pipeline struct {
	provider    llm.Provider
	agents      *AgentTable
	extractor   *Extractor
	metrics     *MetricsCollector
	log         *logger.Logger
	maxParallel int64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithMetrics attaches a metrics collector.
func WithMetrics(m *MetricsCollector) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithMaxParallel bounds the fan-out batch concurrency.
func WithMaxParallel(n int64) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxParallel = n
		}
	}
}

// WithLogger replaces the default structured logger.
func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline creates a pipeline. The agent table must already be
// validated; NewPipeline re-checks as a last line of defense.
func NewPipeline(provider llm.Provider, agents *AgentTable, opts ...PipelineOption) (*Pipeline, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if agents == nil {
		return nil, fmt.Errorf("agent table is required")
	}
	if err := agents.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent table: %w", err)
	}

	p := &Pipeline{
		provider:    provider,
		agents:      agents,
		extractor:   NewExtractor(),
		log:         logger.New("pipeline"),
		maxParallel: DefaultMaxParallel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewRunID derives a run identifier from the start time plus a short
// random suffix. The suffix makes two runs within the same second (and
// same title) land in distinct folders.
func NewRunID(start time.Time) string {
	return fmt.Sprintf("%s-%s", start.Format("2006-01-02T15-04-05"), uuid.NewString()[:8])
}

// Run executes the full phase sequence for one case study. It returns an
// error only for invalid input or cancellation of the parent context;
// gateway failures degrade individual phases instead.
func (p *Pipeline) Run(ctx context.Context, caseStudy string) (*CaseStudyRun, error) {
	if strings.TrimSpace(caseStudy) == "" {
		return nil, fmt.Errorf("case study text must not be empty")
	}

	start := time.Now()
	run := &CaseStudyRun{
		ID:        NewRunID(start),
		Title:     DeriveTitle(caseStudy),
		InputText: caseStudy,
		StartedAt: start,
	}
	runLog := p.log.WithRun(run.ID)

	log.Printf("[Pipeline] Starting run %s (%s)", run.ID, run.Title)

	// Linear track: each phase feeds the next prompt.
	research := p.runPhase(ctx, run, runLog, PhaseResearch, AgentResearcher,
		p.researchPrompt(caseStudy), true)

	requirements := p.runPhase(ctx, run, runLog, PhaseRequirements, AgentRequirementsAnalyst,
		p.requirementsPrompt(caseStudy, research.Text), false)

	architecture := p.runPhase(ctx, run, runLog, PhaseArchitecture, AgentSolutionArchitect,
		p.architecturePrompt(caseStudy, research.Text, requirements.Text), false)

	diagram := p.runPhase(ctx, run, runLog, PhaseDiagram, AgentDiagramDesigner,
		p.diagramPrompt(architecture.Text), false)

	// Fan-out: cost, risk and change management only depend on upstream
	// results, so they run concurrently. Settle-all semantics: a failed
	// branch contributes its fallback text rather than aborting the run.
	batch := p.runParallel(ctx, run, runLog, []parallelPhase{
		{PhaseCost, AgentCostEstimator, p.costPrompt(architecture.Text, requirements.Text)},
		{PhaseRisk, AgentRiskAssessor, p.riskPrompt(architecture.Text, requirements.Text)},
		{PhaseChange, AgentChangeManager, p.changePrompt(caseStudy, architecture.Text)},
	})
	costResult, riskResult, changeResult := batch[0], batch[1], batch[2]

	waf := p.runPhase(ctx, run, runLog, PhaseWAF, AgentWAFAuditor,
		p.wafPrompt(architecture.Text, costResult.Text, riskResult.Text), false)

	doc := p.runPhase(ctx, run, runLog, PhaseDocumentation, AgentTechnicalWriter,
		p.documentationPrompt(run.Title, research.Text, requirements.Text, architecture.Text,
			diagram.Text, costResult.Text, riskResult.Text, changeResult.Text, waf.Text), false)

	if doc.Status == PhaseCompleted {
		run.Report = doc.Text
	} else {
		// Local assembly keeps the "always produce a report" promise when
		// even the writer agent fails.
		run.Report = p.assembleLocally(run)
		log.Printf("[Pipeline] Documentation agent degraded, assembled report locally")
	}

	run.Checklist = ScoreChecklist(run.Report)
	run.FinishedAt = time.Now()
	if p.metrics != nil {
		run.Metrics = p.metrics.Snapshot()
	}

	log.Printf("[Pipeline] Run %s finished in %s (%d/%d checklist items cited)",
		run.ID, run.ExecutionTime().Round(time.Millisecond), run.Checklist.Found, run.Checklist.Total)

	return run, nil
}

// runPhase executes one phase with the agent's timeout. The context
// deadline propagates into the HTTP request, so a timed-out call is
// genuinely aborted rather than left running against quota.
func (p *Pipeline) runPhase(ctx context.Context, run *CaseStudyRun, runLog *logger.Logger,
	phase, agentName, prompt string, retryTransient bool) PhaseResult {

	result := p.invoke(ctx, runLog, phase, agentName, prompt, retryTransient)
	run.Phases = append(run.Phases, result)
	return result
}

func (p *Pipeline) invoke(ctx context.Context, runLog *logger.Logger,
	phase, agentName, prompt string, retryTransient bool) PhaseResult {

	result := PhaseResult{
		Phase:     phase,
		AgentName: agentName,
		StartedAt: time.Now(),
		Prompt:    prompt,
	}

	profile, ok := p.agents.Get(agentName)
	if !ok {
		// Unreachable with the built-in table; guard for override misuse.
		result.FinishedAt = time.Now()
		result.Status = PhaseDegraded
		result.Reason = ReasonUpstreamError
		result.Text = phaseFallbacks[phase]
		return result
	}

	log.Printf("[Pipeline] Phase %s (agent %s) starting", phase, agentName)

	phaseCtx, cancel := context.WithTimeout(ctx, profile.Timeout)
	defer cancel()

	req := llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: profile.SystemPrompt,
		Temperature:  profile.Temperature,
		MaxTokens:    profile.MaxTokens,
	}

	resp, err := p.provider.Complete(phaseCtx, req)
	if err != nil && retryTransient && isTransient(err) && phaseCtx.Err() == nil {
		runLog.Warn(phase, "transient gateway error, retrying once", map[string]interface{}{
			"agent": agentName,
			"error": err.Error(),
		})
		resp, err = p.provider.Complete(phaseCtx, req)
	}

	result.FinishedAt = time.Now()

	switch {
	case err != nil:
		result.Status = PhaseDegraded
		result.Reason = classifyError(phaseCtx, err)
		result.Text = phaseFallbacks[phase]
		runLog.ErrorWithErr(phase, "phase degraded", err, map[string]interface{}{
			"agent":  agentName,
			"reason": string(result.Reason),
		})
		log.Printf("[Pipeline] Phase %s degraded (%s): %v", phase, result.Reason, err)
	case strings.TrimSpace(resp.Content) == "":
		result.Status = PhaseDegraded
		result.Reason = ReasonEmptyResponse
		result.Text = phaseFallbacks[phase]
		log.Printf("[Pipeline] Phase %s degraded: empty response", phase)
	default:
		result.Status = PhaseCompleted
		result.Text = resp.Content
		result.Model = resp.Model
		result.Usage = resp.Usage
		runLog.InfoWithDuration(phase, "phase completed",
			float64(result.Duration().Milliseconds()), map[string]interface{}{
				"agent":  agentName,
				"tokens": resp.Usage.TotalTokens,
			})
		log.Printf("[Pipeline] Phase %s completed in %s (%d tokens)",
			phase, result.Duration().Round(time.Millisecond), resp.Usage.TotalTokens)
	}

	if p.metrics != nil {
		model := result.Model
		if model == "" {
			model = req.Model
		}
		p.metrics.RecordCall(agentName, model, result.Duration(), result.Usage, result.Status == PhaseDegraded)
	}

	return result
}

type parallelPhase struct {
	phase  string
	agent  string
	prompt string
}

// runParallel executes independent phases concurrently, bounded by the
// pipeline's semaphore, and waits for every branch to settle. Results are
// returned in input order.
func (p *Pipeline) runParallel(ctx context.Context, run *CaseStudyRun, runLog *logger.Logger,
	phases []parallelPhase) []PhaseResult {

	results := make([]PhaseResult, len(phases))
	sem := semaphore.NewWeighted(p.maxParallel)
	var wg sync.WaitGroup

	for i, ph := range phases {
		wg.Add(1)
		go func(idx int, ph parallelPhase) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				// Parent cancelled while queued; degrade like a timeout.
				now := time.Now()
				results[idx] = PhaseResult{
					Phase:      ph.phase,
					AgentName:  ph.agent,
					StartedAt:  now,
					FinishedAt: now,
					Status:     PhaseDegraded,
					Reason:     ReasonTimeout,
					Text:       phaseFallbacks[ph.phase],
				}
				return
			}
			defer sem.Release(1)

			results[idx] = p.invoke(ctx, runLog, ph.phase, ph.agent, ph.prompt, false)
		}(i, ph)
	}

	wg.Wait()
	run.Phases = append(run.Phases, results...)
	return results
}

// assembleLocally builds the report from phase results when the writer
// agent itself degraded. Each phase contributes its text under its
// canonical heading unless the text already carries one.
func (p *Pipeline) assembleLocally(run *CaseStudyRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", run.Title)

	order := []string{PhaseResearch, PhaseRequirements, PhaseArchitecture, PhaseDiagram,
		PhaseCost, PhaseRisk, PhaseChange, PhaseWAF}
	for _, phase := range order {
		result, ok := run.Phase(phase)
		if !ok {
			continue
		}
		section := phaseSections[phase]
		if _, found := p.extractor.Extract(result.Text, section); !found {
			fmt.Fprintf(&b, "## %s\n\n", section)
		}
		b.WriteString(strings.TrimSpace(result.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// classifyError maps a gateway failure to a degradation reason.
func classifyError(ctx context.Context, err error) DegradedReason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonUpstreamError
}

// isTransient reports whether an error is worth one immediate retry.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr interface {
		error
		IsRateLimitError() bool
	}
	if errors.As(err, &apiErr) {
		return apiErr.IsRateLimitError()
	}
	// Plain transport failures get one retry.
	return true
}

// Prompt builders. Upstream phase output is inlined as context; degraded
// upstream text flows through unchanged so the model sees the marker.

func (p *Pipeline) researchPrompt(caseStudy string) string {
	return fmt.Sprintf("Case study:\n\n%s\n\nProduce the discovery briefing.", caseStudy)
}

func (p *Pipeline) requirementsPrompt(caseStudy, research string) string {
	return fmt.Sprintf("Case study:\n\n%s\n\nDiscovery briefing:\n\n%s\n\nDerive the requirements.", caseStudy, research)
}

func (p *Pipeline) architecturePrompt(caseStudy, research, requirements string) string {
	return fmt.Sprintf("Case study:\n\n%s\n\nDiscovery briefing:\n\n%s\n\nRequirements:\n\n%s\n\nDesign the target Azure architecture.",
		caseStudy, research, requirements)
}

func (p *Pipeline) diagramPrompt(architecture string) string {
	return fmt.Sprintf("Architecture design:\n\n%s\n\nRender the Mermaid diagram.", architecture)
}

func (p *Pipeline) costPrompt(architecture, requirements string) string {
	return fmt.Sprintf("Architecture design:\n\n%s\n\nRequirements:\n\n%s\n\nEstimate monthly cost.", architecture, requirements)
}

func (p *Pipeline) riskPrompt(architecture, requirements string) string {
	return fmt.Sprintf("Architecture design:\n\n%s\n\nRequirements:\n\n%s\n\nAssess the risks.", architecture, requirements)
}

func (p *Pipeline) changePrompt(caseStudy, architecture string) string {
	return fmt.Sprintf("Case study:\n\n%s\n\nArchitecture design:\n\n%s\n\nPlan the organisational change.", caseStudy, architecture)
}

func (p *Pipeline) wafPrompt(architecture, costText, riskText string) string {
	return fmt.Sprintf("Architecture design:\n\n%s\n\nCost analysis:\n\n%s\n\nRisk assessment:\n\n%s\n\nReview against the Well-Architected pillars, citing checklist identifiers inline.",
		architecture, costText, riskText)
}

func (p *Pipeline) documentationPrompt(title, research, requirements, architecture, diagram, costText, riskText, changeText, wafText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Solution title: %s\n\n", title)
	sections := []struct{ heading, text string }{
		{"Research", research},
		{"Requirements", requirements},
		{"Architecture", architecture},
		{"Diagram", diagram},
		{"Cost", costText},
		{"Risks", riskText},
		{"Change Management", changeText},
		{"Well-Architected Review", wafText},
	}
	for _, s := range sections {
		fmt.Fprintf(&b, "--- Draft section: %s ---\n%s\n\n", s.heading, s.text)
	}
	b.WriteString("Assemble the final blueprint document.")
	return b.String()
}
