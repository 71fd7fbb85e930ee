// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"fmt"
	"sort"
	"strings"
)

// ChecklistItem is one Well-Architected Framework recommendation.
type ChecklistItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Found bool   `json:"found"`
}

// PillarResult aggregates checklist coverage for one pillar.
type PillarResult struct {
	Pillar string          `json:"pillar"`
	Items  []ChecklistItem `json:"items"`
	Found  int             `json:"found"`
	Total  int             `json:"total"`
}

// ChecklistSummary is the derived Well-Architected coverage of a report.
// It is computed by substring search over the report text and is advisory
// only; the authoritative content is the report itself.
type ChecklistSummary struct {
	Pillars []PillarResult `json:"pillars"`
	Found   int            `json:"found"`
	Total   int            `json:"total"`
}

// CoveragePercent returns coverage as a 0-100 percentage.
func (s ChecklistSummary) CoveragePercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Found) / float64(s.Total) * 100
}

// The Azure Well-Architected checklist: 60 recommendations across the
// five pillars, identified by the official pillar-prefixed IDs.
var wafChecklist = map[string][]ChecklistItem{
	"Reliability": {
		{ID: "RE:01", Title: "Design for business requirements"},
		{ID: "RE:02", Title: "Identify and rate user and system flows"},
		{ID: "RE:03", Title: "Perform failure mode analysis"},
		{ID: "RE:04", Title: "Define reliability and recovery targets"},
		{ID: "RE:05", Title: "Add redundancy at different levels"},
		{ID: "RE:06", Title: "Design a scalable partitioning strategy"},
		{ID: "RE:07", Title: "Use self-preservation and self-healing measures"},
		{ID: "RE:08", Title: "Test for resiliency and availability"},
		{ID: "RE:09", Title: "Implement structured disaster recovery"},
		{ID: "RE:10", Title: "Monitor and measure reliability health"},
	},
	"Security": {
		{ID: "SE:01", Title: "Establish a security baseline"},
		{ID: "SE:02", Title: "Maintain a secure development lifecycle"},
		{ID: "SE:03", Title: "Classify and label data"},
		{ID: "SE:04", Title: "Create intentional segmentation"},
		{ID: "SE:05", Title: "Implement strict identity and access management"},
		{ID: "SE:06", Title: "Isolate and filter network traffic"},
		{ID: "SE:07", Title: "Encrypt data in transit and at rest"},
		{ID: "SE:08", Title: "Harden workload resources"},
		{ID: "SE:09", Title: "Protect application secrets"},
		{ID: "SE:10", Title: "Implement a threat monitoring strategy"},
		{ID: "SE:11", Title: "Establish security testing"},
		{ID: "SE:12", Title: "Define incident response procedures"},
	},
	"Cost Optimization": {
		{ID: "CO:01", Title: "Create a culture of financial responsibility"},
		{ID: "CO:02", Title: "Create and maintain a cost model"},
		{ID: "CO:03", Title: "Collect and review cost data"},
		{ID: "CO:04", Title: "Set spending guardrails"},
		{ID: "CO:05", Title: "Get the best rates from providers"},
		{ID: "CO:06", Title: "Align usage to billing increments"},
		{ID: "CO:07", Title: "Optimize component costs"},
		{ID: "CO:08", Title: "Optimize environment costs"},
		{ID: "CO:09", Title: "Optimize flow costs"},
		{ID: "CO:10", Title: "Optimize data costs"},
		{ID: "CO:11", Title: "Optimize code costs"},
		{ID: "CO:12", Title: "Optimize scaling costs"},
		{ID: "CO:13", Title: "Optimize personnel time"},
		{ID: "CO:14", Title: "Consolidate resources and responsibility"},
	},
	"Operational Excellence": {
		{ID: "OE:01", Title: "Embrace DevOps culture"},
		{ID: "OE:02", Title: "Formalize operational tasks"},
		{ID: "OE:03", Title: "Formalize software ideation and planning"},
		{ID: "OE:04", Title: "Enhance software development practices"},
		{ID: "OE:05", Title: "Use infrastructure as code"},
		{ID: "OE:06", Title: "Build a workload supply chain"},
		{ID: "OE:07", Title: "Design a monitoring system"},
		{ID: "OE:08", Title: "Develop an emergency operations practice"},
		{ID: "OE:09", Title: "Automate operational tasks"},
		{ID: "OE:10", Title: "Design for automation upfront"},
		{ID: "OE:11", Title: "Define safe deployment practices"},
		{ID: "OE:12", Title: "Implement failure mitigation strategies"},
	},
	"Performance Efficiency": {
		{ID: "PE:01", Title: "Define performance targets"},
		{ID: "PE:02", Title: "Conduct capacity planning"},
		{ID: "PE:03", Title: "Select the right services"},
		{ID: "PE:04", Title: "Collect performance data"},
		{ID: "PE:05", Title: "Optimize scaling and partitioning"},
		{ID: "PE:06", Title: "Test performance continuously"},
		{ID: "PE:07", Title: "Optimize code and infrastructure"},
		{ID: "PE:08", Title: "Optimize data usage"},
		{ID: "PE:09", Title: "Prioritize critical flows"},
		{ID: "PE:10", Title: "Optimize operational tasks"},
		{ID: "PE:11", Title: "Respond to live performance issues"},
		{ID: "PE:12", Title: "Continuously optimize performance"},
	},
}

// WAFPillars returns the pillar names in stable order.
func WAFPillars() []string {
	pillars := make([]string, 0, len(wafChecklist))
	for pillar := range wafChecklist {
		pillars = append(pillars, pillar)
	}
	sort.Strings(pillars)
	return pillars
}

// WAFChecklistSize returns the total number of checklist items.
func WAFChecklistSize() int {
	total := 0
	for _, items := range wafChecklist {
		total += len(items)
	}
	return total
}

// ScoreChecklist scans report text for checklist identifiers and returns
// per-pillar coverage. Matching is a plain substring search for IDs such
// as "SE:01"; the auditor agent is prompted to cite them inline.
func ScoreChecklist(report string) ChecklistSummary {
	summary := ChecklistSummary{}
	for _, pillar := range WAFPillars() {
		items := wafChecklist[pillar]
		result := PillarResult{Pillar: pillar, Total: len(items)}
		for _, item := range items {
			item.Found = strings.Contains(report, item.ID)
			if item.Found {
				result.Found++
			}
			result.Items = append(result.Items, item)
		}
		summary.Pillars = append(summary.Pillars, result)
		summary.Found += result.Found
		summary.Total += result.Total
	}
	return summary
}

// FormatChecklistSummary renders the summary as a markdown fragment for
// the quick-summary artifact.
func FormatChecklistSummary(s ChecklistSummary) string {
	var b strings.Builder
	b.WriteString("## Well-Architected Coverage\n\n")
	fmt.Fprintf(&b, "Cited %d of %d checklist recommendations (%.0f%%).\n\n", s.Found, s.Total, s.CoveragePercent())
	for _, pillar := range s.Pillars {
		fmt.Fprintf(&b, "- %s: %d/%d\n", pillar.Pillar, pillar.Found, pillar.Total)
	}
	return b.String()
}
