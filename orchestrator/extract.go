// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
)

// SectionNotFound is the marker rendered into reports when no extraction
// strategy matched. Internal callers branch on the boolean result of
// Extract, never on this string.
const SectionNotFound = "Section not found"

// MatchStrategy tags which extraction strategy produced a result.
type MatchStrategy string

const (
	MatchHeader   MatchStrategy = "header"
	MatchNumbered MatchStrategy = "numbered"
	MatchBold     MatchStrategy = "bold"
	MatchKeyword  MatchStrategy = "keyword"
	MatchNone     MatchStrategy = "none"
)

// sectionKeywords associates section names with domain keywords used by
// the keyword-density fallback. Model output is free prose; when no
// heading survives, lines dense in these words are the best guess.
var sectionKeywords = map[string][]string{
	"cost":              {"cost", "price", "pricing", "usd", "$", "monthly", "budget", "reserved", "tier", "sku"},
	"risks":             {"risk", "likelihood", "impact", "mitigation", "threat", "failure", "exposure"},
	"architecture":      {"architecture", "service", "component", "tier", "app service", "database", "network", "gateway"},
	"requirements":      {"requirement", "must", "shall", "should", "sla", "availability", "compliance"},
	"change management": {"change", "migration", "training", "stakeholder", "rollback", "communication", "phase"},
	"diagram":           {"mermaid", "flowchart", "graph", "subgraph", "-->"},
	"executive summary": {"summary", "overview", "solution", "proposes", "recommend"},
}

// fillerPatterns strip conversational lead-ins and sign-offs the model
// tends to wrap sections in.
var fillerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(certainly|sure|absolutely|of course|great question)[!,.]?\s*`),
	regexp.MustCompile(`(?i)^\s*here('s| is| are)\b[^\n:]*[:.]\s*`),
	regexp.MustCompile(`(?i)^\s*as requested[,:]?\s*`),
	regexp.MustCompile(`(?i)\s*(let me know if you (need|have|want)|feel free to|hope (this|that) helps)[^\n]*$`),
}

// Extractor pulls named sections out of unstructured model prose. This is
// heuristic scraping, not parsing: strategies are tried in a fixed order
// and the first non-empty hit wins.
type Extractor struct {
	keywords map[string][]string
}

// NewExtractor returns an extractor with the default keyword table.
func NewExtractor() *Extractor {
	return &Extractor{keywords: sectionKeywords}
}

// Extract returns the content of the named section and whether any
// strategy matched. It never panics for any input.
func (e *Extractor) Extract(text, section string) (string, bool) {
	content, _, ok := e.ExtractTagged(text, section)
	return content, ok
}

// ExtractTagged is Extract plus the strategy that produced the match,
// which the agent-debug artifacts record.
func (e *Extractor) ExtractTagged(text, section string) (string, MatchStrategy, bool) {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(section) == "" {
		return "", MatchNone, false
	}

	cleaned := stripFiller(text)

	type strategy struct {
		tag MatchStrategy
		fn  func(string, string) string
	}
	strategies := []strategy{
		{MatchHeader, matchHeader},
		{MatchNumbered, matchNumbered},
		{MatchBold, matchBold},
		{MatchKeyword, e.matchKeywords},
	}

	for _, s := range strategies {
		if got := strings.TrimSpace(s.fn(cleaned, section)); got != "" {
			return got, s.tag, true
		}
	}
	return "", MatchNone, false
}

// stripFiller removes conversational lead-ins and trailing offers of help.
func stripFiller(text string) string {
	for _, p := range fillerPatterns {
		text = p.ReplaceAllString(text, "")
	}
	return text
}

// matchHeader matches a markdown header of any level naming the section,
// capturing everything up to the next header of the same or higher level.
func matchHeader(text, section string) string {
	pattern := fmt.Sprintf(`(?ims)^(#{1,4})\s*%s\b[^\n]*\n(.*?)(?:^#{1,4}\s|\z)`, regexp.QuoteMeta(section))
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 3 {
		return ""
	}
	return m[2]
}

// matchNumbered matches "3. Section" style headers, with or without a
// leading markdown hash.
func matchNumbered(text, section string) string {
	pattern := fmt.Sprintf(`(?ims)^(?:#{1,4}\s*)?\d+[.)]\s*%s\b[^\n]*\n(.*?)(?:^(?:#{1,4}\s*)?\d+[.)]\s|\z)`, regexp.QuoteMeta(section))
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// matchBold matches a "**Section**" marker line, capturing up to the next
// bold marker line or header.
func matchBold(text, section string) string {
	pattern := fmt.Sprintf(`(?ims)^\*\*%s\*\*[:\s]*\n?(.*?)(?:^\*\*[^\n]+\*\*|^#{1,4}\s|\z)`, regexp.QuoteMeta(section))
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// matchKeywords is the last resort: collect lines dense in the section's
// associated keywords. Requires at least two hits to avoid returning
// arbitrary prose for an unrelated section name.
func (e *Extractor) matchKeywords(text, section string) string {
	keywords, ok := e.keywords[strings.ToLower(section)]
	if !ok {
		// Fall back to the section name itself as a keyword.
		keywords = []string{strings.ToLower(section)}
	}

	var hits []string
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		count := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				count++
			}
		}
		if count >= 2 || (count >= 1 && len(keywords) == 1) {
			hits = append(hits, strings.TrimSpace(line))
		}
	}

	if len(hits) < 2 {
		return ""
	}
	return strings.Join(hits, "\n")
}

// DeriveTitle extracts a report title from the case study: the first
// markdown heading, else the first non-empty line, truncated. Whitespace
// only input yields the literal fallback "case-study".
func DeriveTitle(input string) string {
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		if trimmed == "" {
			continue
		}
		if len(trimmed) > 80 {
			trimmed = trimmed[:80]
		}
		return trimmed
	}
	return "case-study"
}
