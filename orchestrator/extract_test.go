// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_HeaderMatch(t *testing.T) {
	e := NewExtractor()

	text := "## Architecture\nUse App Service and SQL Database.\n## Cost\nAbout $500/month."

	got, strategy, ok := e.ExtractTagged(text, "Architecture")
	require.True(t, ok)
	assert.Equal(t, MatchHeader, strategy)
	assert.Equal(t, "Use App Service and SQL Database.", got)

	got, ok = e.Extract(text, "Cost")
	require.True(t, ok)
	assert.Equal(t, "About $500/month.", got)
}

func TestExtract_CaseInsensitiveHeader(t *testing.T) {
	e := NewExtractor()

	got, ok := e.Extract("### RISKS\nVendor lock-in is a concern.\n", "Risks")
	require.True(t, ok)
	assert.Equal(t, "Vendor lock-in is a concern.", got)
}

func TestExtract_NumberedMatch(t *testing.T) {
	e := NewExtractor()

	text := "1. Requirements\nThe app must scale.\n2. Architecture\nUse AKS.\n"

	got, strategy, ok := e.ExtractTagged(text, "Architecture")
	require.True(t, ok)
	assert.Equal(t, MatchNumbered, strategy)
	assert.Equal(t, "Use AKS.", got)
}

func TestExtract_BoldMatch(t *testing.T) {
	e := NewExtractor()

	text := "**Cost**\nRoughly $1,200 per month.\n**Risks**\nNone identified.\n"

	got, strategy, ok := e.ExtractTagged(text, "Cost")
	require.True(t, ok)
	assert.Equal(t, MatchBold, strategy)
	assert.Equal(t, "Roughly $1,200 per month.", got)
}

func TestExtract_KeywordFallback(t *testing.T) {
	e := NewExtractor()

	// No headers at all; cost-dense lines should be collected.
	text := strings.Join([]string{
		"The proposal is straightforward.",
		"The monthly cost for the App Service tier is around $300 USD.",
		"Reserved pricing reduces the monthly budget further.",
		"Everyone agreed on the approach.",
	}, "\n")

	got, strategy, ok := e.ExtractTagged(text, "Cost")
	require.True(t, ok)
	assert.Equal(t, MatchKeyword, strategy)
	assert.Contains(t, got, "$300")
	assert.NotContains(t, got, "Everyone agreed")
}

func TestExtract_NotFound(t *testing.T) {
	e := NewExtractor()

	_, strategy, ok := e.ExtractTagged("Nothing relevant here.", "Cost")
	assert.False(t, ok)
	assert.Equal(t, MatchNone, strategy)
}

func TestExtract_StripsFiller(t *testing.T) {
	e := NewExtractor()

	text := "Certainly! Here's the design you asked for:\n## Architecture\nUse Azure Functions.\nLet me know if you need anything else."

	got, ok := e.Extract(text, "Architecture")
	require.True(t, ok)
	assert.Equal(t, "Use Azure Functions.", got)
}

func TestExtract_NeverPanics(t *testing.T) {
	e := NewExtractor()

	inputs := []struct{ text, section string }{
		{"", ""},
		{"", "Cost"},
		{"## Cost\n", ""},
		{strings.Repeat("#", 10000), "Cost"},
		{"## (weird [section\n", "(weird [section"},
		{"\x00\xff binary-ish", "Cost"},
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _ = e.Extract(in.text, in.section)
		})
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"markdown heading", "# Acme Corp Migration\nbody", "Acme Corp Migration"},
		{"first line", "Acme Corp needs a web app on Azure.\nmore", "Acme Corp needs a web app on Azure."},
		{"skips blank lines", "\n\n  \n## Retail Platform\n", "Retail Platform"},
		{"whitespace only", "  ", "case-study"},
		{"empty", "", "case-study"},
		{"hashes only", "###\n", "case-study"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.input))
		})
	}
}

func TestDeriveTitle_Truncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	assert.Len(t, DeriveTitle(long), 80)
}
