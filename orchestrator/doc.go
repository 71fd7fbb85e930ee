// Copyright 2025 ArchForge
// SPDX-License-Identifier: Apache-2.0

/*
Package orchestrator drives the blueprint generation pipeline.

A run is a fixed sequence of agent phases: research, requirements,
architecture, diagram, a concurrent cost/risk/change-management batch, a
Well-Architected review, and final documentation. Each phase issues one
completion through the llm.Provider gateway using the profile from the
agent table, with a per-phase deadline that aborts the underlying request.

The pipeline favors producing a report over failing fast: a phase whose
call errors or times out is recorded as degraded with a tagged reason and
its hardcoded fallback text, and the run continues. Only invalid input or
output-write failures abort a run.

The package also owns the heuristic section extractor used to pull named
sections back out of model prose, the Well-Architected checklist scorer,
and the per-run metrics collector.
*/
package orchestrator
