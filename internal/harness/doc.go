// Package harness runs reconciliation scenarios against an in-memory store
// and records every statement the engine issues.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	partition:
//	  aar: "2024"
//	registry: [omsetning_mangler]
//	persisted:
//	  - { check: omsetning_mangler, entity: e1, ref: r1, outcome: false }
//	checks:
//	  - id: omsetning_mangler
//	    rows:
//	      - { entity: e1, ref: r1, value: "150", outcome: true }
//	steps:
//	  - op: execute
//	    expect: { changed: 1, updated: 1 }
//	  - op: insert
//	    fail_reads: [control_outcomes]
//	    expect: { error: mutation }
//	assertions:
//	  - type: outcome
//	    check: omsetning_mangler
//	    entity: e1
//	    ref: r1
//	    outcome: true
//
// Steps run in order against one engine. A step's checks replace fixtures
// by id before it runs; fail_reads makes reads of the named tables fail for
// that step only.
//
// # Assertion Types
//
//   - outcome: the stored row for a key has the given outcome or value
//   - outcome_count: the partition holds exactly count outcome rows
//   - statement_count: the trace holds exactly count statements of op
//
// # Deterministic Testing
//
// Run ids come from scenario.run_ids, check results are fixed, and SQL is
// rendered with the store's dialect, so traces are identical across runs
// and can be compared with golden files (see RunWithGolden).
package harness
