// Package engine implements the control reconciliation engine.
//
// An Engine is bound to one partition (e.g. aar=2024, skjema=RA-0174) and one
// Connection. Construction loads the control registry: the check ids
// applicable to the partition. Each entry point then:
//
//  1. runs every registered check in the registry, validating its result
//     against the fixed column contract (entity_id, delivery_ref, check_id,
//     value, outcome);
//  2. reads the persisted outcomes of the partition;
//  3. reconciles fresh against persisted rows into a Delta;
//  4. emits at most one parameterized statement per write path.
//
// ExecuteControls writes the Changed delta as a single CASE update keyed on
// the full (check_id, entity_id, delivery_ref) key, refreshing both outcome
// and value.
// InsertNewRows writes the New delta as a single batch insert; on that path a
// failed read of the persisted table is treated as an empty table, because
// the first run into a fresh partition is expected.
//
// Both entry points are idempotent: a second call with no data change in
// between computes an empty delta and issues no write.
//
// The engine is synchronous and keeps no state between calls other than the
// registry. Concurrent calls against the same partition are not coordinated.
package engine
