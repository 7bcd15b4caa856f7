// Package queryir provides the abstract statement representation used by the
// control engine.
//
// The engine never formats SQL text. It builds statements from the types in
// this package and hands them to a connection, which compiles them for its
// own dialect (see package querysql) and binds every value as a parameter.
//
// ARCHITECTURE:
//
//	[engine] → [queryir statement] → [connection] → [querysql] → SQL + args
//
// STATEMENTS:
//   - Select: read columns from a table, optionally filtered
//   - CaseUpdate: set columns per row with CASE expressions, scoped by WHERE
//   - Insert: append many rows in one statement
//   - Delete: remove rows matching a filter
//
// PREDICATES:
//   - Equals: column = value
//   - In: column IN (values...)
//   - And / Or: conjunction and disjunction (empty And is true, empty Or is false)
//
// The partition filter is not part of a statement. Connections receive it
// separately (model.PartitionSelect) and AND it onto the statement's filter,
// so every read and write stays scoped to the engine's partition.
package queryir
