// Package checks provides the built-in, configuration-declared checks.
//
// A check reads one source table of the partition (the source must carry the
// partition columns) and flags each (entity, delivery) row:
//
//   - missing: the column is NULL or blank;
//   - range:   the column is numeric and outside [min, max], or not numeric.
//
// Checks written in Go are registered directly on an engine.CheckSet; Build
// adds the declared ones to the same set.
package checks
