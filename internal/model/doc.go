// Package model provides the data types shared by the control engine.
//
// This package contains type definitions and small helpers only. All other
// internal packages import model; model imports nothing internal, so it stays
// the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - A Partition is ordered and immutable once constructed
//   - Check, entity and delivery identifiers are plain strings
//   - Outcomes are booleans; anything boolean-like is normalized by AsBool
//   - Tables preserve row order but never interpret it
package model
