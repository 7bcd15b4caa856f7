package model

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Column names of the check result contract and the outcomes table.
const (
	ColCheckID     = "check_id"
	ColEntityID    = "entity_id"
	ColDeliveryRef = "delivery_ref"
	ColValue       = "value"
	ColOutcome     = "outcome"
)

// ResultColumns is the fixed column contract every check result must satisfy.
var ResultColumns = []string{ColEntityID, ColDeliveryRef, ColCheckID, ColValue, ColOutcome}

// Default table names.
const (
	DefaultRegistryTable = "control_registry"
	DefaultOutcomesTable = "control_outcomes"
)

// Layout names the tables the engine reads and writes.
type Layout struct {
	// RegistryTable lists the check ids applicable per partition.
	RegistryTable string `yaml:"registry" json:"registry"`

	// OutcomesTable holds one persisted row per natural key.
	OutcomesTable string `yaml:"outcomes" json:"outcomes"`
}

// DefaultLayout returns the default table names.
func DefaultLayout() Layout {
	return Layout{RegistryTable: DefaultRegistryTable, OutcomesTable: DefaultOutcomesTable}
}

// WithDefaults fills empty table names with the defaults.
func (l Layout) WithDefaults() Layout {
	if l.RegistryTable == "" {
		l.RegistryTable = DefaultRegistryTable
	}
	if l.OutcomesTable == "" {
		l.OutcomesTable = DefaultOutcomesTable
	}
	return l
}

// Validate checks that both table names are usable identifiers.
func (l Layout) Validate() error {
	if !IsIdentifier(l.RegistryTable) {
		return fmt.Errorf("invalid registry table name %q", l.RegistryTable)
	}
	if !IsIdentifier(l.OutcomesTable) {
		return fmt.Errorf("invalid outcomes table name %q", l.OutcomesTable)
	}
	if l.RegistryTable == l.OutcomesTable {
		return fmt.Errorf("registry and outcomes tables must differ (both %q)", l.RegistryTable)
	}
	return nil
}

// Key identifies one check outcome within a partition.
type Key struct {
	CheckID     string `json:"check_id"`
	EntityID    string `json:"entity_id"`
	DeliveryRef string `json:"delivery_ref"`
}

// String renders the key for logs and errors.
func (k Key) String() string {
	return fmt.Sprintf("(%s, %s, %s)", k.CheckID, k.EntityID, k.DeliveryRef)
}

// Compare orders keys by check, entity, then delivery reference.
func (k Key) Compare(o Key) int {
	return cmp.Or(
		strings.Compare(k.CheckID, o.CheckID),
		strings.Compare(k.EntityID, o.EntityID),
		strings.Compare(k.DeliveryRef, o.DeliveryRef),
	)
}

// NaturalKey is the full key of a persisted row: partition values plus Key.
type NaturalKey struct {
	Partition string // partition values joined by the unit separator
	Key
}

// NewNaturalKey combines ordered partition values with a key.
func NewNaturalKey(partitionValues []string, k Key) NaturalKey {
	return NaturalKey{Partition: strings.Join(partitionValues, "\x1f"), Key: k}
}

// ResultRow is one freshly computed check outcome.
type ResultRow struct {
	CheckID     string `json:"check_id"`
	EntityID    string `json:"entity_id"`
	DeliveryRef string `json:"delivery_ref"`
	Value       Value  `json:"-"`
	Outcome     bool   `json:"outcome"`
}

// Key returns the row's key.
func (r ResultRow) Key() Key {
	return Key{CheckID: r.CheckID, EntityID: r.EntityID, DeliveryRef: r.DeliveryRef}
}

// PersistedRow is the durable counterpart of a ResultRow as read back for
// reconciliation. Value is not read; it is carried, never compared.
type PersistedRow struct {
	Key
	Outcome bool
}

// Delta is the outcome of reconciling fresh results against persisted ones.
// The classes are disjoint. Rows are sorted by key.
type Delta struct {
	// Changed rows exist on both sides with differing outcomes.
	Changed []ResultRow

	// New rows exist only in the fresh result set.
	New []ResultRow

	// Stale keys exist only in the persisted set.
	Stale []Key

	// Unchanged counts keys present on both sides with equal outcomes.
	Unchanged int
}

// IsEmpty reports whether the delta requires no write.
func (d Delta) IsEmpty() bool {
	return len(d.Changed) == 0 && len(d.New) == 0 && len(d.Stale) == 0
}

// SortRows orders result rows by key.
func SortRows(rows []ResultRow) {
	slices.SortStableFunc(rows, func(a, b ResultRow) int {
		return a.Key().Compare(b.Key())
	})
}

// SortKeys orders keys.
func SortKeys(keys []Key) {
	slices.SortFunc(keys, Key.Compare)
}

// IsReservedColumn reports whether name is one of the fixed outcome columns,
// which partition fields may not reuse.
func IsReservedColumn(name string) bool {
	switch name {
	case ColCheckID, ColEntityID, ColDeliveryRef, ColValue, ColOutcome:
		return true
	}
	return false
}
