package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/controls/internal/model"
)

// Env is what a check may use: the connection (read only), the partition
// the engine is bound to and the table layout.
type Env struct {
	Conn      Querier
	Partition model.Partition
	Layout    model.Layout
}

// CheckFunc computes the outcomes of one check for the partition in env.
//
// The returned table must have the columns entity_id, delivery_ref,
// check_id, value and outcome (extra columns are ignored), and no two rows
// may share (check_id, entity_id, delivery_ref).
type CheckFunc func(ctx context.Context, env Env) (*model.Table, error)

// CheckSet maps check ids to their implementations.
//
// Checks are added by explicit registration; the engine invokes exactly the
// registered checks whose id is in the partition's registry.
type CheckSet struct {
	funcs map[string]CheckFunc
}

// NewCheckSet creates an empty set.
func NewCheckSet() *CheckSet {
	return &CheckSet{funcs: make(map[string]CheckFunc)}
}

// Register adds a check. Ids are normalized with model.NormalizeID.
// Registering the same id twice is an error.
//
// A nil fn is accepted here and reported as InvalidCheckError when the
// check is due to run.
func (s *CheckSet) Register(id string, fn CheckFunc) error {
	norm := model.NormalizeID(id)
	if norm == "" {
		return fmt.Errorf("register check: empty id")
	}
	if _, exists := s.funcs[norm]; exists {
		return fmt.Errorf("register check: duplicate id %q", norm)
	}
	s.funcs[norm] = fn
	return nil
}

// MustRegister is Register for static check tables. Panics on error.
func (s *CheckSet) MustRegister(id string, fn CheckFunc) *CheckSet {
	if err := s.Register(id, fn); err != nil {
		panic(err)
	}
	return s
}

// Lookup returns the implementation registered for id.
func (s *CheckSet) Lookup(id string) (CheckFunc, bool) {
	fn, ok := s.funcs[model.NormalizeID(id)]
	return fn, ok
}

// IDs returns the registered ids in sorted order.
func (s *CheckSet) IDs() []string {
	ids := make([]string, 0, len(s.funcs))
	for id := range s.funcs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered checks.
func (s *CheckSet) Len() int {
	return len(s.funcs)
}
