package checks

import (
	"errors"
	"fmt"

	"github.com/roach88/controls/internal/engine"
	"github.com/roach88/controls/internal/model"
)

// Kind selects a built-in check implementation.
type Kind string

const (
	KindMissing Kind = "missing"
	KindRange   Kind = "range"
)

// Default source column names for the entity and its delivery reference.
const (
	DefaultEntityColumn   = "entity_id"
	DefaultDeliveryColumn = "delivery_ref"
)

// Spec declares one built-in check.
type Spec struct {
	ID     string `yaml:"id" json:"id"`
	Kind   Kind   `yaml:"kind" json:"kind"`
	Source string `yaml:"source" json:"source"`
	Column string `yaml:"column" json:"column"`

	// Min and Max bound a range check; either may be omitted.
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`

	EntityColumn   string `yaml:"entity_column,omitempty" json:"entity_column,omitempty"`
	DeliveryColumn string `yaml:"delivery_column,omitempty" json:"delivery_column,omitempty"`
}

// WithDefaults fills the entity and delivery column names.
func (s Spec) WithDefaults() Spec {
	s.ID = model.NormalizeID(s.ID)
	if s.EntityColumn == "" {
		s.EntityColumn = DefaultEntityColumn
	}
	if s.DeliveryColumn == "" {
		s.DeliveryColumn = DefaultDeliveryColumn
	}
	return s
}

// Validate reports every problem with the declaration.
func (s Spec) Validate() error {
	s = s.WithDefaults()
	var errs []error
	if s.ID == "" {
		errs = append(errs, fmt.Errorf("id is required"))
	}
	switch s.Kind {
	case KindMissing:
	case KindRange:
		if s.Min == nil && s.Max == nil {
			errs = append(errs, fmt.Errorf("range check needs min or max"))
		}
		if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
			errs = append(errs, fmt.Errorf("min %g is greater than max %g", *s.Min, *s.Max))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown kind %q (want %s or %s)", s.Kind, KindMissing, KindRange))
	}
	for _, f := range []struct{ field, name string }{
		{"source", s.Source},
		{"column", s.Column},
		{"entity_column", s.EntityColumn},
		{"delivery_column", s.DeliveryColumn},
	} {
		if !model.IsIdentifier(f.name) {
			errs = append(errs, fmt.Errorf("%s: invalid identifier %q", f.field, f.name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("check %q: %w", s.ID, err)
	}
	return nil
}

// Func returns the check implementation for the declaration.
func (s Spec) Func() (engine.CheckFunc, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s = s.WithDefaults()
	switch s.Kind {
	case KindMissing:
		return Missing(s), nil
	default:
		return Range(s), nil
	}
}

// Build registers every declared check on set. Ids must not collide with
// checks already in the set.
func Build(set *engine.CheckSet, specs []Spec) error {
	for _, s := range specs {
		fn, err := s.Func()
		if err != nil {
			return err
		}
		if err := set.Register(s.ID, fn); err != nil {
			return err
		}
	}
	return nil
}
