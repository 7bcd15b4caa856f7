package queryir

import (
	"errors"
	"fmt"

	"github.com/roach88/controls/internal/model"
)

// Validate checks the structural rules every backend relies on:
//   - table and column names are plain identifiers
//   - Select lists explicit columns
//   - CaseUpdate has at least one arm, one extra value per extra column
//     and a Where clause
//   - Insert rows match the column count
//   - Delete has a Where clause
//
// Values are never inspected; they are always bound as parameters.
func Validate(stmt any) error {
	v := &validator{}
	switch s := stmt.(type) {
	case Select:
		v.validateSelect(s)
	case *Select:
		v.validateSelect(*s)
	case CaseUpdate:
		v.validateCaseUpdate(s)
	case *CaseUpdate:
		v.validateCaseUpdate(*s)
	case Insert:
		v.validateInsert(s)
	case *Insert:
		v.validateInsert(*s)
	case Delete:
		v.validateDelete(s)
	case *Delete:
		v.validateDelete(*s)
	case nil:
		v.add("nil statement")
	default:
		v.add("unsupported statement type: %T", stmt)
	}
	return errors.Join(v.errs...)
}

// validator accumulates errors during traversal.
type validator struct {
	errs []error
}

func (v *validator) add(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) identifier(kind, name string) {
	if !model.IsIdentifier(name) {
		v.add("invalid %s name %q", kind, name)
	}
}

func (v *validator) validateSelect(s Select) {
	v.identifier("table", s.From)
	if len(s.Columns) == 0 {
		v.add("select from %s: explicit columns required", s.From)
	}
	for _, c := range s.Columns {
		v.identifier("column", c)
	}
	for _, c := range s.OrderBy {
		v.identifier("order by column", c)
	}
	if s.Filter != nil {
		v.validatePredicate(s.Filter)
	}
}

func (v *validator) validateCaseUpdate(u CaseUpdate) {
	v.identifier("table", u.Table)
	v.identifier("column", u.Column)
	for _, c := range u.Also {
		v.identifier("column", c)
		if c == u.Column {
			v.add("update %s: column %s set twice", u.Table, c)
		}
	}
	if len(u.Arms) == 0 {
		v.add("update %s: at least one CASE arm required", u.Table)
	}
	for i, arm := range u.Arms {
		if len(arm.Also) != len(u.Also) {
			v.add("update %s: arm %d has %d extra values for %d extra columns", u.Table, i, len(arm.Also), len(u.Also))
		}
		if arm.When == nil {
			v.add("update %s: arm %d has no condition", u.Table, i)
			continue
		}
		v.validatePredicate(arm.When)
	}
	if u.Where == nil {
		v.add("update %s: WHERE clause required", u.Table)
		return
	}
	v.validatePredicate(u.Where)
}

func (v *validator) validateInsert(ins Insert) {
	v.identifier("table", ins.Table)
	if len(ins.Columns) == 0 {
		v.add("insert into %s: explicit columns required", ins.Table)
	}
	for _, c := range ins.Columns {
		v.identifier("column", c)
	}
	for i, row := range ins.Rows {
		if len(row) != len(ins.Columns) {
			v.add("insert into %s: row %d has %d values, want %d", ins.Table, i, len(row), len(ins.Columns))
		}
	}
}

func (v *validator) validateDelete(d Delete) {
	v.identifier("table", d.Table)
	if d.Where == nil {
		v.add("delete from %s: WHERE clause required", d.Table)
		return
	}
	v.validatePredicate(d.Where)
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.identifier("column", pred.Field)
	case *Equals:
		v.identifier("column", pred.Field)
	case In:
		v.identifier("column", pred.Field)
	case *In:
		v.identifier("column", pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case nil:
		v.add("nil predicate")
	default:
		v.add("unsupported predicate type: %T", p)
	}
}
