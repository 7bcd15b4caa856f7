package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/queryir"
	"github.com/roach88/controls/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s: %s %v\n", i+1, ev.Step, ev.Op, ev.SQL, ev.Args)
		}
	}
	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store     *store.Store
	Ctx       context.Context
	Layout    model.Layout
	Partition model.Partition
}

// outcomes reads the partition's outcome rows directly, bypassing the trace.
func (a *AssertionContext) outcomes() (*model.Table, error) {
	q := queryir.Select{
		From:    a.Layout.OutcomesTable,
		Columns: []string{model.ColCheckID, model.ColEntityID, model.ColDeliveryRef, model.ColValue, model.ColOutcome},
		OrderBy: []string{model.ColCheckID, model.ColEntityID, model.ColDeliveryRef},
	}
	return a.Store.Query(a.Ctx, q, a.Partition.Select())
}

// assertOutcome checks the persisted row with the assertion's key.
func assertOutcome(actx *AssertionContext, a Assertion) error {
	t, err := actx.outcomes()
	if err != nil {
		return fmt.Errorf("outcome assertion: %w", err)
	}
	key := model.Key{CheckID: a.Check, EntityID: a.Entity, DeliveryRef: a.Ref}

	for i := 0; i < t.Len(); i++ {
		if t.Get(i, model.ColCheckID).String() != key.CheckID ||
			t.Get(i, model.ColEntityID).String() != key.EntityID ||
			t.Get(i, model.ColDeliveryRef).String() != key.DeliveryRef {
			continue
		}

		if a.Outcome != nil {
			got, err := model.AsBool(t.Get(i, model.ColOutcome))
			if err != nil {
				return fmt.Errorf("outcome assertion: %s: %w", key, err)
			}
			if got != *a.Outcome {
				return &AssertionError{
					Type:     AssertOutcome,
					Expected: fmt.Sprintf("%s outcome = %t", key, *a.Outcome),
					Actual:   fmt.Sprintf("outcome = %t", got),
				}
			}
		}
		if a.Value != nil {
			got := t.Get(i, model.ColValue)
			if model.IsNull(got) || got.String() != *a.Value {
				return &AssertionError{
					Type:     AssertOutcome,
					Expected: fmt.Sprintf("%s value = %q", key, *a.Value),
					Actual:   fmt.Sprintf("value = %s %q", model.TypeName(got), got.String()),
				}
			}
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertOutcome,
		Expected: fmt.Sprintf("row %s in %s", key, actx.Layout.OutcomesTable),
		Actual:   "row not found",
	}
}

// assertOutcomeCount checks the number of outcome rows in the partition.
func assertOutcomeCount(actx *AssertionContext, a Assertion) error {
	t, err := actx.outcomes()
	if err != nil {
		return fmt.Errorf("outcome_count assertion: %w", err)
	}
	if t.Len() != a.Count {
		return &AssertionError{
			Type:     AssertOutcomeCount,
			Expected: fmt.Sprintf("%d rows in %s for %s", a.Count, actx.Layout.OutcomesTable, actx.Partition),
			Actual:   fmt.Sprintf("%d rows", t.Len()),
		}
	}
	return nil
}

// assertStatementCount checks how many statements of one kind were traced.
func assertStatementCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertStatementCount,
			Expected: fmt.Sprintf("%d %s statements", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d %s statements", count, a.Op),
			Trace:    trace,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for outcome assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutcome, AssertOutcomeCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else if assertion.Type == AssertOutcome {
				err = assertOutcome(actx, assertion)
			} else {
				err = assertOutcomeCount(actx, assertion)
			}
		case AssertStatementCount:
			err = assertStatementCount(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
