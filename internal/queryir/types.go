package queryir

import "github.com/roach88/controls/internal/model"

// Query is a read statement. Sealed to this package.
type Query interface {
	queryNode()
}

// Mutation is a write statement. Sealed to this package.
type Mutation interface {
	mutationNode()
}

// Predicate is a filter condition. Sealed to this package.
type Predicate interface {
	predicateNode()
}

// Select reads columns from a table.
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <order_by>
//
// Columns must be explicit; there is no SELECT *.
type Select struct {
	From    string
	Columns []string
	Filter  Predicate // nil = no filter
	OrderBy []string  // optional, ascending
}

func (Select) queryNode() {}

// CaseArm is one WHEN ... THEN ... branch of a CaseUpdate.
//
// Also holds the values for CaseUpdate.Also, position for position.
type CaseArm struct {
	When Predicate
	Then model.Value
	Also []model.Value
}

// CaseUpdate sets one or more columns per matched row in a single statement.
//
//	UPDATE <table> SET <column> = CASE
//	  WHEN <arm.When> THEN <arm.Then>
//	  ...
//	  ELSE <column> END,
//	  <also[0]> = CASE WHEN <arm.When> THEN <arm.Also[0]> ... ELSE <also[0]> END
//	WHERE <where>
//
// Every column shares the same arms, so a row takes all its values from the
// first arm it matches. Rows matched by Where but by no arm keep their
// current values.
type CaseUpdate struct {
	Table  string
	Column string
	Also   []string
	Arms   []CaseArm
	Where  Predicate
}

func (CaseUpdate) mutationNode() {}

// Insert appends rows to a table in one statement.
// With SkipConflicts, rows violating a unique key are silently skipped
// (ON CONFLICT DO NOTHING, understood by both SQLite and Postgres).
type Insert struct {
	Table         string
	Columns       []string
	Rows          [][]model.Value
	SkipConflicts bool
}

func (Insert) mutationNode() {}

// Delete removes the rows matching Where.
// A Delete without Where is rejected by Validate.
type Delete struct {
	Table string
	Where Predicate
}

func (Delete) mutationNode() {}

// Equals is column = value.
type Equals struct {
	Field string
	Value model.Value
}

func (Equals) predicateNode() {}

// In is column IN (values...). An empty list matches nothing.
type In struct {
	Field  string
	Values []model.Value
}

func (In) predicateNode() {}

// And is true when every predicate is true. Empty And is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is true when any predicate is true. Empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// KeyMatch builds the predicate matching a set of column/value pairs,
// e.g. check_id = ? AND entity_id = ? AND delivery_ref = ?.
func KeyMatch(columns []string, values []model.Value) And {
	preds := make([]Predicate, len(columns))
	for i, c := range columns {
		preds[i] = Equals{Field: c, Value: values[i]}
	}
	return And{Predicates: preds}
}
