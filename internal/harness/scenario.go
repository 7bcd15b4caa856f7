package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/controls/internal/engine"
	"github.com/roach88/controls/internal/model"
)

// Scenario defines a reconciliation test scenario: a partition with its
// registry and persisted outcomes, fixed check results, and a sequence of
// engine calls with their expected reports.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Partition is the ordered partition the engine is bound to.
	Partition model.Partition `yaml:"partition"`

	// StalePolicy is passed to the engine; empty means the default.
	StalePolicy string `yaml:"stale_policy,omitempty"`

	// Registry lists the check ids registered for the partition.
	Registry []string `yaml:"registry"`

	// Persisted holds the outcomes already stored before the first step.
	Persisted []Row `yaml:"persisted,omitempty"`

	// Checks are the fixed check implementations, by id.
	Checks []CheckFixture `yaml:"checks"`

	// Steps are executed in order against the same engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final outcomes table and trace.
	// Supported types: outcome, outcome_count, statement_count
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunIDs are handed out to successive engine calls. If empty, every run
	// uses "run-fixed".
	RunIDs []string `yaml:"run_ids,omitempty"`
}

// Row is one outcome row, used for persisted outcomes and check results.
type Row struct {
	Check   string `yaml:"check,omitempty"`
	Entity  string `yaml:"entity"`
	Ref     string `yaml:"ref"`
	Value   any    `yaml:"value,omitempty"`
	Outcome bool   `yaml:"outcome"`
}

// CheckFixture is a check that returns fixed rows or fails with Error.
type CheckFixture struct {
	ID    string `yaml:"id"`
	Rows  []Row  `yaml:"rows,omitempty"`
	Error string `yaml:"error,omitempty"`
}

// Step is one engine call.
type Step struct {
	// Op is "execute", "insert" or "plan".
	Op string `yaml:"op"`

	// Checks replaces fixtures, by id, before this step runs.
	Checks []CheckFixture `yaml:"checks,omitempty"`

	// FailReads lists tables whose reads fail during this step.
	FailReads []string `yaml:"fail_reads,omitempty"`

	// Expect is compared with the step's report.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect holds expected report fields; unset fields are not checked.
type Expect struct {
	Changed   *int `yaml:"changed,omitempty"`
	New       *int `yaml:"new,omitempty"`
	Stale     *int `yaml:"stale,omitempty"`
	Unchanged *int `yaml:"unchanged,omitempty"`

	Updated  *int64 `yaml:"updated,omitempty"`
	Inserted *int64 `yaml:"inserted,omitempty"`
	Deleted  *int64 `yaml:"deleted,omitempty"`

	PersistedReadFailed *bool `yaml:"persisted_read_failed,omitempty"`

	// Error is the expected error kind; see ErrorKinds.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final outcomes table or the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "outcome": the row with Check, Entity, Ref has Outcome (and Value, if set)
	// - "outcome_count": the partition holds Count outcome rows
	// - "statement_count": the trace holds Count statements of Op
	Type string `yaml:"type"`

	Check  string `yaml:"check,omitempty"`
	Entity string `yaml:"entity,omitempty"`
	Ref    string `yaml:"ref,omitempty"`

	Outcome *bool   `yaml:"outcome,omitempty"`
	Value   *string `yaml:"value,omitempty"`

	Op    string `yaml:"op,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// Step operations.
const (
	OpExecute = "execute"
	OpInsert  = "insert"
	OpPlan    = "plan"
)

// Assertion type constants.
const (
	AssertOutcome        = "outcome"
	AssertOutcomeCount   = "outcome_count"
	AssertStatementCount = "statement_count"
)

// ErrorKinds maps the names accepted in Expect.Error to their predicates.
var ErrorKinds = map[string]func(error) bool{
	"configuration":  engine.IsConfigurationError,
	"empty_registry": engine.IsEmptyRegistryError,
	"invalid_check":  engine.IsInvalidCheckError,
	"invalid_result": engine.IsInvalidResultError,
	"check_failed":   engine.IsCheckFailedError,
	"mutation":       engine.IsMutationError,
	"forced_read":    func(err error) bool { return errors.Is(err, ErrForcedRead) },
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario is LoadScenario for in-memory content.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Partition.IsZero() {
		return fmt.Errorf("partition is required and must be non-empty")
	}
	if _, err := engine.ParseStalePolicy(s.StalePolicy); err != nil {
		return fmt.Errorf("stale_policy: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, r := range s.Persisted {
		if r.Check == "" || r.Entity == "" {
			return fmt.Errorf("persisted[%d]: check and entity are required", i)
		}
	}
	if err := validateFixtures("checks", s.Checks); err != nil {
		return err
	}
	declared := make(map[string]bool, len(s.Checks))
	for _, f := range s.Checks {
		declared[model.NormalizeID(f.ID)] = true
	}

	for i, step := range s.Steps {
		switch step.Op {
		case OpExecute, OpInsert, OpPlan:
		case "":
			return fmt.Errorf("steps[%d]: op is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if err := validateFixtures(fmt.Sprintf("steps[%d].checks", i), step.Checks); err != nil {
			return err
		}
		for j, f := range step.Checks {
			if !declared[model.NormalizeID(f.ID)] {
				return fmt.Errorf("steps[%d].checks[%d]: %q is not declared in checks", i, j, f.ID)
			}
		}
		if step.Expect != nil && step.Expect.Error != "" {
			if _, ok := ErrorKinds[step.Expect.Error]; !ok {
				return fmt.Errorf("steps[%d].expect: unknown error kind %q", i, step.Expect.Error)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateFixtures(field string, fixtures []CheckFixture) error {
	seen := make(map[string]bool, len(fixtures))
	for i, f := range fixtures {
		if f.ID == "" {
			return fmt.Errorf("%s[%d]: id is required", field, i)
		}
		if seen[f.ID] {
			return fmt.Errorf("%s[%d]: duplicate id %q", field, i, f.ID)
		}
		seen[f.ID] = true
		for j, r := range f.Rows {
			if r.Check != "" && r.Check != f.ID {
				return fmt.Errorf("%s[%d].rows[%d]: check %q differs from fixture id", field, i, j, r.Check)
			}
			if _, err := model.FromAny(r.Value); err != nil {
				return fmt.Errorf("%s[%d].rows[%d].value: %w", field, i, j, err)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertOutcome:
		if a.Check == "" || a.Entity == "" {
			return fmt.Errorf("assertions[%d]: check and entity are required for outcome", index)
		}
		if a.Outcome == nil && a.Value == nil {
			return fmt.Errorf("assertions[%d]: outcome or value is required for outcome", index)
		}
	case AssertOutcomeCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertStatementCount:
		switch a.Op {
		case TraceQuery, TraceInsert, TraceExec:
		default:
			return fmt.Errorf("assertions[%d]: op must be query, insert or exec for statement_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
