package engine

import "fmt"

// StalePolicy decides what ExecuteControls does with persisted keys that no
// longer appear in the fresh results.
type StalePolicy string

const (
	// StaleIgnore leaves stale rows untouched.
	StaleIgnore StalePolicy = "ignore"

	// StaleReport counts and logs stale rows without writing.
	StaleReport StalePolicy = "report"

	// StaleDelete removes stale rows with one batched DELETE after the update.
	StaleDelete StalePolicy = "delete"
)

// DefaultStalePolicy is used when no policy is configured.
const DefaultStalePolicy = StaleIgnore

// ParseStalePolicy accepts "", "ignore", "report" and "delete".
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch p := StalePolicy(s); p {
	case "":
		return DefaultStalePolicy, nil
	case StaleIgnore, StaleReport, StaleDelete:
		return p, nil
	default:
		return "", fmt.Errorf("unknown stale policy %q (want ignore, report or delete)", s)
	}
}
