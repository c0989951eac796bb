package metric

import (
	"fmt"
	"strings"
)

// Comparison directions. Lower means the score is an error measure and must
// not exceed the threshold; Higher means it is a similarity measure and must
// not fall below it.
const (
	DirectionLower  = "lower"
	DirectionHigher = "higher"
)

// NormalizeDirection canonicalizes a direction, treating the empty string as
// DirectionLower.
func NormalizeDirection(direction string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "", DirectionLower:
		return DirectionLower, nil
	case DirectionHigher:
		return DirectionHigher, nil
	default:
		return "", fmt.Errorf("unknown comparison direction %q", direction)
	}
}

// Verdict applies the pass/fail policy. A nil threshold never fails the run.
// The returned error is the failure message shown to the user.
func Verdict(name string, value float64, threshold *float64, direction string) error {
	dir, err := NormalizeDirection(direction)
	if err != nil {
		return err
	}
	if threshold == nil {
		return nil
	}
	switch dir {
	case DirectionLower:
		if value > *threshold {
			return fmt.Errorf("image comparison failed: %s %.6f exceeds threshold %.6f", name, value, *threshold)
		}
	case DirectionHigher:
		if value < *threshold {
			return fmt.Errorf("image comparison failed: %s %.6f below threshold %.6f", name, value, *threshold)
		}
	}
	return nil
}
