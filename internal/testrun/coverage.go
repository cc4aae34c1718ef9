package testrun

import (
	"fmt"

	"github.com/detlab-project/detlab/internal/analysis"
)

// ValidateCoverage checks a detection's declared test set against the
// coverage policy. The full declared set is judged even when a name
// filter restricts which tests execute. Kinds that do not require
// tests are never checked.
//
// With a minimum of two or more, the set must also hold at least one
// expected-true and one expected-false test.
func ValidateCoverage(det *analysis.Detection, minimumTests int) []string {
	if !det.Kind.RequiresTests() {
		return nil
	}
	var errs []string
	if len(det.Tests) < minimumTests {
		errs = append(errs, fmt.Sprintf(
			"insufficient test coverage, %d tests required but only %d found.",
			minimumTests, len(det.Tests)))
	}
	if minimumTests >= 2 {
		var hasTrue, hasFalse bool
		for _, tc := range det.Tests {
			if tc.ExpectedResult {
				hasTrue = true
			} else {
				hasFalse = true
			}
		}
		if !hasTrue || !hasFalse {
			errs = append(errs,
				"insufficient test coverage: expected at least one passing and one failing test.")
		}
	}
	return errs
}
