// Package analysis loads detection specifications from YAML trees and
// models them for the execution pipeline.
package analysis

import (
	"github.com/detlab-project/detlab/internal/logic"
)

// Kind identifies what a specification describes and how its primary
// predicate is interpreted.
type Kind string

const (
	// KindRule matches log events; the predicate returns true when the
	// event should alert.
	KindRule Kind = "rule"
	// KindPolicy checks resource snapshots; the predicate returns true
	// when the resource is compliant.
	KindPolicy Kind = "policy"
	// KindGlobal is shared helper logic referenced by other detections.
	KindGlobal Kind = "global"
	// KindQuery is a saved query definition with no executable logic.
	KindQuery Kind = "query"
)

// PrimaryHook names the hook that carries the kind's verdict.
func (k Kind) PrimaryHook() string {
	if k == KindPolicy {
		return logic.HookPolicy
	}
	return logic.HookRule
}

// RequiresTests reports whether the kind is subject to test coverage
// enforcement. Globals and queries may ship without tests.
func (k Kind) RequiresTests() bool {
	return k == KindRule || k == KindPolicy
}

// Detection is one loaded specification, bound and ready to execute.
type Detection struct {
	ID          string
	Kind        Kind
	DisplayName string
	Enabled     bool
	Severity    string
	Description string
	LogTypes    []string
	Tags        []string

	// SourcePath is the spec file path relative to the loaded tree.
	SourcePath string

	// Meta holds every top-level scalar field of the spec file,
	// stringified, keyed by its YAML name. Filters match against it.
	Meta map[string]string

	Logic logic.Logic
	Tests []UnitTest
}

// MetaValue returns the scalar spec field named key as it appeared in
// the source file. ok is false when the field is absent or not scalar.
func (d *Detection) MetaValue(key string) (string, bool) {
	v, ok := d.Meta[key]
	return v, ok
}

// UnitTest is one declared test case. Expected* fields are optional
// assertions on auxiliary hooks; nil means not asserted.
type UnitTest struct {
	Name           string
	ExpectedResult bool

	// Event is the input payload: the Log for rules, the Resource for
	// policies.
	Event map[string]interface{}

	ExpectedTitle        *string
	ExpectedDedup        *string
	ExpectedSeverity     *string
	ExpectedDestinations []string
	ExpectedGroupingKeys []string
	ExpectedAlertContext map[string]interface{}
}

// InvalidSpec records a file that failed to load or bind. Invalid specs
// never fail a test run's pass/fail tallies; they are reported apart.
type InvalidSpec struct {
	Path string
	Err  error
}

// LoadResult is everything a Load call produced, valid and not.
type LoadResult struct {
	Detections []*Detection
	Invalid    []InvalidSpec
}
