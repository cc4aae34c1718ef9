// Package testrun drives unit tests for loaded detections and folds
// the outcomes into a deterministic run result.
package testrun

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/detlab-project/detlab/internal/analysis"
	"github.com/detlab-project/detlab/internal/logic"
	"github.com/detlab-project/detlab/internal/runner"
)

// NoTestsMarker is the synthesized test entry for a rule or policy
// that declares no tests. It always reads as failed.
const NoTestsMarker = "NO_TESTS_CONFIGURED"

// Skip reasons recorded for detections that never execute.
const (
	SkipDisabled        = "disabled"
	SkipNoMatchingTests = "no_matching_tests"
)

// HookOutcome is one hook's contribution to a test verdict. Matched is
// set only when the hook had a declared expectation.
type HookOutcome struct {
	Hook    string
	Output  interface{}
	Err     error
	Matched *bool
}

// TestOutcome is one executed test, or the synthesized no-tests marker.
// Details spells out each mismatch as an expected-vs-actual line.
type TestOutcome struct {
	Name    string
	Passed  bool
	Hooks   []HookOutcome
	Details []string
	Marker  bool
}

// DetectionReport is everything a run produced for one spec file:
// outcomes and coverage findings for a loaded detection, or the load
// error for an invalid one.
type DetectionReport struct {
	Detection      *analysis.Detection
	ID             string
	Kind           analysis.Kind
	Path           string
	Outcomes       []TestOutcome
	CoverageErrors []string

	// LoadError is non-empty for a spec that failed to load or bind.
	// Such reports carry no outcomes and stay out of pass/fail tallies.
	LoadError string
}

// FailedEntries lists the names of failing tests followed by the
// coverage errors. The no-tests marker is not an entry.
func (r *DetectionReport) FailedEntries() []string {
	var out []string
	for _, oc := range r.Outcomes {
		if !oc.Passed && !oc.Marker {
			out = append(out, oc.Name)
		}
	}
	return append(out, r.CoverageErrors...)
}

// Failing reports whether the detection contributes to the failure
// tallies.
func (r *DetectionReport) Failing() bool {
	return len(r.FailedEntries()) > 0
}

// SkippedDetection records a detection that was not executed.
type SkippedDetection struct {
	Path   string
	ID     string
	Reason string
}

// Options tune a test run.
type Options struct {
	// MinimumTests is the coverage floor for rules and policies.
	MinimumTests int
	// TestNames restricts execution to the named tests. Empty runs all.
	TestNames []string
}

// RunResult is the complete, ordered outcome of one run. Summary
// numbers are always derived from it by folding, never carried here.
type RunResult struct {
	RunID   string
	Reports []DetectionReport
	Skipped []SkippedDetection
	Elapsed time.Duration
}

// Orchestrator executes detections in loader order and their tests in
// declaration order. Runs over the same inputs produce the same
// reports.
type Orchestrator struct {
	adapter *runner.Adapter
	opts    Options
	log     zerolog.Logger
}

func New(adapter *runner.Adapter, opts Options, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{adapter: adapter, opts: opts, log: log}
}

// Run executes every enabled detection and folds in the invalid specs.
// Detection reports come first, invalid spec reports after, each group
// in input order.
func (o *Orchestrator) Run(ctx context.Context, dets []*analysis.Detection, invalid []analysis.InvalidSpec) *RunResult {
	start := time.Now()
	res := &RunResult{RunID: uuid.NewString()}
	o.log.Info().
		Str("run_id", res.RunID).
		Int("detections", len(dets)).
		Int("invalid_specs", len(invalid)).
		Msg("starting test run")

	for _, det := range dets {
		if ctx.Err() != nil {
			break
		}
		if !det.Enabled {
			o.log.Debug().Str("detection", det.ID).Msg("skipping disabled detection")
			res.Skipped = append(res.Skipped, SkippedDetection{
				Path: det.SourcePath, ID: det.ID, Reason: SkipDisabled,
			})
			continue
		}
		selected := o.selectTests(det)
		if len(o.opts.TestNames) > 0 && len(det.Tests) > 0 && len(selected) == 0 {
			res.Skipped = append(res.Skipped, SkippedDetection{
				Path: det.SourcePath, ID: det.ID, Reason: SkipNoMatchingTests,
			})
			continue
		}
		res.Reports = append(res.Reports, o.runDetection(ctx, det, selected))
	}
	for _, inv := range invalid {
		res.Reports = append(res.Reports, DetectionReport{
			Path:      inv.Path,
			LoadError: inv.Err.Error(),
		})
	}

	res.Elapsed = time.Since(start)
	o.log.Info().
		Str("run_id", res.RunID).
		Dur("elapsed", res.Elapsed).
		Int("reports", len(res.Reports)).
		Int("skipped", len(res.Skipped)).
		Msg("test run finished")
	return res
}

func (o *Orchestrator) runDetection(ctx context.Context, det *analysis.Detection, tests []analysis.UnitTest) DetectionReport {
	rep := DetectionReport{
		Detection:      det,
		ID:             det.ID,
		Kind:           det.Kind,
		Path:           det.SourcePath,
		CoverageErrors: ValidateCoverage(det, o.opts.MinimumTests),
	}
	if len(det.Tests) == 0 {
		if det.Kind.RequiresTests() {
			rep.Outcomes = append(rep.Outcomes, TestOutcome{
				Name: NoTestsMarker, Passed: false, Marker: true,
			})
		}
		return rep
	}
	for _, tc := range tests {
		oc := o.runTest(ctx, det, tc)
		o.log.Debug().
			Str("detection", det.ID).
			Str("test", oc.Name).
			Bool("passed", oc.Passed).
			Msg("test executed")
		rep.Outcomes = append(rep.Outcomes, oc)
	}
	return rep
}

func (o *Orchestrator) runTest(ctx context.Context, det *analysis.Detection, tc analysis.UnitTest) TestOutcome {
	res := o.adapter.Run(ctx, det.Logic, det.Kind.PrimaryHook(), tc.Event)

	out := TestOutcome{Name: tc.Name}
	primaryOK := res.Primary.Err == nil && res.Matched() == tc.ExpectedResult
	out.Hooks = append(out.Hooks, HookOutcome{
		Hook:    res.Primary.Hook,
		Output:  res.Primary.Output,
		Err:     res.Primary.Err,
		Matched: boolPtr(primaryOK),
	})
	if !primaryOK {
		if res.Primary.Err != nil {
			out.Details = append(out.Details, fmt.Sprintf("%s: %v", res.Primary.Hook, res.Primary.Err))
		} else {
			out.Details = append(out.Details, mismatchDetail(res.Primary.Hook, tc.ExpectedResult, res.Primary.Output))
		}
	}
	passed := primaryOK

	exps := expectations(tc)
	for _, fr := range res.Aux {
		ho := HookOutcome{Hook: fr.Hook, Output: fr.Output, Err: fr.Err}
		if want, ok := exps[fr.Hook]; ok {
			matched := fr.Err == nil && equalValues(fr.Output, want)
			ho.Matched = boolPtr(matched)
			if !matched {
				passed = false
				if fr.Err != nil {
					out.Details = append(out.Details, fmt.Sprintf("%s: %v", fr.Hook, fr.Err))
				} else {
					out.Details = append(out.Details, mismatchDetail(fr.Hook, want, fr.Output))
				}
			}
		}
		out.Hooks = append(out.Hooks, ho)
	}
	// An expectation on a hook the logic never declared fails the test.
	for _, hook := range expectationOrder {
		if _, ok := exps[hook]; !ok {
			continue
		}
		if _, declared := res.Lookup(hook); declared {
			continue
		}
		out.Hooks = append(out.Hooks, HookOutcome{
			Hook:    hook,
			Err:     fmt.Errorf("logic declares no %s hook", hook),
			Matched: boolPtr(false),
		})
		out.Details = append(out.Details, fmt.Sprintf("%s: logic declares no such hook", hook))
		passed = false
	}

	out.Passed = passed
	return out
}

func (o *Orchestrator) selectTests(det *analysis.Detection) []analysis.UnitTest {
	if len(o.opts.TestNames) == 0 {
		return det.Tests
	}
	want := make(map[string]bool, len(o.opts.TestNames))
	for _, n := range o.opts.TestNames {
		want[n] = true
	}
	var out []analysis.UnitTest
	for _, tc := range det.Tests {
		if want[tc.Name] {
			out = append(out, tc)
		}
	}
	return out
}

// expectationOrder fixes the reporting order for expectations on
// undeclared hooks.
var expectationOrder = []string{
	logic.HookTitle,
	logic.HookDedup,
	logic.HookAlertContext,
	logic.HookSeverity,
	logic.HookDestinations,
	logic.HookGroupingKeys,
}

func expectations(tc analysis.UnitTest) map[string]interface{} {
	exps := map[string]interface{}{}
	if tc.ExpectedTitle != nil {
		exps[logic.HookTitle] = *tc.ExpectedTitle
	}
	if tc.ExpectedDedup != nil {
		exps[logic.HookDedup] = *tc.ExpectedDedup
	}
	if tc.ExpectedSeverity != nil {
		exps[logic.HookSeverity] = *tc.ExpectedSeverity
	}
	if tc.ExpectedAlertContext != nil {
		exps[logic.HookAlertContext] = tc.ExpectedAlertContext
	}
	if tc.ExpectedDestinations != nil {
		exps[logic.HookDestinations] = tc.ExpectedDestinations
	}
	if tc.ExpectedGroupingKeys != nil {
		exps[logic.HookGroupingKeys] = tc.ExpectedGroupingKeys
	}
	return exps
}

// mismatchDetail renders a single expected-vs-actual line. Strings are
// quoted so empty and whitespace-only values stay visible.
func mismatchDetail(hook string, want, got interface{}) string {
	return fmt.Sprintf("%s: expected %s, actual %s", hook, formatValue(want), formatValue(got))
}

func formatValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(v)
}

// equalValues compares a hook output against an expectation after
// normalizing both through JSON, so []string and []interface{} forms
// of the same value compare equal.
func equalValues(got, want interface{}) bool {
	return reflect.DeepEqual(jsonNormalize(got), jsonNormalize(want))
}

func jsonNormalize(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
