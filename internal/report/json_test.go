package report

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/detlab-project/detlab/internal/analysis"
	"github.com/detlab-project/detlab/internal/bench"
	"github.com/detlab-project/detlab/internal/testrun"
)

func passingOutcome(name, hook string) testrun.TestOutcome {
	matched := true
	return testrun.TestOutcome{
		Name:   name,
		Passed: true,
		Hooks: []testrun.HookOutcome{
			{Hook: hook, Output: true, Matched: &matched},
		},
	}
}

// mfaRunResult models a single policy with two passing compliance
// tests.
func mfaRunResult() *testrun.RunResult {
	return &testrun.RunResult{
		RunID: "run-1",
		Reports: []testrun.DetectionReport{{
			ID:   "AWS.IAM.MFAEnabled",
			Kind: analysis.KindPolicy,
			Path: "aws_iam_mfa.yml",
			Outcomes: []testrun.TestOutcome{
				passingOutcome("Root MFA not enabled fails compliance", "policy"),
				passingOutcome("User MFA not enabled fails compliance", "policy"),
			},
		}},
	}
}

func TestBuildTest_ScenarioSummary(t *testing.T) {
	doc := BuildTest("detections/", mfaRunResult())
	want := Summary{
		Path:                   "detections/",
		ReturnCode:             0,
		TotalDetections:        1,
		TestedDetections:       1,
		TotalTests:             2,
		PassedTests:            2,
		FailedTests:            0,
		InvalidSpecs:           0,
		SkippedTests:           0,
		DetectionsWithFailures: 0,
	}
	if doc.Summary != want {
		t.Errorf("summary = %+v, want %+v", doc.Summary, want)
	}
}

func TestBuildTest_DocumentShape(t *testing.T) {
	data, err := json.Marshal(BuildTest("detections/", mfaRunResult()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"summary", "detections", "invalid_specs", "skipped_tests"} {
		if _, ok := top[key]; !ok {
			t.Errorf("document missing %q", key)
		}
	}

	var sum map[string]interface{}
	if err := json.Unmarshal(top["summary"], &sum); err != nil {
		t.Fatal(err)
	}
	wantKeys := []string{
		"path", "return_code", "total_detections", "tested_detections",
		"total_tests", "passed_tests", "failed_tests", "invalid_specs",
		"skipped_tests", "detections_with_failures",
	}
	if len(sum) != len(wantKeys) {
		t.Errorf("summary has %d keys, want %d: %v", len(sum), len(wantKeys), sum)
	}
	for _, key := range wantKeys {
		if _, ok := sum[key]; !ok {
			t.Errorf("summary missing %q", key)
		}
	}

	var dets []map[string]json.RawMessage
	if err := json.Unmarshal(top["detections"], &dets); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"detection_id", "detection_type", "test_results", "failed_tests"} {
		if _, ok := dets[0][key]; !ok {
			t.Errorf("detection entry missing %q", key)
		}
	}

	var results []map[string]json.RawMessage
	if err := json.Unmarshal(dets[0]["test_results"], &results); err != nil {
		t.Fatal(err)
	}
	var funcs map[string]map[string]interface{}
	if err := json.Unmarshal(results[0]["functions"], &funcs); err != nil {
		t.Fatal(err)
	}
	policy, ok := funcs["policy"]
	if !ok {
		t.Fatalf("functions = %v", funcs)
	}
	if policy["matched"] != true || policy["output"] != true {
		t.Errorf("policy function = %v", policy)
	}
	if _, ok := policy["error"]; ok {
		t.Error("clean hook should omit the error field")
	}
}

func TestBuildTest_EmptyCollectionsEncodeAsArrays(t *testing.T) {
	data, err := json.MarshalIndent(BuildTest("d/", mfaRunResult()), "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"invalid_specs": []`, `"skipped_tests": []`, `"failed_tests": []`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("document missing %s:\n%s", want, data)
		}
	}
}

func TestBuildTest_InvalidAndSkipped(t *testing.T) {
	res := &testrun.RunResult{
		Reports: []testrun.DetectionReport{
			{Path: "broken.yml", LoadError: "parse yaml: boom"},
		},
		Skipped: []testrun.SkippedDetection{
			{Path: "off.yml", ID: "Off.Rule", Reason: testrun.SkipDisabled},
		},
	}
	doc := BuildTest("d/", res)

	if len(doc.Detections) != 0 {
		t.Errorf("detections = %+v", doc.Detections)
	}
	wantInvalid := []InvalidSpecDoc{{Filename: "broken.yml", Error: "parse yaml: boom"}}
	if !reflect.DeepEqual(doc.InvalidSpecs, wantInvalid) {
		t.Errorf("invalid_specs = %+v", doc.InvalidSpecs)
	}
	wantSkipped := []SkippedDoc{{Filename: "off.yml", DetectionID: "Off.Rule", Reason: "disabled"}}
	if !reflect.DeepEqual(doc.SkippedTests, wantSkipped) {
		t.Errorf("skipped_tests = %+v", doc.SkippedTests)
	}
	if doc.Summary.ReturnCode != 1 || doc.Summary.InvalidSpecs != 1 || doc.Summary.TotalDetections != 2 {
		t.Errorf("summary = %+v", doc.Summary)
	}
}

func TestBuildTest_NoTestsMarker(t *testing.T) {
	res := &testrun.RunResult{
		Reports: []testrun.DetectionReport{{
			ID:   "Bare.Rule",
			Kind: analysis.KindRule,
			Path: "bare.yml",
			Outcomes: []testrun.TestOutcome{
				{Name: testrun.NoTestsMarker, Passed: false, Marker: true},
			},
			CoverageErrors: []string{"insufficient test coverage, 1 tests required but only 0 found."},
		}},
	}
	doc := BuildTest("d/", res)

	tr := doc.Detections[0].TestResults[0]
	if tr.Name != "NO_TESTS_CONFIGURED" || tr.Passed || len(tr.Functions) != 0 {
		t.Errorf("marker result = %+v", tr)
	}
	data, _ := json.MarshalIndent(doc, "", "  ")
	if !strings.Contains(string(data), `"functions": {}`) {
		t.Errorf("marker functions not encoded as empty object:\n%s", data)
	}
	// The marker counts as a failed test, the coverage error as the
	// failed-tests entry.
	if doc.Summary.FailedTests != 1 || doc.Summary.DetectionsWithFailures != 1 {
		t.Errorf("summary = %+v", doc.Summary)
	}
	if got := doc.Detections[0].FailedTests; len(got) != 1 || !strings.Contains(got[0], "insufficient test coverage") {
		t.Errorf("failed_tests = %q", got)
	}
}

func TestBuildTest_ErroredHookRecorded(t *testing.T) {
	matched := true
	res := &testrun.RunResult{
		Reports: []testrun.DetectionReport{{
			ID:   "Err.Rule",
			Kind: analysis.KindRule,
			Path: "err.yml",
			Outcomes: []testrun.TestOutcome{{
				Name:   "title breaks",
				Passed: true,
				Hooks: []testrun.HookOutcome{
					{Hook: "rule", Output: true, Matched: &matched},
					{Hook: "title", Err: errors.New("no user_name")},
				},
			}},
		}},
	}
	doc := BuildTest("d/", res)
	title, ok := doc.Detections[0].TestResults[0].Functions["title"]
	if !ok {
		t.Fatal("errored title hook dropped from functions")
	}
	if title.Error != "no user_name" || title.Output != nil {
		t.Errorf("title = %+v", title)
	}
}

func TestNormalizeOutput(t *testing.T) {
	nested := normalizeOutput(`{"ip": "1.2.3.4"}`)
	m, ok := nested.(map[string]interface{})
	if !ok || m["ip"] != "1.2.3.4" {
		t.Errorf("nested = %#v", nested)
	}
	if got := normalizeOutput("{not valid json"); got != "{not valid json" {
		t.Errorf("invalid json altered: %#v", got)
	}
	if got := normalizeOutput("plain string"); got != "plain string" {
		t.Errorf("plain string altered: %#v", got)
	}
	if got := normalizeOutput(42); got != 42 {
		t.Errorf("non-string altered: %#v", got)
	}
}

func TestBuildBench_Statistics(t *testing.T) {
	rep := &bench.Report{
		RuleID:              "AWS.CloudTrail.Tamper",
		LogType:             "AWS.CloudTrail",
		Iterations:          2,
		CompletedIterations: 2,
		Samples: []bench.Sample{
			{ReadTime: 100 * time.Nanosecond, ProcessingTime: 200 * time.Nanosecond},
			{ReadTime: 300 * time.Nanosecond, ProcessingTime: 400 * time.Nanosecond},
		},
		Success: true,
	}
	doc := BuildBench(rep)

	if !reflect.DeepEqual(doc.ReadTimeNanos, []int64{100, 300}) {
		t.Errorf("read nanos = %v", doc.ReadTimeNanos)
	}
	if !reflect.DeepEqual(doc.ProcessingTimeNanos, []int64{200, 400}) {
		t.Errorf("processing nanos = %v", doc.ProcessingTimeNanos)
	}
	r0, r1 := 100.0/1e9, 300.0/1e9
	if !reflect.DeepEqual(doc.ReadTimeSeconds, []float64{r0, r1}) {
		t.Errorf("read seconds = %v", doc.ReadTimeSeconds)
	}
	if doc.AvgReadTimeSeconds != (r0+r1)/2 {
		t.Errorf("avg read = %v", doc.AvgReadTimeSeconds)
	}
	// Upper median of an even-length series.
	if doc.MedianReadTimeSeconds != r1 {
		t.Errorf("median read = %v", doc.MedianReadTimeSeconds)
	}
	if doc.MedianProcessingTimeSeconds != 400.0/1e9 {
		t.Errorf("median processing = %v", doc.MedianProcessingTimeSeconds)
	}
}

func TestBuildBench_EmptySeries(t *testing.T) {
	doc := BuildBench(&bench.Report{
		RuleID: "R", LogType: "L", Iterations: 3, Success: false,
	})
	if doc.AvgReadTimeSeconds != 0 || doc.MedianProcessingTimeSeconds != 0 {
		t.Errorf("stats = %+v", doc)
	}
	data, _ := json.MarshalIndent(doc, "", "  ")
	for _, want := range []string{
		`"read_time_nanos": []`, `"processing_time_nanos": []`,
		`"read_time_seconds": []`, `"processing_time_seconds": []`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("missing %s:\n%s", want, data)
		}
	}
	if strings.Contains(string(data), "error_message") {
		t.Error("empty error_message should be omitted")
	}
}

func TestBuildBench_ErrorMessageSurfaces(t *testing.T) {
	doc := BuildBench(&bench.Report{RuleID: "R", ErrorMessage: "hook blew up"})
	data, _ := json.Marshal(doc)
	if !strings.Contains(string(data), `"error_message":"hook blew up"`) {
		t.Errorf("document = %s", data)
	}
}

func TestBuildValidation(t *testing.T) {
	ok := BuildValidation(nil, []analysis.Issue{{Path: "r.yml", Message: "R.One is disabled"}})
	if !ok.Success || ok.Message != "Validation success" {
		t.Errorf("doc = %+v", ok)
	}
	if len(ok.Errors) != 0 || len(ok.Warnings) != 1 {
		t.Errorf("issues = %+v / %+v", ok.Errors, ok.Warnings)
	}

	bad := BuildValidation([]analysis.Issue{{Path: "bad.yml", Message: "missing RuleID"}}, nil)
	if bad.Success || bad.Message != "Validation failed" {
		t.Errorf("doc = %+v", bad)
	}

	data, _ := json.MarshalIndent(ok, "", "  ")
	if !strings.Contains(string(data), `"errors": []`) {
		t.Errorf("empty errors should encode as []:\n%s", data)
	}
}

func TestSummarize_ReturnCodes(t *testing.T) {
	clean := &testrun.RunResult{Reports: []testrun.DetectionReport{{
		ID: "A", Kind: analysis.KindRule,
		Outcomes: []testrun.TestOutcome{passingOutcome("t", "rule")},
	}}}
	if s := Summarize("d/", clean); s.ReturnCode != 0 {
		t.Errorf("clean rc = %d", s.ReturnCode)
	}

	invalid := &testrun.RunResult{Reports: []testrun.DetectionReport{
		{Path: "bad.yml", LoadError: "boom"},
	}}
	if s := Summarize("d/", invalid); s.ReturnCode != 1 {
		t.Errorf("invalid rc = %d", s.ReturnCode)
	}

	// Coverage failure alone fails the run even with every test passing.
	coverage := &testrun.RunResult{Reports: []testrun.DetectionReport{{
		ID: "A", Kind: analysis.KindRule,
		Outcomes:       []testrun.TestOutcome{passingOutcome("t", "rule")},
		CoverageErrors: []string{"insufficient test coverage, 2 tests required but only 1 found."},
	}}}
	s := Summarize("d/", coverage)
	if s.ReturnCode != 1 || s.FailedTests != 0 || s.DetectionsWithFailures != 1 {
		t.Errorf("coverage summary = %+v", s)
	}
}
