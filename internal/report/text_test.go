package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/detlab-project/detlab/internal/analysis"
	"github.com/detlab-project/detlab/internal/testrun"
)

// plainStyle returns a styler with color disabled; a bytes.Buffer is
// never a terminal.
func plainStyle() *Styler {
	return NewStyler(&bytes.Buffer{})
}

func TestStyler_DisabledForNonTerminal(t *testing.T) {
	s := plainStyle()
	if got := s.Pass("ok"); got != "ok" {
		t.Errorf("Pass = %q", got)
	}
	if got := s.Fail("bad"); got != "bad" {
		t.Errorf("Fail = %q", got)
	}
}

func TestRenderTest_PassingRun(t *testing.T) {
	var buf bytes.Buffer
	RenderTest(&buf, BuildTest("detections/", mfaRunResult()), plainStyle())
	out := buf.String()

	for _, want := range []string{
		"AWS.IAM.MFAEnabled (policy)",
		"[PASS] Root MFA not enabled fails compliance",
		"[PASS] User MFA not enabled fails compliance",
		"Test summary",
		"detections: 1 total, 1 tested, 0 invalid, 0 skipped",
		"tests:      2 total, 2 passed, 0 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, absent := range []string{"Invalid specifications", "Skipped detections", "Failed tests"} {
		if strings.Contains(out, absent) {
			t.Errorf("output has unexpected section %q", absent)
		}
	}
}

func TestRenderTest_FailureSections(t *testing.T) {
	matched := false
	res := &testrun.RunResult{
		Reports: []testrun.DetectionReport{
			{
				ID: "AWS.Tamper", Kind: analysis.KindRule, Path: "tamper.yml",
				Outcomes: []testrun.TestOutcome{{
					Name:   "wrong expectation",
					Passed: false,
					Hooks: []testrun.HookOutcome{
						{Hook: "rule", Output: false, Matched: &matched},
					},
					Details: []string{"rule: expected true, actual false"},
				}},
			},
			{Path: "broken.yml", LoadError: "missing RuleID"},
		},
		Skipped: []testrun.SkippedDetection{
			{Path: "off.yml", ID: "Off.Rule", Reason: testrun.SkipDisabled},
		},
	}

	var buf bytes.Buffer
	RenderTest(&buf, BuildTest("detections/", res), plainStyle())
	out := buf.String()

	for _, want := range []string{
		"[FAIL] wrong expectation",
		"rule: expected true, actual false",
		"Invalid specifications",
		"broken.yml: missing RuleID",
		"Skipped detections",
		"Off.Rule (off.yml): disabled",
		"Failed tests by detection",
		"- wrong expectation",
		"failing:    1 detections with failures",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderBench(t *testing.T) {
	var buf bytes.Buffer
	RenderBench(&buf, &BenchDocument{
		RuleID: "AWS.Tamper", LogType: "AWS.CloudTrail",
		Iterations: 50, CompletedIterations: 50,
		AvgReadTimeSeconds:          0.000123,
		MedianProcessingTimeSeconds: 0.000045,
		Success:                     true,
	}, plainStyle())
	out := buf.String()

	for _, want := range []string{
		"AWS.Tamper (AWS.CloudTrail)",
		"iterations: 50 requested, 50 completed",
		"avg 0.000123s",
		"result:     success",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	RenderBench(&buf, &BenchDocument{
		RuleID: "AWS.Tamper", Iterations: 5, CompletedIterations: 2,
		Success: false, ErrorMessage: "hook blew up",
	}, plainStyle())
	if !strings.Contains(buf.String(), "failed (hook blew up)") {
		t.Errorf("failure output = %q", buf.String())
	}
}

func TestRenderValidation(t *testing.T) {
	var buf bytes.Buffer
	RenderValidation(&buf, BuildValidation(
		[]analysis.Issue{{Path: "bad.yml", Message: "missing RuleID"}},
		[]analysis.Issue{{Path: "r.yml", Message: "R.One is disabled"}},
	), plainStyle())
	out := buf.String()

	for _, want := range []string{
		"Validation failed",
		"error bad.yml: missing RuleID",
		"warning r.yml: R.One is disabled",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	RenderValidation(&buf, BuildValidation(nil, nil), plainStyle())
	if !strings.Contains(buf.String(), "Validation success") {
		t.Errorf("success output = %q", buf.String())
	}
}
