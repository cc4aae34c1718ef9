// Package report renders test, benchmark, and validation outcomes as
// text or structured JSON documents and persists them to disk.
package report

import "github.com/detlab-project/detlab/internal/testrun"

// Summary is the aggregate view of one test run. Field names are part
// of the structured output contract.
type Summary struct {
	Path                   string `json:"path"`
	ReturnCode             int    `json:"return_code"`
	TotalDetections        int    `json:"total_detections"`
	TestedDetections       int    `json:"tested_detections"`
	TotalTests             int    `json:"total_tests"`
	PassedTests            int    `json:"passed_tests"`
	FailedTests            int    `json:"failed_tests"`
	InvalidSpecs           int    `json:"invalid_specs"`
	SkippedTests           int    `json:"skipped_tests"`
	DetectionsWithFailures int    `json:"detections_with_failures"`
}

// Summarize folds the run into its counters. The summary is always
// derived from the report sequence, so it cannot drift from the
// detailed results.
func Summarize(path string, res *testrun.RunResult) Summary {
	s := Summary{Path: path}
	for i := range res.Reports {
		rep := &res.Reports[i]
		if rep.LoadError != "" {
			s.InvalidSpecs++
			continue
		}
		s.TestedDetections++
		for _, oc := range rep.Outcomes {
			s.TotalTests++
			if oc.Passed {
				s.PassedTests++
			} else {
				s.FailedTests++
			}
		}
		if rep.Failing() {
			s.DetectionsWithFailures++
		}
	}
	s.SkippedTests = len(res.Skipped)
	s.TotalDetections = s.TestedDetections + s.InvalidSpecs + s.SkippedTests
	if s.FailedTests > 0 || s.InvalidSpecs > 0 || s.DetectionsWithFailures > 0 {
		s.ReturnCode = 1
	}
	return s
}
