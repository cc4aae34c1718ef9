package report

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/detlab-project/detlab/internal/analysis"
	"github.com/detlab-project/detlab/internal/bench"
	"github.com/detlab-project/detlab/internal/testrun"
)

// TestDocument is the structured form of a test run.
type TestDocument struct {
	Summary      Summary          `json:"summary"`
	Detections   []DetectionDoc   `json:"detections"`
	InvalidSpecs []InvalidSpecDoc `json:"invalid_specs"`
	SkippedTests []SkippedDoc     `json:"skipped_tests"`
}

type DetectionDoc struct {
	DetectionID   string          `json:"detection_id"`
	DetectionType string          `json:"detection_type"`
	TestResults   []TestResultDoc `json:"test_results"`
	FailedTests   []string        `json:"failed_tests"`
}

// TestResultDoc carries one test verdict. Details hold the
// expected-vs-actual lines for the text renderer; the structured
// document reports actual values through the functions map instead.
type TestResultDoc struct {
	Name      string                 `json:"name"`
	Passed    bool                   `json:"passed"`
	Functions map[string]FunctionDoc `json:"functions"`
	Details   []string               `json:"-"`
}

// FunctionDoc is one hook's recorded outcome. Matched appears only for
// hooks that had a declared expectation; the error field only when the
// hook failed.
type FunctionDoc struct {
	Matched *bool       `json:"matched,omitempty"`
	Output  interface{} `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type InvalidSpecDoc struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type SkippedDoc struct {
	Filename    string `json:"filename"`
	DetectionID string `json:"detection_id"`
	Reason      string `json:"reason"`
}

// BuildTest assembles the structured document for a test run. Every
// array is materialized, so empty collections encode as [] rather than
// null.
func BuildTest(path string, res *testrun.RunResult) *TestDocument {
	doc := &TestDocument{
		Summary:      Summarize(path, res),
		Detections:   []DetectionDoc{},
		InvalidSpecs: []InvalidSpecDoc{},
		SkippedTests: []SkippedDoc{},
	}
	for i := range res.Reports {
		rep := &res.Reports[i]
		if rep.LoadError != "" {
			doc.InvalidSpecs = append(doc.InvalidSpecs, InvalidSpecDoc{
				Filename: rep.Path, Error: rep.LoadError,
			})
			continue
		}
		doc.Detections = append(doc.Detections, detectionDoc(rep))
	}
	for _, sk := range res.Skipped {
		doc.SkippedTests = append(doc.SkippedTests, SkippedDoc{
			Filename: sk.Path, DetectionID: sk.ID, Reason: sk.Reason,
		})
	}
	return doc
}

func detectionDoc(rep *testrun.DetectionReport) DetectionDoc {
	d := DetectionDoc{
		DetectionID:   rep.ID,
		DetectionType: string(rep.Kind),
		TestResults:   make([]TestResultDoc, 0, len(rep.Outcomes)),
		FailedTests:   []string{},
	}
	d.FailedTests = append(d.FailedTests, rep.FailedEntries()...)
	for _, oc := range rep.Outcomes {
		d.TestResults = append(d.TestResults, testResultDoc(oc))
	}
	return d
}

// testResultDoc keeps only hooks that produced an output or an error;
// undeclared hooks never ran and have nothing to report.
func testResultDoc(oc testrun.TestOutcome) TestResultDoc {
	tr := TestResultDoc{
		Name:      oc.Name,
		Passed:    oc.Passed,
		Functions: map[string]FunctionDoc{},
		Details:   oc.Details,
	}
	for _, h := range oc.Hooks {
		if h.Output == nil && h.Err == nil {
			continue
		}
		fd := FunctionDoc{Matched: h.Matched, Output: normalizeOutput(h.Output)}
		if h.Err != nil {
			fd.Error = h.Err.Error()
		}
		tr.Functions[h.Hook] = fd
	}
	return tr
}

// normalizeOutput re-decodes string outputs that look like JSON
// documents so the structured report nests them instead of quoting.
func normalizeOutput(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return v
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return v
	}
	return parsed
}

// BenchDocument is the structured form of a benchmark run.
type BenchDocument struct {
	RuleID                      string    `json:"rule_id"`
	LogType                     string    `json:"log_type"`
	Iterations                  int       `json:"iterations"`
	CompletedIterations         int       `json:"completed_iterations"`
	ReadTimeNanos               []int64   `json:"read_time_nanos"`
	ProcessingTimeNanos         []int64   `json:"processing_time_nanos"`
	ReadTimeSeconds             []float64 `json:"read_time_seconds"`
	ProcessingTimeSeconds       []float64 `json:"processing_time_seconds"`
	AvgReadTimeSeconds          float64   `json:"avg_read_time_seconds"`
	AvgProcessingTimeSeconds    float64   `json:"avg_processing_time_seconds"`
	MedianReadTimeSeconds       float64   `json:"median_read_time_seconds"`
	MedianProcessingTimeSeconds float64   `json:"median_processing_time_seconds"`
	Success                     bool      `json:"success"`
	ErrorMessage                string    `json:"error_message,omitempty"`
}

// BuildBench assembles the structured document for a benchmark run.
// Statistics cover completed iterations only; an empty series yields
// zero statistics.
func BuildBench(rep *bench.Report) *BenchDocument {
	doc := &BenchDocument{
		RuleID:              rep.RuleID,
		LogType:             rep.LogType,
		Iterations:          rep.Iterations,
		CompletedIterations: rep.CompletedIterations,
		ReadTimeNanos:       make([]int64, 0, len(rep.Samples)),
		ProcessingTimeNanos: make([]int64, 0, len(rep.Samples)),
		Success:             rep.Success,
		ErrorMessage:        rep.ErrorMessage,
	}
	for _, s := range rep.Samples {
		doc.ReadTimeNanos = append(doc.ReadTimeNanos, s.ReadTime.Nanoseconds())
		doc.ProcessingTimeNanos = append(doc.ProcessingTimeNanos, s.ProcessingTime.Nanoseconds())
	}
	doc.ReadTimeSeconds = toSeconds(doc.ReadTimeNanos)
	doc.ProcessingTimeSeconds = toSeconds(doc.ProcessingTimeNanos)
	doc.AvgReadTimeSeconds = meanFloat(doc.ReadTimeSeconds)
	doc.AvgProcessingTimeSeconds = meanFloat(doc.ProcessingTimeSeconds)
	doc.MedianReadTimeSeconds = medianFloat(doc.ReadTimeSeconds)
	doc.MedianProcessingTimeSeconds = medianFloat(doc.ProcessingTimeSeconds)
	return doc
}

func toSeconds(nanos []int64) []float64 {
	out := make([]float64, len(nanos))
	for i, n := range nanos {
		out[i] = float64(n) / 1e9
	}
	return out
}

func meanFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// medianFloat takes the upper median, the element at index len/2 of
// the sorted series.
func medianFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

// ValidationDocument is the structured form of a validation run.
type ValidationDocument struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Errors   []analysis.Issue `json:"errors"`
	Warnings []analysis.Issue `json:"warnings"`
}

// BuildValidation assembles the validation document. Success means no
// errors; warnings alone do not fail validation.
func BuildValidation(errs, warnings []analysis.Issue) *ValidationDocument {
	doc := &ValidationDocument{
		Success:  len(errs) == 0,
		Errors:   append([]analysis.Issue{}, errs...),
		Warnings: append([]analysis.Issue{}, warnings...),
	}
	if doc.Success {
		doc.Message = "Validation success"
	} else {
		doc.Message = "Validation failed"
	}
	return doc
}

// EncodeJSON writes v as two-space indented JSON followed by a
// newline.
func EncodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
