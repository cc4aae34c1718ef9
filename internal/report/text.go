package report

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Styler applies ANSI color when the sink is a terminal and NO_COLOR
// is unset.
type Styler struct {
	enabled bool
}

func NewStyler(w io.Writer) *Styler {
	f, ok := w.(*os.File)
	return &Styler{
		enabled: ok && term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == "",
	}
}

func (s *Styler) paint(code, text string) string {
	if !s.enabled {
		return text
	}
	return "\x1b[" + code + "m" + text + "\x1b[0m"
}

func (s *Styler) Pass(text string) string { return s.paint("32", text) }
func (s *Styler) Fail(text string) string { return s.paint("31", text) }
func (s *Styler) Warn(text string) string { return s.paint("33", text) }
func (s *Styler) Bold(text string) string { return s.paint("1", text) }

// RenderTest writes the human-readable form of a test run: the
// detection hierarchy, invalid and skipped specs, grouped failure
// details, then the summary block.
func RenderTest(w io.Writer, doc *TestDocument, style *Styler) {
	for _, det := range doc.Detections {
		fmt.Fprintf(w, "%s (%s)\n", style.Bold(det.DetectionID), det.DetectionType)
		for _, tr := range det.TestResults {
			marker := style.Pass("PASS")
			if !tr.Passed {
				marker = style.Fail("FAIL")
			}
			fmt.Fprintf(w, "   [%s] %s\n", marker, tr.Name)
			for _, line := range tr.Details {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
	}

	if len(doc.InvalidSpecs) > 0 {
		fmt.Fprintf(w, "\n%s\n", style.Fail("Invalid specifications"))
		for _, inv := range doc.InvalidSpecs {
			fmt.Fprintf(w, "   %s: %s\n", inv.Filename, inv.Error)
		}
	}
	if len(doc.SkippedTests) > 0 {
		fmt.Fprintf(w, "\n%s\n", style.Warn("Skipped detections"))
		for _, sk := range doc.SkippedTests {
			fmt.Fprintf(w, "   %s (%s): %s\n", sk.DetectionID, sk.Filename, sk.Reason)
		}
	}

	var failing []DetectionDoc
	for _, det := range doc.Detections {
		if len(det.FailedTests) > 0 {
			failing = append(failing, det)
		}
	}
	if len(failing) > 0 {
		fmt.Fprintf(w, "\n%s\n", style.Fail("Failed tests by detection"))
		for _, det := range failing {
			fmt.Fprintf(w, "   %s\n", det.DetectionID)
			for _, name := range det.FailedTests {
				fmt.Fprintf(w, "      - %s\n", name)
			}
		}
	}

	s := doc.Summary
	fmt.Fprintf(w, "\n%s\n", style.Bold("Test summary"))
	fmt.Fprintf(w, "   detections: %d total, %d tested, %d invalid, %d skipped\n",
		s.TotalDetections, s.TestedDetections, s.InvalidSpecs, s.SkippedTests)
	fmt.Fprintf(w, "   tests:      %d total, %d passed, %d failed\n",
		s.TotalTests, s.PassedTests, s.FailedTests)
	if s.DetectionsWithFailures > 0 {
		fmt.Fprintf(w, "   failing:    %d detections with failures\n", s.DetectionsWithFailures)
	}
}

// RenderBench writes the human-readable form of a benchmark run.
func RenderBench(w io.Writer, doc *BenchDocument, style *Styler) {
	fmt.Fprintf(w, "%s (%s)\n", style.Bold(doc.RuleID), doc.LogType)
	fmt.Fprintf(w, "   iterations: %d requested, %d completed\n",
		doc.Iterations, doc.CompletedIterations)
	fmt.Fprintf(w, "   read:       avg %.6fs, median %.6fs\n",
		doc.AvgReadTimeSeconds, doc.MedianReadTimeSeconds)
	fmt.Fprintf(w, "   processing: avg %.6fs, median %.6fs\n",
		doc.AvgProcessingTimeSeconds, doc.MedianProcessingTimeSeconds)
	if doc.Success {
		fmt.Fprintf(w, "   result:     %s\n", style.Pass("success"))
		return
	}
	fmt.Fprintf(w, "   result:     %s", style.Fail("failed"))
	if doc.ErrorMessage != "" {
		fmt.Fprintf(w, " (%s)", doc.ErrorMessage)
	}
	fmt.Fprintln(w)
}

// RenderValidation writes the human-readable form of a validation run.
func RenderValidation(w io.Writer, doc *ValidationDocument, style *Styler) {
	if doc.Success {
		fmt.Fprintln(w, style.Pass(doc.Message))
	} else {
		fmt.Fprintln(w, style.Fail(doc.Message))
	}
	for _, e := range doc.Errors {
		fmt.Fprintf(w, "   %s %s: %s\n", style.Fail("error"), e.Path, e.Message)
	}
	for _, wn := range doc.Warnings {
		fmt.Fprintf(w, "   %s %s: %s\n", style.Warn("warning"), wn.Path, wn.Message)
	}
}
