// Package bench times a single detection's primary hook against
// sampled events, separating retrieval cost from processing cost.
package bench

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/detlab-project/detlab/internal/analysis"
	"github.com/detlab-project/detlab/internal/runner"
)

// Sample is one completed iteration's timings. Index is the iteration
// number the timings came from, zero-based over attempted iterations.
type Sample struct {
	Index          int
	ReadTime       time.Duration
	ProcessingTime time.Duration
}

// Report is the aggregate outcome of one benchmark run. Samples holds
// completed iterations only.
type Report struct {
	RuleID              string
	LogType             string
	Iterations          int
	CompletedIterations int
	Samples             []Sample
	Success             bool
	ErrorMessage        string
	Elapsed             time.Duration
}

// ReadTimes returns the read durations of the completed iterations, in
// iteration order.
func (r *Report) ReadTimes() []time.Duration {
	out := make([]time.Duration, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.ReadTime
	}
	return out
}

// ProcessingTimes returns the processing durations of the completed
// iterations, in iteration order.
func (r *Report) ProcessingTimes() []time.Duration {
	out := make([]time.Duration, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.ProcessingTime
	}
	return out
}

// Runner executes benchmark iterations strictly in sequence.
type Runner struct {
	log zerolog.Logger
}

func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log}
}

// Run performs the requested number of iterations: fetch one sample,
// decode it, invoke the primary hook inline, and record both timings.
// An iteration whose read or execution errors counts as attempted but
// not completed. Success requires at least one completed iteration and
// no execution errors.
func (r *Runner) Run(ctx context.Context, det *analysis.Detection, src SampleSource, logType string, iterations int) *Report {
	rep := &Report{RuleID: det.ID, LogType: logType, Iterations: iterations}
	r.log.Info().
		Str("detection", det.ID).
		Str("log_type", logType).
		Int("iterations", iterations).
		Msg("starting benchmark")

	start := time.Now()
	execFailed := false
	primary := det.Kind.PrimaryHook()
	for i := 0; i < iterations; i++ {
		if ctx.Err() != nil {
			rep.setError(ctx.Err().Error())
			break
		}
		raw, readTime, err := src.Next(ctx)
		if err != nil {
			rep.setError(err.Error())
			continue
		}

		procStart := time.Now()
		var event map[string]interface{}
		if err := json.Unmarshal(raw, &event); err != nil {
			execFailed = true
			rep.setError("decode sample: " + err.Error())
			continue
		}
		_, err = runner.InvokeMatcher(ctx, det.Logic, primary, event)
		procTime := time.Since(procStart)
		if err != nil {
			execFailed = true
			rep.setError(err.Error())
			continue
		}

		rep.Samples = append(rep.Samples, Sample{Index: i, ReadTime: readTime, ProcessingTime: procTime})
		rep.CompletedIterations++
	}
	rep.Elapsed = time.Since(start)
	rep.Success = rep.CompletedIterations > 0 && !execFailed

	r.log.Info().
		Str("detection", det.ID).
		Int("completed", rep.CompletedIterations).
		Bool("success", rep.Success).
		Dur("elapsed", rep.Elapsed).
		Dur("avg_read", Mean(rep.ReadTimes())).
		Dur("avg_processing", Mean(rep.ProcessingTimes())).
		Dur("median_processing", Median(rep.ProcessingTimes())).
		Msg("benchmark finished")
	return rep
}

// setError keeps the first error seen during the run.
func (r *Report) setError(msg string) {
	if r.ErrorMessage == "" {
		r.ErrorMessage = msg
	}
}

// Mean returns the average of ds, or zero for an empty series.
func Mean(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

// Median returns the upper median of ds, the element at index len/2 of
// the sorted series, or zero for an empty series.
func Median(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}
