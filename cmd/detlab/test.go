package main

import (
	"fmt"
	"os"

	"github.com/detlab-project/detlab/internal/analysis"
	"github.com/detlab-project/detlab/internal/filter"
	"github.com/detlab-project/detlab/internal/report"
	"github.com/detlab-project/detlab/internal/runner"
	"github.com/detlab-project/detlab/internal/testrun"
	"github.com/spf13/cobra"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "test",
		Short:        "Run the unit tests declared by each detection",
		RunE:         runTest,
		SilenceUsage: true,
	}

	cmd.Flags().String("path", "", "detections directory (overrides config)")
	cmd.Flags().StringArray("filter", nil, "select detections by KEY=VALUE[,VALUE...] (repeatable, ANDed)")
	cmd.Flags().StringArray("test-names", nil, "run only tests with these names (repeatable)")
	cmd.Flags().Int("minimum-tests", 0, "tests each detection must declare (overrides config)")
	cmd.Flags().String("format", "", "output format: text or json (overrides config)")
	return cmd
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("path") {
		cfg.Paths.Detections, _ = cmd.Flags().GetString("path")
	}
	if cmd.Flags().Changed("filter") {
		cfg.Testing.Filters, _ = cmd.Flags().GetStringArray("filter")
	}
	if cmd.Flags().Changed("test-names") {
		cfg.Testing.TestNames, _ = cmd.Flags().GetStringArray("test-names")
	}
	if cmd.Flags().Changed("minimum-tests") {
		cfg.Testing.MinimumTests, _ = cmd.Flags().GetInt("minimum-tests")
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format, _ = cmd.Flags().GetString("format")
	}

	// Filter clauses are checked before anything is loaded so a malformed
	// clause aborts without evaluating a single detection.
	flt, err := filter.Parse(cfg.Testing.Filters)
	if err != nil {
		return err
	}

	res, err := analysis.Load(os.DirFS(cfg.Paths.Detections))
	if err != nil {
		return fmt.Errorf("detections: %w", err)
	}

	schemas, err := loadSchemaSet(cfg)
	if err != nil {
		return err
	}

	selected := flt.Select(res.Detections)
	log.Debug().
		Int("loaded", len(res.Detections)).
		Int("selected", len(selected)).
		Int("invalid", len(res.Invalid)).
		Str("filter", flt.String()).
		Msg("working set resolved")

	if schemas.Len() > 0 {
		for _, det := range selected {
			for _, lt := range det.LogTypes {
				if !schemas.Has(lt) {
					log.Warn().Str("detection", det.ID).Str("log_type", lt).Msg("log type has no schema")
				}
			}
		}
	}

	adapter := &runner.Adapter{Timeout: cfg.HookTimeout()}
	orch := testrun.New(adapter, testrun.Options{
		MinimumTests: cfg.Testing.MinimumTests,
		TestNames:    cfg.Testing.TestNames,
	}, log)

	result := orch.Run(cmd.Context(), selected, res.Invalid)
	doc := report.BuildTest(cfg.Paths.Detections, result)

	if cfg.Output.Format == "json" {
		if err := report.EncodeJSON(os.Stdout, doc); err != nil {
			return err
		}
	} else {
		report.RenderTest(os.Stdout, doc, report.NewStyler(os.Stdout))
	}

	if doc.Summary.ReturnCode != 0 {
		return fmt.Errorf("run failed: %d/%d tests failed, %d detections with failures, %d invalid specs",
			doc.Summary.FailedTests, doc.Summary.TotalTests,
			doc.Summary.DetectionsWithFailures, doc.Summary.InvalidSpecs)
	}
	return nil
}
