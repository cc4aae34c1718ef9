package main

import (
	"fmt"
	"os"

	"github.com/detlab-project/detlab/internal/analysis"
	"github.com/detlab-project/detlab/internal/report"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "validate",
		Short:        "Lint the working set without running any tests",
		RunE:         runValidate,
		SilenceUsage: true,
	}

	cmd.Flags().String("path", "", "detections directory (overrides config)")
	cmd.Flags().Int("minimum-tests", 0, "tests each detection must declare (overrides config)")
	cmd.Flags().String("format", "", "output format: text or json (overrides config)")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("path") {
		cfg.Paths.Detections, _ = cmd.Flags().GetString("path")
	}
	if cmd.Flags().Changed("minimum-tests") {
		cfg.Testing.MinimumTests, _ = cmd.Flags().GetInt("minimum-tests")
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format, _ = cmd.Flags().GetString("format")
	}

	schemas, err := loadSchemaSet(cfg)
	if err != nil {
		return err
	}

	res, err := analysis.Load(os.DirFS(cfg.Paths.Detections))
	if err != nil {
		return fmt.Errorf("detections: %w", err)
	}
	log.Debug().
		Int("loaded", len(res.Detections)).
		Int("invalid", len(res.Invalid)).
		Int("schemas", schemas.Len()).
		Msg("working set resolved")

	errs, warnings := analysis.Lint(res, schemas, cfg.Testing.MinimumTests)
	doc := report.BuildValidation(errs, warnings)

	if cfg.Output.Format == "json" {
		if err := report.EncodeJSON(os.Stdout, doc); err != nil {
			return err
		}
	} else {
		report.RenderValidation(os.Stdout, doc, report.NewStyler(os.Stdout))
	}

	if !doc.Success {
		return fmt.Errorf("validation failed: %d invalid specifications", len(errs))
	}
	return nil
}
