package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/detlab-project/detlab/internal/analysis"
	"github.com/detlab-project/detlab/internal/bench"
	"github.com/detlab-project/detlab/internal/report"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bench",
		Short:        "Measure matcher throughput for one detection over sample logs",
		RunE:         runBench,
		SilenceUsage: true,
	}

	cmd.Flags().String("detection", "", "id of the detection to benchmark (required)")
	cmd.Flags().Int("iterations", 50, "number of samples to push through the matcher")
	cmd.Flags().String("path", "", "detections directory (overrides config)")
	cmd.Flags().String("samples", "", "sample logs directory (overrides config)")
	cmd.Flags().String("format", "", "output format: text or json (overrides config)")
	_ = cmd.MarkFlagRequired("detection")
	return cmd
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("detection")
	iterations, _ := cmd.Flags().GetInt("iterations")
	if cmd.Flags().Changed("path") {
		cfg.Paths.Detections, _ = cmd.Flags().GetString("path")
	}
	if cmd.Flags().Changed("samples") {
		cfg.Paths.Samples, _ = cmd.Flags().GetString("samples")
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format, _ = cmd.Flags().GetString("format")
	}
	if iterations < 1 {
		return fmt.Errorf("--iterations must be positive, got %d", iterations)
	}

	res, err := analysis.Load(os.DirFS(cfg.Paths.Detections))
	if err != nil {
		return fmt.Errorf("detections: %w", err)
	}

	var det *analysis.Detection
	for _, d := range res.Detections {
		if d.ID == id {
			det = d
			break
		}
	}
	if det == nil {
		return fmt.Errorf("detection %q not found in %s", id, cfg.Paths.Detections)
	}
	if det.Logic == nil {
		return fmt.Errorf("detection %q has no executable logic", id)
	}
	if len(det.LogTypes) != 1 {
		return fmt.Errorf("detection %q declares %d log types, benchmark requires exactly one", id, len(det.LogTypes))
	}
	logType := det.LogTypes[0]

	schemas, err := loadSchemaSet(cfg)
	if err != nil {
		return err
	}
	if schemas.Len() > 0 && !schemas.Has(logType) {
		log.Warn().Str("log_type", logType).Msg("log type has no schema")
	}

	sampleDir := filepath.Join(cfg.Paths.Samples, logType)
	src, err := bench.NewDirSource(os.DirFS(sampleDir))
	if err != nil {
		return fmt.Errorf("samples for %s: %w", logType, err)
	}
	log.Debug().Str("dir", sampleDir).Int("files", src.Len()).Msg("sample source ready")

	rep := bench.NewRunner(log).Run(cmd.Context(), det, src, logType, iterations)
	doc := report.BuildBench(rep)

	// Results always land on disk so a run can be compared with later ones.
	writer, err := report.NewWriter(report.GenerateOutputDir(cfg.Output.Dir))
	if err != nil {
		return err
	}
	saved, err := writer.SaveJSON(fmt.Sprintf("benchmark_%s.json", det.ID), doc)
	if err != nil {
		return err
	}
	log.Info().Str("path", saved).Msg("benchmark results saved")

	if cfg.Output.Format == "json" {
		if err := report.EncodeJSON(os.Stdout, doc); err != nil {
			return err
		}
	} else {
		report.RenderBench(os.Stdout, doc, report.NewStyler(os.Stdout))
	}

	if !rep.Success {
		if rep.ErrorMessage != "" {
			return fmt.Errorf("benchmark failed: %s", rep.ErrorMessage)
		}
		return fmt.Errorf("benchmark failed: no iterations completed")
	}
	return nil
}
