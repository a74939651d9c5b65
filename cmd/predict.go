package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/deepdist/tabular/core/dataset"
	"github.com/deepdist/tabular/core/trainer"
	"github.com/deepdist/tabular/pkg/export"
)

var (
	predictCheckpoint string
	predictInput      string
	predictOutput     string
	predictFormat     string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run a checkpoint over a CSV file and export the medians",
	RunE:  runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictCheckpoint, "checkpoint", "", "checkpoint file to load")
	predictCmd.Flags().StringVar(&predictInput, "input", "", "input CSV file")
	predictCmd.Flags().StringVar(&predictOutput, "output", "", "output file (default stdout)")
	predictCmd.Flags().StringVar(&predictFormat, "format", "csv", "output format: csv or json")
	_ = predictCmd.MarkFlagRequired("checkpoint")
	_ = predictCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ds, err := dataset.LoadCSV(predictInput, cfg.Data.Target)
	if err != nil {
		return err
	}
	tr, st, err := buildTrainer(cfg, ds, predictInput, nil)
	if err != nil {
		return err
	}
	if st != nil {
		defer func() { _ = st.Close() }()
	}

	cp, err := trainer.LoadCheckpoint(predictCheckpoint)
	if err != nil {
		return err
	}
	if err := tr.Restore(cp); err != nil {
		return err
	}

	medians, err := tr.Predict(ds.X)
	if err != nil {
		return err
	}
	preds := make([]export.Prediction, ds.Len())
	for i := range preds {
		target := ds.Y.At(i, 0)
		median := medians.At(i, 0)
		preds[i] = export.Prediction{Index: i, Target: target, Median: median, Error: median - target}
	}

	var out io.Writer = os.Stdout
	if predictOutput != "" {
		f, err := os.Create(predictOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	switch predictFormat {
	case "csv":
		return export.WriteCSV(out, preds)
	case "json":
		return export.WriteJSON(out, preds)
	default:
		return fmt.Errorf("unknown format %q", predictFormat)
	}
}
