package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepdist/tabular/infra/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded training runs",
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("no run store configured (store.path)")
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}
	fmt.Printf("%-36s  %-8s  %-10s  %6s  %12s  %s\n", "RUN", "MODEL", "STATUS", "EPOCHS", "FINAL LOSS", "DATASET")
	for _, r := range runs {
		fmt.Printf("%-36s  %-8s  %-10s  %6d  %12.6f  %s\n", r.ID, r.Model, r.Status, r.Epochs, r.FinalLoss, r.Dataset)
	}
	return nil
}
