package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/deepdist/tabular/core/trainer"
	"github.com/deepdist/tabular/infra/logger"
)

var evalCheckpoint string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a checkpoint on the configured dataset",
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalCheckpoint, "checkpoint", "", "checkpoint file to load")
	_ = evaluateCmd.MarkFlagRequired("checkpoint")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("evaluate-command")

	train, val, name, err := loadData(cfg)
	if err != nil {
		return err
	}
	tr, st, err := buildTrainer(cfg, train, name, nil)
	if err != nil {
		return err
	}
	if st != nil {
		defer func() { _ = st.Close() }()
	}

	cp, err := trainer.LoadCheckpoint(evalCheckpoint)
	if err != nil {
		return err
	}
	if err := tr.Restore(cp); err != nil {
		return err
	}

	scaledVal, err := tr.Scaler().Apply(val)
	if err != nil {
		return err
	}
	value, terms := tr.Evaluate(scaledVal)
	log.Infof("checkpoint %s on %s: loss %.6f over %d rows", evalCheckpoint, name, value, val.Len())
	printTerms(terms)

	diagValue, diagTerms := tr.Diagnose(scaledVal)
	fmt.Printf("\nmonotonicity diagnostic: %.6f\n", diagValue)
	printTerms(diagTerms)
	return nil
}

func printTerms(terms map[string]float64) {
	keys := make([]string, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-28s %.6f\n", k, terms[k])
	}
}
