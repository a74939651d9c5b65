package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	coremetrics "github.com/deepdist/tabular/core/metrics"
	"github.com/deepdist/tabular/infra/logger"
	"github.com/deepdist/tabular/internal/eventbus"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a model on the configured dataset",
	RunE:  runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("train-command")

	train, val, name, err := loadData(cfg)
	if err != nil {
		return err
	}
	bus := eventbus.New[coremetrics.EpochResult]()
	tr, st, err := buildTrainer(cfg, train, name, bus)
	if err != nil {
		return err
	}
	if st != nil {
		defer func() { _ = st.Close() }()
	}

	events := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			log.Infof("run %s epoch %d (%s): loss %.6f", ev.RunID, ev.Epoch, ev.Phase, ev.Loss)
		}
	}()

	scaledTrain, err := tr.Scaler().Apply(train)
	if err != nil {
		return err
	}
	scaledVal, err := tr.Scaler().Apply(val)
	if err != nil {
		return err
	}

	log.Infof("run %s: training %s on %s (%d train / %d val rows)",
		tr.RunID(), cfg.Model.Name, name, train.Len(), val.Len())
	res, err := tr.Fit(ctx, scaledTrain, scaledVal)
	bus.Close()
	<-done
	if err != nil {
		return err
	}
	log.Infof("run %s finished after %d epochs, final loss %.6f", res.RunID, res.Epochs, res.FinalLoss)
	return nil
}
