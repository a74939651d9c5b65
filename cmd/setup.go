package cmd

import (
	"fmt"
	"os"

	"github.com/deepdist/tabular/config"
	"github.com/deepdist/tabular/core/dataset"
	"github.com/deepdist/tabular/core/loss"
	coremetrics "github.com/deepdist/tabular/core/metrics"
	"github.com/deepdist/tabular/core/model"
	"github.com/deepdist/tabular/core/trainer"
	"github.com/deepdist/tabular/infra/logger"
	"github.com/deepdist/tabular/infra/store"
	"github.com/deepdist/tabular/internal/eventbus"

	// sink registrations
	_ "github.com/deepdist/tabular/infra/metrics"
	_ "github.com/deepdist/tabular/infra/telemetry"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Logging.Level != "" {
		os.Setenv("LOG_LEVEL", cfg.Logging.Level)
	}
	return cfg, nil
}

// loadData resolves the configured dataset and splits it.
func loadData(cfg *config.Config) (train, val *dataset.Dataset, name string, err error) {
	var ds *dataset.Dataset
	if cfg.Data.Path != "" {
		name = cfg.Data.Path
		ds, err = dataset.LoadCSV(cfg.Data.Path, cfg.Data.Target)
	} else {
		name = "synthetic:" + cfg.Data.Synthetic
		ds, err = dataset.Synthetic(cfg.Data.Synthetic, cfg.Data.SyntheticRows, cfg.Data.SyntheticDim, cfg.Data.Seed)
	}
	if err != nil {
		return nil, nil, "", err
	}
	train, val, err = ds.Split(cfg.Data.TrainFraction, cfg.Data.Seed)
	if err != nil {
		return nil, nil, "", err
	}
	return train, val, name, nil
}

// buildTrainer assembles the full training stack from configuration. bus may
// be nil when the caller does not consume training events.
func buildTrainer(cfg *config.Config, train *dataset.Dataset, datasetName string, bus *eventbus.Bus[coremetrics.EpochResult]) (*trainer.Trainer, *store.Store, error) {
	stats := train.TargetStats()
	scaler := dataset.FitScaler(train)

	m, err := model.New(cfg.Model.Name, model.Spec{
		InputDim:     train.Dim(),
		Samples:      train.Len(),
		Hidden:       cfg.Model.Hidden,
		Seed:         cfg.Model.Seed,
		TargetMean:   stats.Mean,
		TargetStd:    stats.Std,
		TargetMin:    stats.Min,
		TargetMax:    stats.Max,
		WithCDF:      cfg.Model.WithCDF,
		WithQuantile: cfg.Model.WithQuantile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("model: %w", err)
	}

	engine, err := loss.NewEngine(cfg.Loss, logger.New("loss"))
	if err != nil {
		return nil, nil, fmt.Errorf("loss engine: %w", err)
	}

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics sink: %w", err)
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
	}

	tr, err := trainer.New(cfg.Training, trainer.Deps{
		Model:   m,
		Engine:  engine,
		Scaler:  scaler,
		Target:  stats,
		Dataset: datasetName,
		Sink:    sink,
		Store:   st,
		Bus:     bus,
		Log:     logger.New("trainer"),
	})
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, nil, err
	}
	return tr, st, nil
}
