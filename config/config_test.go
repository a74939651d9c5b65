package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sample = `
model:
  name: ddr
  hidden: [64, 64]
loss:
  joint_training: true
  use_anneal: true
  anneal_steps: 500
training:
  epochs: 20
  batch_size: 64
  learning_rate: 0.005
data:
  path: data/housing.csv
  target: price
metrics:
  sinks:
    - type: prometheus
store:
  path: runs.db
logging:
  level: debug
`

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", sample)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Name != "ddr" || len(cfg.Model.Hidden) != 2 {
		t.Fatalf("model section: %+v", cfg.Model)
	}
	if !cfg.Loss.JointTraining || cfg.Loss.AnnealSteps != 500 {
		t.Fatalf("loss section: %+v", cfg.Loss)
	}
	if cfg.Training.Epochs != 20 || cfg.Training.LearningRate != 0.005 {
		t.Fatalf("training section: %+v", cfg.Training)
	}
	if cfg.Data.Target != "price" || cfg.Data.TrainFraction != 0.8 {
		t.Fatalf("data section: %+v", cfg.Data)
	}
	if len(cfg.Metrics.Sinks) != 1 || cfg.Metrics.Sinks[0].Type != "prometheus" {
		t.Fatalf("metrics section: %+v", cfg.Metrics)
	}
	if cfg.Store.Path != "runs.db" || cfg.Logging.Level != "debug" {
		t.Fatalf("store/logging: %+v %+v", cfg.Store, cfg.Logging)
	}
	// defaults on untouched fields
	if cfg.Loss.MedianPressure != 3 || cfg.Loss.MTLMethod != "uniform" {
		t.Fatalf("loss defaults: %+v", cfg.Loss)
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", sample)
	t.Setenv("TAB_TRAINING__EPOCHS", "3")
	t.Setenv("TAB_LOGGING__LEVEL", "warn")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Training.Epochs != 3 {
		t.Fatalf("env override ignored: epochs = %d", cfg.Training.Epochs)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("env override ignored: level = %s", cfg.Logging.Level)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeConfig(t, "config.toml", "x = 1")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "config.yaml", "data:\n  train_fraction: 2\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}

	path = writeConfig(t, "config2.yaml", "logging:\n  level: loud\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for log level")
	}
}
