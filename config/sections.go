package config

import (
	"fmt"
	"slices"
)

// ModelConfig selects and shapes the network.
type ModelConfig struct {
	// Name is the registered model type: "linear", "fcnn" or "ddr".
	Name string `json:"name"`
	// Hidden overrides the data-driven hidden sizing.
	Hidden []int `json:"hidden"`
	// Seed fixes the parameter initialization.
	Seed int64 `json:"seed"`
	// WithCDF and WithQuantile toggle the distribution branches of ddr.
	WithCDF      bool `json:"with_cdf"`
	WithQuantile bool `json:"with_quantile"`
}

// SetDefaults applies sane defaults.
func (c *ModelConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "ddr"
	}
	if c.Name == "ddr" && !c.WithCDF && !c.WithQuantile {
		c.WithCDF, c.WithQuantile = true, true
	}
}

// Validate checks the hidden layout.
func (c ModelConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("model name is required")
	}
	for _, h := range c.Hidden {
		if h <= 0 {
			return fmt.Errorf("hidden layer size %d must be positive", h)
		}
	}
	return nil
}

// DataConfig locates the dataset.
type DataConfig struct {
	// Path points at a headered numeric CSV file. Empty switches to the
	// synthetic generator.
	Path string `json:"path"`
	// Target names the label column; empty selects the last column.
	Target string `json:"target"`
	// TrainFraction is the training share of the split.
	TrainFraction float64 `json:"train_fraction"`
	// Synthetic selects the generator used when Path is empty.
	Synthetic string `json:"synthetic"`
	// SyntheticRows and SyntheticDim size the generated set.
	SyntheticRows int `json:"synthetic_rows"`
	SyntheticDim  int `json:"synthetic_dim"`
	// Seed drives the split shuffle and the generator.
	Seed int64 `json:"seed"`
}

// SetDefaults applies sane defaults.
func (c *DataConfig) SetDefaults() {
	if c.TrainFraction == 0 {
		c.TrainFraction = 0.8
	}
	if c.Synthetic == "" {
		c.Synthetic = "heteroscedastic"
	}
	if c.SyntheticRows == 0 {
		c.SyntheticRows = 2000
	}
	if c.SyntheticDim == 0 {
		c.SyntheticDim = 8
	}
}

// Validate checks the ranges.
func (c DataConfig) Validate() error {
	if c.TrainFraction <= 0 || c.TrainFraction >= 1 {
		return fmt.Errorf("train_fraction %v out of (0,1)", c.TrainFraction)
	}
	if c.Path == "" {
		if !slices.Contains([]string{"linear", "sine", "heteroscedastic"}, c.Synthetic) {
			return fmt.Errorf("unknown synthetic generator %s", c.Synthetic)
		}
		if c.SyntheticRows <= 0 || c.SyntheticDim <= 0 {
			return fmt.Errorf("synthetic size %dx%d must be positive", c.SyntheticRows, c.SyntheticDim)
		}
	}
	return nil
}

// StoreConfig locates the run database.
type StoreConfig struct {
	// Path is the SQLite file; empty disables run persistence.
	Path string `json:"path"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level name.
func (c LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Level) {
		return fmt.Errorf("unknown log level %s", c.Level)
	}
	return nil
}
