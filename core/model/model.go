// Package model defines the prediction bundle contract between models and
// the loss engine, and hosts the tabular model zoo.
package model

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Spec carries everything a model factory needs. The trainer fills the data
// driven fields (input dimension, sample count, target statistics) from the
// dataset; the rest comes from configuration.
type Spec struct {
	InputDim int   `json:"input_dim"`
	Samples  int   `json:"samples"`
	Hidden   []int `json:"hidden"`
	Seed     int64 `json:"seed"`

	// Target statistics used by distribution-aware models.
	TargetMean float64 `json:"target_mean"`
	TargetStd  float64 `json:"target_std"`
	TargetMin  float64 `json:"target_min"`
	TargetMax  float64 `json:"target_max"`

	// Branch switches for the ddr model.
	WithCDF      bool `json:"with_cdf"`
	WithQuantile bool `json:"with_quantile"`
}

// OutputGrads carries the loss gradients with respect to the primary model
// heads; absent entries leave the corresponding head untouched.
type OutputGrads struct {
	Median           *mat.Dense
	QuantileResidual *mat.Dense
	CDFLogits        *mat.Dense
}

// Model is the trainer-facing contract of every network in the zoo.
type Model interface {
	Name() string
	// Forward produces the prediction bundle for one batch.
	Forward(x *mat.Dense) *Bundle
	// Backward injects output gradients from the last Forward and
	// accumulates parameter gradients.
	Backward(g OutputGrads)
	ZeroGrad()
	Params() []*mat.Dense
	Grads() []*mat.Dense
	// State snapshots the parameters by component for checkpointing.
	State() map[string][][]float64
	LoadState(map[string][][]float64) error
}

// Factory builds a model from its spec.
type Factory func(Spec) (Model, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a model factory under the given name. Registering a name
// twice is a setup bug and panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("model: %q already registered", name))
	}
	registry[name] = f
}

// New instantiates a registered model.
func New(name string, spec Spec) (Model, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model %q (registered: %v)", name, Names())
	}
	return f(spec)
}

// Names lists the registered model names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
