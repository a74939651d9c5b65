package trainer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/deepdist/tabular/core/dataset"
)

// Checkpoint is the JSON snapshot of everything a run needs to resume or
// serve: network parameters, anneal counters, aggregator state and the
// feature scaler.
type Checkpoint struct {
	RunID       string                 `json:"run_id"`
	Model       string                 `json:"model"`
	Epoch       int                    `json:"epoch"`
	Net         map[string][][]float64 `json:"net"`
	AnnealSteps map[string]int         `json:"anneal_steps"`
	MTLTerms    []string               `json:"mtl_terms,omitempty"`
	MTLLogits   []float64              `json:"mtl_logits,omitempty"`
	Scaler      *dataset.Scaler        `json:"scaler,omitempty"`
	Target      dataset.TargetStats    `json:"target"`
	SavedAt     time.Time              `json:"saved_at"`
}

// Save writes the current state to path.
func (t *Trainer) Save(path string) error {
	mtl := t.deps.Engine.MTL()
	cp := Checkpoint{
		RunID:       t.runID,
		Model:       t.deps.Model.Name(),
		Epoch:       t.epoch,
		Net:         t.deps.Model.State(),
		AnnealSteps: t.deps.Engine.Scheduler().Steps(),
		Scaler:      t.deps.Scaler,
		Target:      t.deps.Target,
		SavedAt:     time.Now(),
	}
	if mtl.Registered() {
		cp.MTLTerms = mtl.RegisteredNames()
		cp.MTLLogits = mtl.Logits()
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("trainer: encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("trainer: write checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadCheckpoint reads a snapshot from path.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trainer: read checkpoint %s: %w", path, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("trainer: decode checkpoint %s: %w", path, err)
	}
	return &cp, nil
}

// Restore loads a snapshot into the model and the loss engine. The model must
// match the checkpoint architecture.
func (t *Trainer) Restore(cp *Checkpoint) error {
	if cp.Model != t.deps.Model.Name() {
		return fmt.Errorf("trainer: checkpoint is for model %q, trainer has %q", cp.Model, t.deps.Model.Name())
	}
	if err := t.deps.Model.LoadState(cp.Net); err != nil {
		return fmt.Errorf("trainer: restore parameters: %w", err)
	}
	t.deps.Engine.Scheduler().Restore(cp.AnnealSteps)
	if len(cp.MTLTerms) > 0 {
		mtl := t.deps.Engine.MTL()
		mtl.Register(cp.MTLTerms)
		if err := mtl.SetLogits(cp.MTLLogits); err != nil {
			return fmt.Errorf("trainer: restore aggregator: %w", err)
		}
	}
	if cp.Scaler != nil {
		t.deps.Scaler = cp.Scaler
	}
	t.deps.Target = cp.Target
	t.epoch = cp.Epoch
	return nil
}
