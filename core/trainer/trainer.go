// Package trainer runs the optimization loop: it feeds batches through a
// model, scores the prediction bundles with the loss engine, backpropagates
// the primary-term gradients and reports progress to the configured
// observers.
package trainer

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/deepdist/tabular/core/dataset"
	corelogger "github.com/deepdist/tabular/core/logger"
	"github.com/deepdist/tabular/core/loss"
	coremetrics "github.com/deepdist/tabular/core/metrics"
	"github.com/deepdist/tabular/core/model"
	"github.com/deepdist/tabular/core/nn"
	"github.com/deepdist/tabular/core/tensor"
	"github.com/deepdist/tabular/infra/store"
	"github.com/deepdist/tabular/internal/eventbus"
)

// Config drives the optimization loop.
type Config struct {
	Epochs          int     `json:"epochs"`
	BatchSize       int     `json:"batch_size"`
	LearningRate    float64 `json:"learning_rate"`
	Seed            int64   `json:"seed"`
	CheckpointDir   string  `json:"checkpoint_dir"`
	CheckpointEvery int     `json:"checkpoint_every"`
	// DiagnosticEvery inserts a constraint-only evaluation pass every N
	// epochs; 0 disables them.
	DiagnosticEvery int `json:"diagnostic_every"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Epochs == 0 {
		c.Epochs = 100
	}
	if c.BatchSize == 0 {
		c.BatchSize = 128
	}
	if c.LearningRate == 0 {
		c.LearningRate = 1e-3
	}
}

// Validate checks the ranges.
func (c *Config) Validate() error {
	if c.Epochs < 0 || c.BatchSize < 0 {
		return fmt.Errorf("trainer: negative epochs or batch size")
	}
	if c.LearningRate < 0 {
		return fmt.Errorf("trainer: negative learning rate")
	}
	return nil
}

// Deps carries the collaborators. Sink, Store and Bus are optional.
type Deps struct {
	Model   model.Model
	Engine  *loss.Engine
	Scaler  *dataset.Scaler
	Target  dataset.TargetStats
	Dataset string
	Sink    coremetrics.Sink
	Store   *store.Store
	Bus     *eventbus.Bus[coremetrics.EpochResult]
	Log     corelogger.Logger
}

// Result summarizes one finished run.
type Result struct {
	RunID     string
	Epochs    int
	FinalLoss float64
	History   []coremetrics.EpochResult
}

// Trainer owns the loop state of one run.
type Trainer struct {
	cfg   Config
	deps  Deps
	opt   *nn.Adam
	rng   *rand.Rand
	runID string
	epoch int
}

// New builds a trainer with a fresh run ID.
func New(cfg Config, deps Deps) (*Trainer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Model == nil || deps.Engine == nil {
		return nil, fmt.Errorf("trainer: model and engine are required")
	}
	if deps.Sink == nil {
		deps.Sink = coremetrics.NopSink{}
	}
	return &Trainer{
		cfg:   cfg,
		deps:  deps,
		opt:   nn.NewAdam(cfg.LearningRate),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		runID: uuid.NewString(),
	}, nil
}

// RunID returns the identifier of this run.
func (t *Trainer) RunID() string { return t.runID }

// Scaler returns the feature scaler the run was built with.
func (t *Trainer) Scaler() *dataset.Scaler { return t.deps.Scaler }

// Fit trains on the training split, evaluating on the optional validation
// split after every epoch.
func (t *Trainer) Fit(ctx context.Context, train, val *dataset.Dataset) (*Result, error) {
	if t.deps.Store != nil {
		if err := t.deps.Store.CreateRun(t.runID, t.deps.Model.Name(), t.deps.Dataset); err != nil {
			t.warnf("create run: %v", err)
		}
	}
	t.record(coremetrics.RunEvent{
		RunID: t.runID, Model: t.deps.Model.Name(), Status: store.StatusRunning, Time: time.Now(),
	})

	result := &Result{RunID: t.runID}
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			t.finish(store.StatusFailed, result)
			return result, fmt.Errorf("trainer: epoch %d: %w", epoch, err)
		}
		t.epoch = epoch

		ev := t.trainEpoch(train)
		result.History = append(result.History, ev)
		result.FinalLoss = ev.Loss
		result.Epochs = epoch
		t.emit(ev)

		if val != nil {
			valEv := t.evalEpoch(val, "val")
			result.History = append(result.History, valEv)
			t.emit(valEv)
		}
		if t.cfg.DiagnosticEvery > 0 && epoch%t.cfg.DiagnosticEvery == 0 {
			diag := t.diagnosticEpoch(train)
			result.History = append(result.History, diag)
			t.emit(diag)
		}
		t.emitWeights()

		if t.cfg.CheckpointDir != "" && t.cfg.CheckpointEvery > 0 && epoch%t.cfg.CheckpointEvery == 0 {
			if err := t.checkpoint(); err != nil {
				t.warnf("checkpoint: %v", err)
			}
		}
	}

	if t.cfg.CheckpointDir != "" {
		if err := t.checkpoint(); err != nil {
			t.warnf("final checkpoint: %v", err)
		}
	}
	t.finish(store.StatusFinished, result)
	return result, nil
}

func (t *Trainer) trainEpoch(ds *dataset.Dataset) coremetrics.EpochResult {
	start := time.Now()
	var sum float64
	var rows int
	termSums := map[string]float64{}
	for _, b := range ds.Batches(t.cfg.BatchSize, t.rng) {
		n, _ := b.X.Dims()
		bundle := t.deps.Model.Forward(b.X)
		value, terms := t.deps.Engine.Forward(bundle, b.Y, loss.Mode{Training: true})

		grads := outputGrads(bundle, b.Y)
		t.deps.Model.ZeroGrad()
		t.deps.Model.Backward(grads)
		t.opt.Step(t.deps.Model.Params(), t.deps.Model.Grads())

		sum += value * float64(n)
		rows += n
		for k, v := range terms {
			termSums[k] += v * float64(n)
		}
	}
	return t.result("train", sum, rows, termSums, start)
}

func (t *Trainer) evalEpoch(ds *dataset.Dataset, phase string) coremetrics.EpochResult {
	start := time.Now()
	var sum float64
	var rows int
	termSums := map[string]float64{}
	for _, b := range ds.Batches(t.cfg.BatchSize, nil) {
		n, _ := b.X.Dims()
		bundle := t.deps.Model.Forward(b.X)
		value, terms := t.deps.Engine.Forward(bundle, b.Y, loss.Mode{})
		sum += value * float64(n)
		rows += n
		for k, v := range terms {
			termSums[k] += v * float64(n)
		}
	}
	return t.result(phase, sum, rows, termSums, start)
}

// diagnosticEpoch scores the constraint terms on one batch without touching
// the anneal counters.
func (t *Trainer) diagnosticEpoch(ds *dataset.Dataset) coremetrics.EpochResult {
	start := time.Now()
	batch := ds.Batches(t.cfg.BatchSize, nil)[0]
	n, _ := batch.X.Dims()
	bundle := t.deps.Model.Forward(batch.X)
	value, terms := t.deps.Engine.Forward(bundle, batch.Y, loss.Mode{MonotonousOnly: true})
	sums := map[string]float64{}
	for k, v := range terms {
		sums[k] = v * float64(n)
	}
	return t.result("diagnostic", value*float64(n), n, sums, start)
}

func (t *Trainer) result(phase string, sum float64, rows int, termSums map[string]float64, start time.Time) coremetrics.EpochResult {
	terms := make(map[string]float64, len(termSums))
	for k, v := range termSums {
		terms[k] = v / float64(rows)
	}
	return coremetrics.EpochResult{
		RunID:    t.runID,
		Model:    t.deps.Model.Name(),
		Epoch:    t.epoch,
		Phase:    phase,
		Loss:     sum / float64(rows),
		Terms:    terms,
		Duration: time.Since(start),
		Time:     time.Now(),
	}
}

// Evaluate scores a dataset without training.
func (t *Trainer) Evaluate(ds *dataset.Dataset) (float64, map[string]float64) {
	ev := t.evalEpoch(ds, "eval")
	return ev.Loss, ev.Terms
}

// Diagnose scores only the monotonicity constraint terms on a dataset,
// without advancing the anneal schedule.
func (t *Trainer) Diagnose(ds *dataset.Dataset) (float64, map[string]float64) {
	start := time.Now()
	var sum float64
	var rows int
	termSums := map[string]float64{}
	for _, b := range ds.Batches(t.cfg.BatchSize, nil) {
		n, _ := b.X.Dims()
		bundle := t.deps.Model.Forward(b.X)
		value, terms := t.deps.Engine.Forward(bundle, b.Y, loss.Mode{MonotonousOnly: true})
		sum += value * float64(n)
		rows += n
		for k, v := range terms {
			termSums[k] += v * float64(n)
		}
	}
	ev := t.result("diagnostic", sum, rows, termSums, start)
	return ev.Loss, ev.Terms
}

// Predict returns the median estimates for raw (unscaled) features.
func (t *Trainer) Predict(x *mat.Dense) (*mat.Dense, error) {
	if t.deps.Scaler != nil {
		scaled, err := t.deps.Scaler.Transform(x)
		if err != nil {
			return nil, err
		}
		x = scaled
	}
	return t.deps.Model.Forward(x).Median, nil
}

func (t *Trainer) emit(ev coremetrics.EpochResult) {
	if err := t.deps.Sink.RecordEpoch(ev); err != nil {
		t.warnf("metrics sink: %v", err)
	}
	if t.deps.Bus != nil {
		t.deps.Bus.Publish(ev)
	}
	if t.deps.Store != nil {
		err := t.deps.Store.SaveEpoch(store.EpochRecord{
			RunID:      ev.RunID,
			Epoch:      ev.Epoch,
			Phase:      ev.Phase,
			Loss:       ev.Loss,
			DurationMS: ev.Duration.Milliseconds(),
		})
		if err != nil {
			t.warnf("run store: %v", err)
		}
	}
}

func (t *Trainer) emitWeights() {
	mtl := t.deps.Engine.MTL()
	if !mtl.Registered() {
		return
	}
	if rec, ok := t.deps.Sink.(coremetrics.TermWeightRecorder); ok {
		err := rec.RecordTermWeights(coremetrics.TermWeightEvent{
			RunID:   t.runID,
			Weights: mtl.Weights(),
			Time:    time.Now(),
		})
		if err != nil {
			t.warnf("term weights: %v", err)
		}
	}
}

func (t *Trainer) record(ev coremetrics.RunEvent) {
	if rec, ok := t.deps.Sink.(coremetrics.RunRecorder); ok {
		if err := rec.RecordRun(ev); err != nil {
			t.warnf("run event: %v", err)
		}
	}
}

func (t *Trainer) finish(status string, result *Result) {
	if t.deps.Store != nil {
		if err := t.deps.Store.FinishRun(t.runID, status, result.Epochs, result.FinalLoss); err != nil {
			t.warnf("finish run: %v", err)
		}
	}
	t.record(coremetrics.RunEvent{
		RunID: t.runID, Model: t.deps.Model.Name(), Status: status, Epochs: result.Epochs, Time: time.Now(),
	})
}

func (t *Trainer) checkpoint() error {
	if err := os.MkdirAll(t.cfg.CheckpointDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(t.cfg.CheckpointDir, fmt.Sprintf("%s.json", t.runID))
	return t.Save(path)
}

func (t *Trainer) warnf(format string, args ...any) {
	if t.deps.Log != nil {
		t.deps.Log.Warnf(format, args...)
	}
}

// outputGrads differentiates the primary loss terms with respect to the model
// heads: L1 for the median, pinball for the quantile residual and the scoring
// rule for the CDF logits. Each gradient carries the 1/n mean factor.
func outputGrads(b *model.Bundle, target *mat.Dense) model.OutputGrads {
	n := tensor.Rows(target)
	inv := 1 / float64(n)

	grads := model.OutputGrads{
		Median: tensor.Apply2(b.Median, target, func(m, y float64) float64 {
			return signOf(m-y) * inv
		}),
	}
	if b.QuantileResidual != nil {
		grads.QuantileResidual = mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			e := (target.At(i, 0) - b.MedianDetach.At(i, 0)) - b.QuantileResidual.At(i, 0)
			q := b.QuantileBatch.At(i, 0)
			switch {
			case e > 0:
				grads.QuantileResidual.Set(i, 0, -q*inv)
			case e < 0:
				grads.QuantileResidual.Set(i, 0, (1-q)*inv)
			}
		}
	}
	if b.CDFLogits != nil {
		grads.CDFLogits = mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			indicator := 0.0
			if target.At(i, 0) <= b.AnchorBatch.At(i, 0) {
				indicator = 1
			}
			g := tensor.SigmoidVal(b.CDFLogits.At(i, 0)) - indicator
			grads.CDFLogits.Set(i, 0, g*inv)
		}
	}
	return grads
}

func signOf(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
