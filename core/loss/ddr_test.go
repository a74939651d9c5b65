package loss

import (
	"math"
	"slices"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/deepdist/tabular/core/model"
	"github.com/deepdist/tabular/core/tensor"
)

func medianOnlyBundle(median []float64) *model.Bundle {
	return &model.Bundle{Median: tensor.Column(median)}
}

// jointBundle builds an architecturally consistent bundle with every branch
// active, batch size 3.
func jointBundle() *model.Bundle {
	col := tensor.Column
	median := col([]float64{0.5, 0.4, 0.6})
	return &model.Bundle{
		Median:       median,
		MedianDetach: tensor.Clone(median),

		AnchorBatch:      col([]float64{0.2, 0.5, 0.8}),
		CDFLogits:        col([]float64{-0.4, 0.1, 0.7}),
		SampledAnchors:   col([]float64{0.1, 0.6, 0.9}),
		SampledCDFLogits: col([]float64{-0.6, 0.2, 0.9}),

		QuantileBatch:           col([]float64{0.25, 0.5, 0.75}),
		QuantileSign:            col([]float64{-1, 0, 1}),
		QuantileResidual:        col([]float64{-0.15, 0, 0.12}),
		MedianResidual:          col([]float64{-0.1, 0, 0.1}),
		SampledQuantiles:        col([]float64{0.1, 0.5, 0.9}),
		SampledQuantileResidual: col([]float64{-0.3, 0, 0.3}),

		PDF:        col([]float64{0.4, 0.6, 0.5}),
		SampledPDF: col([]float64{0.3, 0.7, 0.4}),

		QRGradient:        col([]float64{0.5, 0.4, 0.6}),
		SampledQRGradient: col([]float64{0.3, -0.1, 0.5}),

		DualQuantile:        col([]float64{0.25, 0.45, 0.75}),
		QuantileCDFLogits:   col([]float64{-0.2, 0.1, 0.4}),
		DualCDF:             col([]float64{0.3, 0.5, 0.7}),
		CDFQuantileResidual: col([]float64{-0.1, 0, 0.1}),

		PressurePos: &model.SubQuantiles{
			Add: col([]float64{0.01, 0.02, 0.01}),
			Mul: col([]float64{0.01, 0.01, 0.02}),
		},
		PressureNeg: &model.SubQuantiles{
			Add: col([]float64{0.02, 0.01, 0.01}),
			Mul: col([]float64{0.01, 0.02, 0.01}),
		},
	}
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestMedianOnlyLossIsMAE(t *testing.T) {
	e := newEngine(t, Config{})
	target := tensor.Column([]float64{1.0})
	loss, terms := e.Forward(medianOnlyBundle([]float64{0.7}), target, Mode{Training: true})
	if math.Abs(loss-0.3) > 1e-12 {
		t.Fatalf("aggregated loss = %v want 0.3", loss)
	}
	if math.Abs(terms[KeyMedian]-0.3) > 1e-12 {
		t.Fatalf("median term = %v want 0.3", terms[KeyMedian])
	}
	if len(terms) != 1 {
		t.Fatalf("expected a single term, got %v", terms)
	}
}

func TestMedianOnlyIndependentOfDisabledAnnealing(t *testing.T) {
	plain := newEngine(t, Config{})
	tweaked := newEngine(t, Config{AnnealSteps: 500, Anneal: DefaultAnnealSpecs()})
	target := tensor.Column([]float64{2, 0})
	bundle := medianOnlyBundle([]float64{1.5, 0.5})
	a, _ := plain.Forward(bundle, target, Mode{Training: true})
	b, _ := tweaked.Forward(bundle, target, Mode{Training: true})
	if a != b {
		t.Fatalf("disabled annealing must not affect the loss: %v vs %v", a, b)
	}
	if math.Abs(a-0.5) > 1e-12 {
		t.Fatalf("MAE = %v want 0.5", a)
	}
}

func TestAllBranchesDisabledReturnsZero(t *testing.T) {
	e := newEngine(t, Config{})
	target := tensor.Column([]float64{1, 2, 3})
	combined, terms := e.Core(medianOnlyBundle([]float64{0, 0, 0}), target, Mode{MonotonousOnly: true})
	r, c := combined.Dims()
	if r != 3 || c != 1 {
		t.Fatalf("zero loss shape (%d,%d), want (3,1)", r, c)
	}
	if mat.Sum(combined) != 0 {
		t.Fatalf("expected zero loss, got %v", mat.Sum(combined))
	}
	if terms.Len() != 1 || terms.Get("loss") == nil {
		t.Fatalf("degenerate dictionary should hold only the zero loss, got %v", terms.Names())
	}
	if e.MTL().Registered() {
		t.Fatalf("degenerate pass must not register terms")
	}
}

func TestJointTrainingTermSet(t *testing.T) {
	e := newEngine(t, Config{JointTraining: true, DynamicDualWeights: true})
	target := tensor.Column([]float64{0.3, 0.5, 0.9})
	_, terms := e.Core(jointBundle(), target, Mode{Training: true})
	want := []string{
		KeyMedian,
		KeyCDF, KeyCDFAnchor,
		KeyQuantile, KeyQuantileAnchor,
		KeyQuantileRecover, KeyCDFRecover,
		KeyDualQuantile, KeyDualCDF,
		KeyMedianResidual,
		KeyMedianPressure,
		KeyPDF,
		KeyQuantileMonotonous,
	}
	if !slices.Equal(terms.Names(), want) {
		t.Fatalf("term set/order mismatch:\n got %v\nwant %v", terms.Names(), want)
	}
	if !e.MTL().Registered() {
		t.Fatalf("first non-empty call must register the aggregator")
	}
	for _, name := range want {
		v := tensor.Mean(terms.Get(name))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("term %s is not finite: %v", name, v)
		}
	}
}

func TestNonJointKeepsOnlyAnchorVariants(t *testing.T) {
	e := newEngine(t, Config{JointTraining: false})
	target := tensor.Column([]float64{0.3, 0.5, 0.9})
	b := jointBundle()
	// non-joint bundles carry no dual cross-predictions
	b.DualQuantile, b.QuantileCDFLogits = nil, nil
	b.DualCDF, b.CDFQuantileResidual = nil, nil
	_, terms := e.Core(b, target, Mode{Training: true})
	names := terms.Names()
	for _, banned := range []string{KeyCDF, KeyQuantile, KeyDualCDF, KeyDualQuantile, KeyQuantileRecover, KeyCDFRecover} {
		if slices.Contains(names, banned) {
			t.Fatalf("non-joint mode must not emit %s: %v", banned, names)
		}
	}
	for _, required := range []string{KeyMedian, KeyCDFAnchor, KeyQuantileAnchor, KeyMedianResidual} {
		if !slices.Contains(names, required) {
			t.Fatalf("non-joint mode missing %s: %v", required, names)
		}
	}
}

func TestDiagnosticModeDoesNotAdvanceAnneal(t *testing.T) {
	e := newEngine(t, Config{
		JointTraining:      true,
		DynamicDualWeights: true,
		UseAnneal:          true,
		AnnealSteps:        100,
	})
	target := tensor.Column([]float64{0.3, 0.5, 0.9})

	e.Forward(jointBundle(), target, Mode{Training: true})
	e.Forward(jointBundle(), target, Mode{Training: true})
	steps := e.Scheduler().Steps()

	_, diag1 := e.Forward(jointBundle(), target, Mode{Training: true, MonotonousOnly: true})
	_, diag2 := e.Forward(jointBundle(), target, Mode{Training: true, MonotonousOnly: true})

	for term, step := range e.Scheduler().Steps() {
		if step != steps[term] {
			t.Fatalf("diagnostic pass advanced %s: %d -> %d", term, steps[term], step)
		}
	}
	for key, v := range diag1 {
		if diag2[key] != v {
			t.Fatalf("repeated diagnostic passes differ on %s: %v vs %v", key, v, diag2[key])
		}
	}
	for key := range diag1 {
		switch key {
		case SyntheticPrefix + KeyMedianPressure, SyntheticPrefix + KeyPDF, SyntheticPrefix + KeyQuantileMonotonous:
		default:
			t.Fatalf("unexpected diagnostic term %s", key)
		}
	}
}

func TestEvalModeDoesNotAdvanceAnneal(t *testing.T) {
	e := newEngine(t, Config{UseAnneal: true, AnnealSteps: 50})
	target := tensor.Column([]float64{1})
	e.Forward(medianOnlyBundle([]float64{0.5}), target, Mode{Training: false})
	for term, step := range e.Scheduler().Steps() {
		if step != 0 {
			t.Fatalf("eval pass advanced %s to %d", term, step)
		}
	}
}

func TestMissingCompanionPanics(t *testing.T) {
	e := newEngine(t, Config{})
	b := jointBundle()
	b.QuantileBatch = nil
	defer func() {
		if recover() == nil {
			t.Fatalf("expected contract-violation panic")
		}
	}()
	e.Core(b, tensor.Column([]float64{0.3, 0.5, 0.9}), Mode{Training: true})
}

func TestJointTrainingRequiresDualTensors(t *testing.T) {
	e := newEngine(t, Config{JointTraining: true})
	b := jointBundle()
	b.CDFQuantileResidual = nil
	defer func() {
		if recover() == nil {
			t.Fatalf("expected contract-violation panic for missing dual tensor")
		}
	}()
	e.Core(b, tensor.Column([]float64{0.3, 0.5, 0.9}), Mode{Training: true})
}
