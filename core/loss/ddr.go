// Package loss implements the deep distribution regression loss engine: a
// multi-term, dynamically weighted loss combining quantile regression, CDF
// estimation, monotonicity constraints, dual-consistency losses and annealed
// weight scheduling, aggregated through a multi-task weighting module.
package loss

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	corelogger "github.com/deepdist/tabular/core/logger"
	"github.com/deepdist/tabular/core/model"
	"github.com/deepdist/tabular/core/tensor"
)

// Loss term keys as they appear in the loss dictionary.
const (
	KeyMedian             = "median"
	KeyCDF                = "cdf"
	KeyCDFAnchor          = "cdf_anchor"
	KeyQuantile           = "quantile"
	KeyQuantileAnchor     = "quantile_anchor"
	KeyQuantileRecover    = "quantile_recover"
	KeyCDFRecover         = "cdf_recover"
	KeyDualQuantile       = "dual_quantile"
	KeyDualCDF            = "dual_cdf"
	KeyMedianResidual     = "median_residual"
	KeyMedianPressure     = "median_pressure"
	KeyPDF                = "pdf"
	KeyQuantileMonotonous = "quantile_monotonous"

	// Diagnostic-only passes tag constraint terms with this prefix so their
	// evaluation is never mistaken for a training loss.
	SyntheticPrefix = "synthetic_"
)

// mtlCapacity bounds the learnable term slots of the aggregator; the engine
// never produces more than 13 named terms.
const mtlCapacity = 16

// Config drives the loss engine.
type Config struct {
	// JointTraining trains the CDF and quantile branches against each other
	// through the dual-consistency terms. When off, only the anchor-sampled
	// variants of the branch losses are kept and the primary branch losses
	// are trained elsewhere.
	JointTraining bool `json:"joint_training"`
	// DynamicDualWeights enables confidence weighting of the recovery terms.
	DynamicDualWeights bool `json:"dynamic_dual_weights"`
	// UseAnneal enables the per-term weight schedules.
	UseAnneal bool `json:"use_anneal"`
	// AnnealSteps is the total step count the per-term ratios refer to.
	AnnealSteps int `json:"anneal_steps"`
	// MedianPressure is the pressure constant p of the asymmetric
	// max(-p*x, x/p) shape. Defaults to 3.
	MedianPressure float64 `json:"median_pressure"`
	// MTLMethod selects the aggregator weighting ("uniform" or "softmax").
	MTLMethod string `json:"mtl_method"`
	// Anneal overrides the default schedule table; nil keeps the defaults.
	Anneal map[string]AnnealSpec `json:"anneal"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MedianPressure == 0 {
		c.MedianPressure = 3
	}
	if c.MTLMethod == "" {
		c.MTLMethod = "uniform"
	}
}

// Mode selects the forward-pass variant.
type Mode struct {
	// Training marks a gradient-producing pass; only training passes may
	// advance the anneal schedules.
	Training bool
	// MonotonousOnly runs the diagnostic pass: constraint terms only, no
	// schedule advancement, synthetic_ term tagging.
	MonotonousOnly bool
}

// Engine wires annealing, term computation, dual consistency and aggregation
// into one forward pass. It is synchronous and single-threaded; the anneal
// counters are its only mutable state and advance exactly once per training
// forward.
type Engine struct {
	cfg      Config
	sched    *Scheduler
	mtl      *MTL
	recovery Recovery
	log      corelogger.Logger
}

// NewEngine builds the engine, its scheduler and its aggregator.
func NewEngine(cfg Config, log corelogger.Logger) (*Engine, error) {
	cfg.SetDefaults()
	sched, err := NewScheduler(cfg.AnnealSteps, cfg.Anneal)
	if err != nil {
		return nil, fmt.Errorf("anneal scheduler: %w", err)
	}
	mtl, err := NewMTL(mtlCapacity, cfg.MTLMethod)
	if err != nil {
		return nil, fmt.Errorf("mtl aggregator: %w", err)
	}
	return &Engine{
		cfg:      cfg,
		sched:    sched,
		mtl:      mtl,
		recovery: Recovery{Dynamic: cfg.DynamicDualWeights},
		log:      log,
	}, nil
}

// MTL exposes the aggregator for checkpointing.
func (e *Engine) MTL() *MTL { return e.mtl }

// Scheduler exposes the anneal scheduler for checkpointing.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// Forward computes the aggregated scalar loss and the reduced (mean) per-term
// dictionary for one batch.
func (e *Engine) Forward(b *model.Bundle, target *mat.Dense, mode Mode) (float64, map[string]float64) {
	combined, terms := e.Core(b, target, mode)
	return tensor.Mean(combined), terms.Reduce()
}

// Core computes the unreduced per-sample combined loss and term dictionary.
// Missing companion tensors are caller bugs and panic; an all-disabled
// configuration returns a zero loss instead.
func (e *Engine) Core(b *model.Bundle, target *mat.Dense, mode Mode) (*mat.Dense, *Terms) {
	caps := b.Capabilities()
	validateBundle(b, caps, e.cfg.JointTraining)

	weights := e.resolveWeights(mode)

	// median
	medianLosses := scale(MedianLoss(b.Median, target), weights, TermMedian)

	// cdf
	var cdfLosses, cdfAnchorLosses *mat.Dense
	if caps.HasCDF && !mode.MonotonousOnly {
		cdfLosses = scale(CDFLoss(target, b.CDFLogits, b.AnchorBatch), weights, TermMain)
		if b.SampledCDFLogits != nil {
			cdfAnchorLosses = scale(CDFLoss(target, b.SampledCDFLogits, b.SampledAnchors), weights, TermAnchor)
		}
	}

	// density monotonicity
	var pdfLosses *mat.Dense
	if caps.HasDensity {
		pdfLosses = tensor.Add(PDFLoss(b.PDF), PDFLoss(b.SampledPDF))
		pdfLosses = scale(pdfLosses, weights, TermMonotonous)
	}

	// quantile
	var medianResidualLosses, quantileLosses, quantileAnchorLosses *mat.Dense
	if caps.HasQuantile && !mode.MonotonousOnly {
		targetResidual := tensor.Sub(target, b.MedianDetach)
		medianResidualLosses = scale(
			MedianResidualLoss(targetResidual, b.MedianResidual, b.QuantileSign, e.cfg.MedianPressure),
			weights, TermAnchor,
		)
		quantileLosses = PinballLoss(targetResidual, b.QuantileResidual, b.QuantileBatch)
		quantileLosses = scale(tensor.Add(quantileLosses, medianResidualLosses), weights, TermMain)
		if b.SampledQuantileResidual != nil {
			quantileAnchorLosses = scale(
				PinballLoss(targetResidual, b.SampledQuantileResidual, b.SampledQuantiles),
				weights, TermAnchor,
			)
		}
	}

	// median pressure
	var pressureLosses *mat.Dense
	if caps.HasQuantile {
		pressureLosses = PressureLoss(
			b.PressurePos.Add, b.PressureNeg.Add,
			b.PressurePos.Mul, b.PressureNeg.Mul,
			e.cfg.MedianPressure,
		)
		pressureLosses = scale(pressureLosses, weights, TermPressure)
	}

	// quantile monotonicity penalties run in every mode
	var monotonousLosses *mat.Dense
	if b.QRGradient != nil && b.SampledQRGradient != nil {
		monotonousLosses = tensor.Add(GradientPenalty(b.QRGradient), GradientPenalty(b.SampledQRGradient))
	}
	if b.MedianResidual != nil && b.QuantileSign != nil {
		penalty := ResidualSignPenalty(b.MedianResidual, b.QuantileSign)
		if monotonousLosses == nil {
			monotonousLosses = penalty
		} else {
			monotonousLosses = tensor.Add(monotonousLosses, penalty)
		}
	}
	if monotonousLosses != nil {
		monotonousLosses = scale(monotonousLosses, weights, TermMonotonous)
	}

	// dual consistency
	var dualQuantileLosses, dualCDFLosses *mat.Dense
	var quantileRecoverLosses, cdfRecoverLosses *mat.Dense
	joint := e.cfg.JointTraining && caps.HasCDF && caps.HasQuantile && !mode.MonotonousOnly
	if joint {
		// cdf -> quantile (recover) -> cdf (dual)
		qrLosses, qrWeights := e.recovery.Losses(b.DualQuantile, b.AnchorBatch, cdfLosses)
		dualQuantileLosses = CDFLoss(target, b.QuantileCDFLogits, b.AnchorBatch)
		if e.cfg.DynamicDualWeights {
			dualQuantileLosses = tensor.MulElem(dualQuantileLosses, QuantileDualWeight(qrWeights, qrLosses))
		}
		quantileRecoverLosses = tensor.MulElem(qrLosses, qrWeights)

		// quantile -> cdf (recover) -> quantile (dual)
		crLosses, crWeights := e.recovery.Losses(b.DualCDF, b.QuantileBatch, quantileLosses)
		dualCDFLosses = PinballLoss(target, b.CDFQuantileResidual, b.QuantileBatch)
		if e.cfg.DynamicDualWeights {
			dualCDFLosses = tensor.MulElem(dualCDFLosses, CDFDualWeight(crWeights, crLosses))
		}
		dualCDFLosses = tensor.Add(dualCDFLosses, medianResidualLosses)
		cdfRecoverLosses = tensor.MulElem(crLosses, crWeights)

		dualQuantileLosses = scale(dualQuantileLosses, weights, TermDual)
		dualCDFLosses = scale(dualCDFLosses, weights, TermDual)
		quantileRecoverLosses = scale(quantileRecoverLosses, weights, TermRecover)
		cdfRecoverLosses = scale(cdfRecoverLosses, weights, TermRecover)
	}

	// assemble
	terms := NewTerms()
	if !mode.MonotonousOnly {
		terms.Add(KeyMedian, medianLosses)
		if !e.cfg.JointTraining {
			if cdfAnchorLosses != nil {
				terms.Add(KeyCDFAnchor, cdfAnchorLosses)
			}
			if quantileAnchorLosses != nil {
				terms.Add(KeyQuantileAnchor, quantileAnchorLosses)
			}
		} else {
			if caps.HasCDF {
				terms.Add(KeyCDF, cdfLosses)
				if cdfAnchorLosses != nil {
					terms.Add(KeyCDFAnchor, cdfAnchorLosses)
				}
			}
			if caps.HasQuantile {
				terms.Add(KeyQuantile, quantileLosses)
				if quantileAnchorLosses != nil {
					terms.Add(KeyQuantileAnchor, quantileAnchorLosses)
				}
			}
			if joint {
				terms.Add(KeyQuantileRecover, quantileRecoverLosses)
				terms.Add(KeyCDFRecover, cdfRecoverLosses)
				terms.Add(KeyDualQuantile, dualQuantileLosses)
				terms.Add(KeyDualCDF, dualCDFLosses)
			}
		}
	}
	if medianResidualLosses != nil {
		terms.Add(KeyMedianResidual, medianResidualLosses)
	}
	if pressureLosses != nil {
		terms.Add(diagnosticKey(KeyMedianPressure, mode), pressureLosses)
	}
	if pdfLosses != nil {
		terms.Add(diagnosticKey(KeyPDF, mode), pdfLosses)
	}
	if monotonousLosses != nil {
		terms.Add(diagnosticKey(KeyQuantileMonotonous, mode), monotonousLosses)
	}

	if terms.Len() == 0 {
		zero := tensor.Zeros(tensor.Rows(target), 1)
		out := NewTerms()
		out.Add("loss", zero)
		return zero, out
	}

	if !e.mtl.Registered() {
		e.mtl.Register(terms.Names())
		if e.log != nil {
			e.log.Debugw("registered loss terms", map[string]any{"terms": terms.Names()})
		}
	}
	return e.mtl.Combine(terms), terms
}

// resolveWeights applies the pop/reuse asymmetry: training passes advance the
// schedules, diagnostic passes reuse the last popped main/pressure weights,
// everything else runs unweighted.
func (e *Engine) resolveWeights(mode Mode) Weights {
	if !e.cfg.UseAnneal {
		return nil
	}
	if mode.MonotonousOnly {
		return e.sched.Diagnostic()
	}
	if !mode.Training {
		return nil
	}
	return e.sched.Pop()
}

func scale(m *mat.Dense, w Weights, term string) *mat.Dense {
	if m == nil || w == nil {
		return m
	}
	v, ok := w[term]
	if !ok {
		return m
	}
	return tensor.Scale(m, v)
}

func diagnosticKey(key string, mode Mode) string {
	if mode.MonotonousOnly {
		return SyntheticPrefix + key
	}
	return key
}

// validateBundle enforces the companion-tensor contract. Violations signal a
// caller bug, not a runtime condition, and panic.
func validateBundle(b *model.Bundle, caps model.Capabilities, joint bool) {
	mustPresent(b.Median != nil, "median")
	if caps.HasCDF {
		mustPresent(b.AnchorBatch != nil, "anchor_batch with cdf logits")
		if b.SampledCDFLogits != nil {
			mustPresent(b.SampledAnchors != nil, "sampled_anchors with sampled cdf logits")
		}
	}
	if caps.HasQuantile {
		mustPresent(b.QuantileBatch != nil, "quantile_batch with quantile residual")
		mustPresent(b.QuantileSign != nil, "quantile_sign with quantile residual")
		mustPresent(b.MedianResidual != nil, "median_residual with quantile residual")
		mustPresent(b.MedianDetach != nil, "median_detach with quantile residual")
		mustPresent(b.PressurePos != nil && b.PressureNeg != nil, "pressure sub-quantiles with quantile residual")
		if b.SampledQuantileResidual != nil {
			mustPresent(b.SampledQuantiles != nil, "sampled_quantiles with sampled quantile residual")
		}
	}
	if joint && caps.HasCDF && caps.HasQuantile {
		mustPresent(b.DualQuantile != nil, "dual_quantile under joint training")
		mustPresent(b.QuantileCDFLogits != nil, "quantile_cdf_logits under joint training")
		mustPresent(b.DualCDF != nil, "dual_cdf under joint training")
		mustPresent(b.CDFQuantileResidual != nil, "cdf_quantile_residual under joint training")
	}
}

func mustPresent(ok bool, what string) {
	if !ok {
		panic("loss: bundle contract violated: missing " + what)
	}
}
