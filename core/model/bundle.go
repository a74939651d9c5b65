package model

import "gonum.org/v1/gonum/mat"

// SubQuantiles carries the additive and multiplicative components of one
// sub-quantile branch evaluated at the median level (q = 0.5).
type SubQuantiles struct {
	Add *mat.Dense
	Mul *mat.Dense
}

// Bundle is the per-batch output of a model forward pass. All tensors are
// column tensors of shape (batch, 1); every field beyond Median is optional
// and its presence activates the corresponding loss branch. The bundle is
// created per batch, consumed once by the loss engine and then discarded.
type Bundle struct {
	// Median is the point estimate, always present.
	Median *mat.Dense
	// MedianDetach is the median treated as a constant for residual targets.
	MedianDetach *mat.Dense

	// CDF branch.
	AnchorBatch      *mat.Dense
	CDFLogits        *mat.Dense
	SampledAnchors   *mat.Dense
	SampledCDFLogits *mat.Dense

	// Quantile branch.
	QuantileBatch           *mat.Dense
	MedianResidual          *mat.Dense
	QuantileResidual        *mat.Dense
	QuantileSign            *mat.Dense
	SampledQuantiles        *mat.Dense
	SampledQuantileResidual *mat.Dense

	// Density estimates derived from the CDF branch.
	PDF        *mat.Dense
	SampledPDF *mat.Dense

	// Quantile-residual gradients with respect to the quantile level.
	QRGradient        *mat.Dense
	SampledQRGradient *mat.Dense

	// Dual cross-predictions.
	DualQuantile        *mat.Dense
	QuantileCDFLogits   *mat.Dense
	DualCDF             *mat.Dense
	CDFQuantileResidual *mat.Dense

	// Sub-quantile signals at the median, used by the pressure loss.
	PressurePos *SubQuantiles
	PressureNeg *SubQuantiles
}

// Capabilities is the branch-activation flag set of a bundle, resolved once
// at loss-engine entry.
type Capabilities struct {
	HasCDF      bool
	HasQuantile bool
	HasDensity  bool
	HasDual     bool
}

// Capabilities reports which optional branches the bundle activates.
func (b *Bundle) Capabilities() Capabilities {
	return Capabilities{
		HasCDF:      b.CDFLogits != nil,
		HasQuantile: b.QuantileResidual != nil,
		HasDensity:  b.PDF != nil && b.SampledPDF != nil,
		HasDual:     b.DualQuantile != nil && b.DualCDF != nil,
	}
}

// Batch returns the batch size of the bundle.
func (b *Bundle) Batch() int {
	r, _ := b.Median.Dims()
	return r
}
