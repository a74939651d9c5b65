package model

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/deepdist/tabular/core/nn"
	"github.com/deepdist/tabular/core/tensor"
)

func init() {
	Register("ddr", func(s Spec) (Model, error) { return NewDDR(s) })
}

const (
	// quantile levels are sampled away from the degenerate tails
	quantileLow  = 0.05
	quantileHigh = 0.95

	// step sizes of the central-difference probes
	quantileDelta = 1e-3
	anchorDelta   = 1e-3
)

// DDR is the distribution regressor: a shared trunk feeding a median head,
// positive/negative sub-quantile heads and a CDF logit head. Each forward
// pass samples fresh quantile levels and anchors and emits the full
// prediction bundle; Backward differentiates the primary heads.
type DDR struct {
	spec Spec
	rng  *rand.Rand

	trunk      *nn.MLP
	medianHead *nn.MLP
	posHead    *nn.MLP
	negHead    *nn.MLP
	cdfHead    *nn.MLP

	featDim int

	// primary-pass caches consumed by Backward
	quantileCenter *mat.Dense
	posPre         *mat.Dense
	negPre         *mat.Dense
}

// NewDDR builds the network from the spec. A spec that enables neither branch
// gets both, since a distribution regressor without them degenerates to the
// point-estimate models.
func NewDDR(s Spec) (*DDR, error) {
	if s.InputDim <= 0 {
		return nil, errors.New("model: ddr needs a positive input dimension")
	}
	if !s.WithCDF && !s.WithQuantile {
		s.WithCDF, s.WithQuantile = true, true
	}
	hidden := s.Hidden
	if len(hidden) == 0 {
		hidden = hiddenUnits(s.InputDim, s.Samples)
	}
	featDim := hidden[len(hidden)-1]
	headHidden := featDim / 2
	if headHidden < 4 {
		headHidden = 4
	}
	rng := rand.New(rand.NewSource(s.Seed))
	trunkSizes := append([]int{s.InputDim}, hidden...)
	return &DDR{
		spec:       s,
		rng:        rng,
		trunk:      nn.NewMLP(trunkSizes, nn.ReLU, rng),
		medianHead: nn.NewMLP([]int{featDim, headHidden, 1}, nn.Tanh, rng),
		posHead:    nn.NewMLP([]int{featDim + 1, headHidden, 2}, nn.Tanh, rng),
		negHead:    nn.NewMLP([]int{featDim + 1, headHidden, 2}, nn.Tanh, rng),
		cdfHead:    nn.NewMLP([]int{featDim + 1, headHidden, 1}, nn.Tanh, rng),
		featDim:    featDim,
	}, nil
}

func (d *DDR) Name() string { return "ddr" }

// Forward runs one batch. Auxiliary evaluations (sampled variants, density
// probes, dual round trips, pressure signals) come first; the cached primary
// evaluations of each head come last so Backward sees the right state.
func (d *DDR) Forward(x *mat.Dense) *Bundle {
	batch, _ := x.Dims()
	h := d.trunk.Forward(x)

	b := &Bundle{}
	medianDetach := mat.DenseCopyOf(d.medianHead.Forward(h))
	b.MedianDetach = medianDetach

	var q *mat.Dense
	if d.spec.WithQuantile {
		q = d.sampleQuantiles(batch)
		sq := d.sampleQuantiles(batch)

		b.QuantileBatch = q
		b.QuantileSign = signAroundMedian(q)
		b.SampledQuantiles = sq
		b.SampledQuantileResidual = d.residualAt(h, sq)
		b.QRGradient = d.qrGradientAt(h, q)
		b.SampledQRGradient = d.qrGradientAt(h, sq)

		zero := tensor.Zeros(batch, 1)
		posAdd, posMul := d.pressureAt(d.posHead, h, zero)
		negAdd, negMul := d.pressureAt(d.negHead, h, zero)
		b.PressurePos = &SubQuantiles{Add: posAdd, Mul: posMul}
		b.PressureNeg = &SubQuantiles{Add: negAdd, Mul: negMul}
	}

	var anchors *mat.Dense
	if d.spec.WithCDF {
		anchors = d.sampleAnchors(batch)
		sAnchors := d.sampleAnchors(batch)

		b.AnchorBatch = anchors
		b.SampledAnchors = sAnchors
		b.SampledCDFLogits = d.cdfLogitAt(h, sAnchors)
		b.PDF = d.densityAt(h, anchors)
		b.SampledPDF = d.densityAt(h, sAnchors)
	}

	if d.spec.WithCDF && d.spec.WithQuantile {
		// quantile -> cdf -> quantile round trip
		yq := tensor.Add(medianDetach, d.residualAt(h, q))
		b.QuantileCDFLogits = d.cdfLogitAt(h, yq)
		b.DualCDF = tensor.Sigmoid(b.QuantileCDFLogits)
		b.CDFQuantileResidual = tensor.Add(medianDetach, d.residualAt(h, b.DualCDF))

		// cdf -> quantile round trip
		qStar := tensor.Sigmoid(d.cdfLogitAt(h, anchors))
		b.DualQuantile = tensor.Add(medianDetach, d.residualAt(h, qStar))
	}

	// primary evaluations, cached for Backward
	if d.spec.WithCDF {
		b.CDFLogits = d.cdfLogitAt(h, anchors)
	}
	if d.spec.WithQuantile {
		qc := centered(q)
		d.quantileCenter = qc
		d.posPre = d.posHead.Forward(withColumn(h, qc))
		d.negPre = d.negHead.Forward(withColumn(h, qc))
		b.QuantileResidual = assembleResidual(d.posPre, d.negPre, qc)
		b.MedianResidual = tensor.Clone(b.QuantileResidual)
	}
	b.Median = d.medianHead.Forward(h)
	return b
}

// Backward routes head gradients from the last Forward through the shared
// trunk.
func (d *DDR) Backward(g OutputGrads) {
	var trunkGrad *mat.Dense
	accumulate := func(full *mat.Dense) {
		batch, _ := full.Dims()
		part := mat.DenseCopyOf(full.Slice(0, batch, 0, d.featDim))
		if trunkGrad == nil {
			trunkGrad = part
			return
		}
		trunkGrad.Add(trunkGrad, part)
	}

	if g.Median != nil {
		accumulate(d.medianHead.Backward(g.Median))
	}
	if g.CDFLogits != nil {
		accumulate(d.cdfHead.Backward(g.CDFLogits))
	}
	if g.QuantileResidual != nil {
		if d.posPre == nil {
			panic("model: quantile gradient without a quantile forward")
		}
		dPos, dNeg := residualGrads(g.QuantileResidual, d.posPre, d.negPre, d.quantileCenter)
		accumulate(d.posHead.Backward(dPos))
		accumulate(d.negHead.Backward(dNeg))
	}
	if trunkGrad != nil {
		d.trunk.Backward(trunkGrad)
	}
}

func (d *DDR) ZeroGrad() {
	for _, n := range d.nets() {
		n.ZeroGrad()
	}
}

func (d *DDR) Params() []*mat.Dense {
	var out []*mat.Dense
	for _, n := range d.nets() {
		out = append(out, n.Params()...)
	}
	return out
}

func (d *DDR) Grads() []*mat.Dense {
	var out []*mat.Dense
	for _, n := range d.nets() {
		out = append(out, n.Grads()...)
	}
	return out
}

func (d *DDR) State() map[string][][]float64 {
	state := make(map[string][][]float64, 5)
	for name, n := range d.netsByName() {
		state[name] = n.State()
	}
	return state
}

func (d *DDR) LoadState(state map[string][][]float64) error {
	for name, n := range d.netsByName() {
		s, ok := state[name]
		if !ok {
			return fmt.Errorf("model: ddr state missing %s", name)
		}
		if err := n.LoadState(s); err != nil {
			return fmt.Errorf("model: ddr %s: %w", name, err)
		}
	}
	return nil
}

func (d *DDR) nets() []*nn.MLP {
	return []*nn.MLP{d.trunk, d.medianHead, d.posHead, d.negHead, d.cdfHead}
}

func (d *DDR) netsByName() map[string]*nn.MLP {
	return map[string]*nn.MLP{
		"trunk":       d.trunk,
		"median_head": d.medianHead,
		"pos_head":    d.posHead,
		"neg_head":    d.negHead,
		"cdf_head":    d.cdfHead,
	}
}

func (d *DDR) sampleQuantiles(batch int) *mat.Dense {
	out := mat.NewDense(batch, 1, nil)
	for i := 0; i < batch; i++ {
		out.Set(i, 0, quantileLow+d.rng.Float64()*(quantileHigh-quantileLow))
	}
	return out
}

// sampleAnchors draws candidate target values from the observed target range.
func (d *DDR) sampleAnchors(batch int) *mat.Dense {
	lo, hi := d.spec.TargetMin, d.spec.TargetMax
	if hi <= lo {
		spread := d.spec.TargetStd
		if spread <= 0 {
			spread = 1
		}
		lo = d.spec.TargetMean - 2*spread
		hi = d.spec.TargetMean + 2*spread
	}
	out := mat.NewDense(batch, 1, nil)
	for i := 0; i < batch; i++ {
		out.Set(i, 0, lo+d.rng.Float64()*(hi-lo))
	}
	return out
}

func (d *DDR) anchorScale() float64 {
	if d.spec.TargetStd > 1e-6 {
		return d.spec.TargetStd
	}
	return 1
}

// cdfLogitAt evaluates the CDF head at the given target values.
func (d *DDR) cdfLogitAt(h, anchors *mat.Dense) *mat.Dense {
	std := tensor.Apply(anchors, func(a float64) float64 {
		return (a - d.spec.TargetMean) / d.anchorScale()
	})
	return d.cdfHead.Forward(withColumn(h, std))
}

// densityAt probes the CDF slope at the anchors with a central difference.
func (d *DDR) densityAt(h, anchors *mat.Dense) *mat.Dense {
	delta := anchorDelta * d.anchorScale()
	up := tensor.Sigmoid(d.cdfLogitAt(h, tensor.Apply(anchors, func(a float64) float64 { return a + delta })))
	down := tensor.Sigmoid(d.cdfLogitAt(h, tensor.Apply(anchors, func(a float64) float64 { return a - delta })))
	return tensor.Scale(tensor.Sub(up, down), 1/(2*delta))
}

// residualAt evaluates the sub-quantile heads at the given levels and folds
// them into the signed residual around the median.
func (d *DDR) residualAt(h, q *mat.Dense) *mat.Dense {
	qc := centered(q)
	pos := d.posHead.Forward(withColumn(h, qc))
	neg := d.negHead.Forward(withColumn(h, qc))
	return assembleResidual(pos, neg, qc)
}

// qrGradientAt probes the residual slope with respect to the quantile level.
func (d *DDR) qrGradientAt(h, q *mat.Dense) *mat.Dense {
	up := d.residualAt(h, tensor.Apply(q, func(v float64) float64 { return v + quantileDelta }))
	down := d.residualAt(h, tensor.Apply(q, func(v float64) float64 { return v - quantileDelta }))
	return tensor.Scale(tensor.Sub(up, down), 1/(2*quantileDelta))
}

// pressureAt reads the raw additive and multiplicative signals of one
// sub-quantile head at the median level.
func (d *DDR) pressureAt(head *nn.MLP, h, zero *mat.Dense) (add, mul *mat.Dense) {
	out := head.Forward(withColumn(h, zero))
	batch, _ := out.Dims()
	add = mat.NewDense(batch, 1, nil)
	mul = mat.NewDense(batch, 1, nil)
	for i := 0; i < batch; i++ {
		add.Set(i, 0, tensor.SoftplusVal(out.At(i, 0)))
		mul.Set(i, 0, tensor.SoftplusVal(out.At(i, 1)))
	}
	return add, mul
}

// assembleResidual folds the raw two-column head outputs into one residual
// per sample: the positive head serves levels above the median, the negative
// head below, both through softplus so each branch stays one-signed.
func assembleResidual(posPre, negPre, qc *mat.Dense) *mat.Dense {
	batch, _ := qc.Dims()
	out := mat.NewDense(batch, 1, nil)
	for i := 0; i < batch; i++ {
		c := qc.At(i, 0)
		if c >= 0 {
			add := tensor.SoftplusVal(posPre.At(i, 0))
			mul := tensor.SoftplusVal(posPre.At(i, 1))
			out.Set(i, 0, add+mul*c)
		} else {
			add := tensor.SoftplusVal(negPre.At(i, 0))
			mul := tensor.SoftplusVal(negPre.At(i, 1))
			out.Set(i, 0, -(add + mul*(-c)))
		}
	}
	return out
}

// residualGrads chains the residual gradient back onto the raw head outputs,
// routing each sample to the branch that produced it.
func residualGrads(gradOut, posPre, negPre, qc *mat.Dense) (dPos, dNeg *mat.Dense) {
	batch, _ := qc.Dims()
	dPos = mat.NewDense(batch, 2, nil)
	dNeg = mat.NewDense(batch, 2, nil)
	for i := 0; i < batch; i++ {
		g := gradOut.At(i, 0)
		c := qc.At(i, 0)
		if c >= 0 {
			dPos.Set(i, 0, g*tensor.SigmoidVal(posPre.At(i, 0)))
			dPos.Set(i, 1, g*c*tensor.SigmoidVal(posPre.At(i, 1)))
		} else {
			dNeg.Set(i, 0, -g*tensor.SigmoidVal(negPre.At(i, 0)))
			dNeg.Set(i, 1, g*c*tensor.SigmoidVal(negPre.At(i, 1)))
		}
	}
	return dPos, dNeg
}

// centered shifts quantile levels around the median.
func centered(q *mat.Dense) *mat.Dense {
	return tensor.Apply(q, func(v float64) float64 { return v - 0.5 })
}

func signAroundMedian(q *mat.Dense) *mat.Dense {
	return tensor.Apply(q, func(v float64) float64 {
		switch {
		case v > 0.5:
			return 1
		case v < 0.5:
			return -1
		default:
			return 0
		}
	})
}

// withColumn appends one extra input column to the trunk features.
func withColumn(h, col *mat.Dense) *mat.Dense {
	batch, width := h.Dims()
	out := mat.NewDense(batch, width+1, nil)
	for i := 0; i < batch; i++ {
		for j := 0; j < width; j++ {
			out.Set(i, j, h.At(i, j))
		}
		out.Set(i, width, col.At(i, 0))
	}
	return out
}
