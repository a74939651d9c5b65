package loss

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/deepdist/tabular/core/tensor"
)

// Recovery computes consistency losses between the dual representations. A
// dual prediction maps one branch's output back into the other branch's input
// space; the recovery loss is its absolute error against that input. With
// dynamic weighting enabled the loss is softly down-weighted when the other
// branch is itself poorly fit, so a badly trained branch cannot drag its dual
// around through the consistency term.
type Recovery struct {
	Dynamic bool
}

// Losses returns the recovery loss |otherInput - dual| and its confidence
// weight. The weight is the constant 1 when dynamic weighting is off,
// otherwise 1/(1+2*tanh(otherLoss)) per sample. The other branch's loss acts
// as a constant here; it never receives gradient through the weight.
func (r Recovery) Losses(dual, otherInput, otherLoss *mat.Dense) (*mat.Dense, *mat.Dense) {
	recover := tensor.Abs(tensor.Sub(otherInput, dual))
	if !r.Dynamic {
		return recover, tensor.Scalar(1)
	}
	weights := tensor.Apply(otherLoss, func(x float64) float64 {
		return 1 / (1 + 2*math.Tanh(x))
	})
	return recover, weights
}

// QuantileDualWeight blends the quantile-side recovery weight with a tanh
// squashing of the recovery loss itself: 0.5*(w + 1/(1+2*tanh(x))).
func QuantileDualWeight(recoverWeights, recoverLosses *mat.Dense) *mat.Dense {
	squash := tensor.Apply(recoverLosses, func(x float64) float64 {
		return 1 / (1 + 2*math.Tanh(x))
	})
	return tensor.Scale(tensor.Add(recoverWeights, squash), 0.5)
}

// CDFDualWeight is the CDF-side counterpart. The quantile residual loss lives
// on a different natural scale than the CDF score, so this side uses a plain
// rational squashing with the fixed constant 10: 0.5*(w + 1/(1+10*x)).
func CDFDualWeight(recoverWeights, recoverLosses *mat.Dense) *mat.Dense {
	squash := tensor.Apply(recoverLosses, func(x float64) float64 {
		return 1 / (1 + 10*x)
	})
	return tensor.Scale(tensor.Add(recoverWeights, squash), 0.5)
}
