package loss

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/deepdist/tabular/core/tensor"
)

// densityEps is the threshold under which a density sample counts as
// non-positive and is penalized linearly instead of through its log.
const densityEps = 1e-8

// MedianLoss is the elementwise absolute error of the point estimate.
func MedianLoss(median, target *mat.Dense) *mat.Dense {
	return tensor.Abs(tensor.Sub(median, target))
}

// CDFLoss scores a raw CDF logit z at anchor a against the indicator
// 1[target <= a]: softplus(z) - indicator*z. The score is non-negative and
// proper, driving sigmoid(z) toward the true cumulative probability.
func CDFLoss(target, logits, anchors *mat.Dense) *mat.Dense {
	indicator := tensor.Apply2(target, anchors, func(t, a float64) float64 {
		if t <= a {
			return 1
		}
		return 0
	})
	return tensor.Sub(tensor.Softplus(logits), tensor.MulElem(indicator, logits))
}

// PDFLoss penalizes non-positive density samples linearly and positive ones
// through their negative log likelihood, normalized by the sample count. The
// result is a (1,1) scalar tensor.
func PDFLoss(pdf *mat.Dense) *mat.Dense {
	r, c := pdf.Dims()
	n := r * c
	if n == 0 {
		return tensor.Scalar(0)
	}
	var acc float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := pdf.At(i, j)
			if v <= densityEps {
				acc += -v
			} else {
				acc += -math.Log(v)
			}
		}
	}
	return tensor.Scalar(acc / float64(n))
}

// PinballLoss is the asymmetric quantile loss max(q*e, (q-1)*e) for the
// residual error e = targetResidual - predictedResidual.
func PinballLoss(targetResidual, predictedResidual, quantiles *mat.Dense) *mat.Dense {
	err := tensor.Sub(targetResidual, predictedResidual)
	q1 := tensor.MulElem(quantiles, err)
	q2 := tensor.MulElem(tensor.Apply(quantiles, func(q float64) float64 { return q - 1 }), err)
	return tensor.Max(q1, q2)
}

// ResidualSignPenalty rectifies disagreement between the predicted residual
// direction and the quantile's expected sign: relu(-residual*sign).
func ResidualSignPenalty(medianResidual, quantileSign *mat.Dense) *mat.Dense {
	return tensor.Relu(tensor.Neg(tensor.MulElem(medianResidual, quantileSign)))
}

// GradientPenalty rectifies negative quantile-residual gradients, enforcing a
// monotone quantile function.
func GradientPenalty(gradient *mat.Dense) *mat.Dense {
	return tensor.Relu(tensor.Neg(gradient))
}

// MedianResidualLoss restricts the absolute residual error to samples whose
// quantile sign matches the sign of the true residual, scales its mean by the
// pressure constant and adds the per-sample sign penalty. An empty same-sign
// mask contributes zero.
func MedianResidualLoss(targetResidual, medianResidual, quantileSign *mat.Dense, pressure float64) *mat.Dense {
	r, _ := targetResidual.Dims()
	var sum float64
	var count int
	for i := 0; i < r; i++ {
		tr := targetResidual.At(i, 0)
		if quantileSign.At(i, 0)*signOf(tr) > 0 {
			sum += math.Abs(tr - medianResidual.At(i, 0))
			count++
		}
	}
	var masked float64
	if count > 0 {
		masked = pressure * sum / float64(count)
	}
	return tensor.Add(tensor.Scalar(masked), ResidualSignPenalty(medianResidual, quantileSign))
}

// PressureLoss pushes the four sub-quantile signals toward zero at the median
// using the asymmetric shape max(-p*x, x/p).
func PressureLoss(addPos, addNeg, mulPos, mulNeg *mat.Dense, pressure float64) *mat.Dense {
	inv := 1 / pressure
	shape := func(m *mat.Dense) *mat.Dense {
		return tensor.Apply(m, func(x float64) float64 {
			return math.Max(-pressure*x, inv*x)
		})
	}
	acc := shape(addPos)
	acc = tensor.Add(acc, shape(tensor.Neg(addNeg)))
	acc = tensor.Add(acc, shape(mulPos))
	acc = tensor.Add(acc, shape(mulNeg))
	return acc
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
