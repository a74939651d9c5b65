package loss

import (
	"math"
	"testing"

	"github.com/deepdist/tabular/core/tensor"
)

func TestPinballLossValuesAndPositivity(t *testing.T) {
	target := tensor.Column([]float64{1, -1})
	pred := tensor.Column([]float64{0, 0})
	q := tensor.Column([]float64{0.3, 0.3})
	got := PinballLoss(target, pred, q)
	// e=1: max(0.3, -0.7) = 0.3 ; e=-1: max(-0.3, 0.7) = 0.7
	if math.Abs(got.At(0, 0)-0.3) > 1e-12 || math.Abs(got.At(1, 0)-0.7) > 1e-12 {
		t.Fatalf("pinball values wrong: %v %v", got.At(0, 0), got.At(1, 0))
	}

	for _, quantile := range []float64{0.01, 0.25, 0.5, 0.9, 0.99} {
		for _, e := range []float64{-5, -0.1, 0, 0.1, 5} {
			loss := PinballLoss(
				tensor.Column([]float64{e}),
				tensor.Column([]float64{0}),
				tensor.Column([]float64{quantile}),
			)
			if loss.At(0, 0) < 0 {
				t.Fatalf("pinball negative for q=%v e=%v", quantile, e)
			}
		}
	}
}

func TestCDFLossNonNegative(t *testing.T) {
	for _, z := range []float64{-50, -1, 0, 1, 50} {
		for _, delta := range []float64{-1, 0, 1} {
			target := tensor.Column([]float64{0})
			anchors := tensor.Column([]float64{delta})
			logits := tensor.Column([]float64{z})
			loss := CDFLoss(target, logits, anchors)
			if loss.At(0, 0) < 0 {
				t.Fatalf("cdf loss negative for z=%v anchor=%v", z, delta)
			}
		}
	}
	// softplus(0) with indicator 0 is ln 2
	loss := CDFLoss(tensor.Column([]float64{1}), tensor.Column([]float64{0}), tensor.Column([]float64{0}))
	if math.Abs(loss.At(0, 0)-math.Log(2)) > 1e-12 {
		t.Fatalf("cdf loss at z=0 = %v", loss.At(0, 0))
	}
}

func TestPDFLoss(t *testing.T) {
	pdf := tensor.Column([]float64{0.5, -0.2})
	got := PDFLoss(pdf).At(0, 0)
	want := (-math.Log(0.5) + 0.2) / 2
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("pdf loss = %v want %v", got, want)
	}
	if PDFLoss(tensor.Zeros(0, 1)).At(0, 0) != 0 {
		t.Fatalf("empty pdf loss must be zero")
	}
}

func TestResidualSignPenalty(t *testing.T) {
	residual := tensor.Column([]float64{0.5, -0.5, 0.5})
	sign := tensor.Column([]float64{1, 1, -1})
	got := ResidualSignPenalty(residual, sign)
	want := []float64{0, 0.5, 0.5}
	for i := range want {
		if math.Abs(got.At(i, 0)-want[i]) > 1e-12 {
			t.Fatalf("penalty[%d]=%v want %v", i, got.At(i, 0), want[i])
		}
	}
}

func TestGradientPenalty(t *testing.T) {
	grad := tensor.Column([]float64{0.3, -0.3, 0})
	got := GradientPenalty(grad)
	want := []float64{0, 0.3, 0}
	for i := range want {
		if got.At(i, 0) != want[i] {
			t.Fatalf("penalty[%d]=%v want %v", i, got.At(i, 0), want[i])
		}
	}
}

func TestMedianResidualLossSameSignMask(t *testing.T) {
	targetResidual := tensor.Column([]float64{1.0, -1.0})
	medianResidual := tensor.Column([]float64{0.4, 0.2})
	sign := tensor.Column([]float64{1, 1})
	got := MedianResidualLoss(targetResidual, medianResidual, sign, 3.0)
	// only sample 0 is same-sign: 3*|1-0.4| = 1.8, plus per-sample sign penalty
	// relu(-mr*sign) = {0, 0} here
	for i := 0; i < 2; i++ {
		if math.Abs(got.At(i, 0)-1.8) > 1e-12 {
			t.Fatalf("loss[%d]=%v want 1.8", i, got.At(i, 0))
		}
	}

	// empty mask contributes zero instead of NaN
	sign = tensor.Column([]float64{-1, 1})
	got = MedianResidualLoss(targetResidual, medianResidual, sign, 3.0)
	if math.IsNaN(got.At(0, 0)) {
		t.Fatalf("empty same-sign mask produced NaN")
	}
	// sample 0: relu(-0.4*-1) = 0.4; sample 1: relu(-0.2) = 0
	if math.Abs(got.At(0, 0)-0.4) > 1e-12 || got.At(1, 0) != 0 {
		t.Fatalf("unexpected masked loss: %v %v", got.At(0, 0), got.At(1, 0))
	}
}

func TestPressureLossShape(t *testing.T) {
	zero := tensor.Column([]float64{0})
	if got := PressureLoss(zero, zero, zero, zero, 3).At(0, 0); got != 0 {
		t.Fatalf("pressure at zero = %v", got)
	}
	one := tensor.Column([]float64{1})
	// addPos=1 -> max(-3, 1/3) = 1/3; addNeg=1 -> shape(-1) = max(3, -1/3) = 3
	// mulPos=0, mulNeg=0
	got := PressureLoss(one, one, zero, zero, 3).At(0, 0)
	if math.Abs(got-(1.0/3+3)) > 1e-12 {
		t.Fatalf("pressure = %v want %v", got, 1.0/3+3)
	}
}
