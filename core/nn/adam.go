package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	beta1 = 0.9
	beta2 = 0.999
	eps   = 1e-8
)

// Adam keeps first and second moment estimates per parameter element and
// applies bias-corrected updates.
type Adam struct {
	lr float64
	t  int
	m  [][]float64
	v  [][]float64
}

// NewAdam creates an optimizer with the given learning rate.
func NewAdam(lr float64) *Adam {
	return &Adam{lr: lr}
}

// Step applies one update to params from the aligned grads and leaves the
// gradients untouched; callers zero them per batch.
func (a *Adam) Step(params, grads []*mat.Dense) {
	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			n := len(p.RawMatrix().Data)
			a.m[i] = make([]float64, n)
			a.v[i] = make([]float64, n)
		}
	}
	a.t++
	c1 := 1 - math.Pow(beta1, float64(a.t))
	c2 := 1 - math.Pow(beta2, float64(a.t))
	for i, p := range params {
		pd := p.RawMatrix().Data
		gd := grads[i].RawMatrix().Data
		for j, g := range gd {
			a.m[i][j] = beta1*a.m[i][j] + (1-beta1)*g
			a.v[i][j] = beta2*a.v[i][j] + (1-beta2)*g*g
			mHat := a.m[i][j] / c1
			vHat := a.v[i][j] / c2
			pd[j] -= a.lr * mHat / (math.Sqrt(vHat) + eps)
		}
	}
}
