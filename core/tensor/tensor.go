// Package tensor provides small helpers over gonum dense matrices. Loss
// computation works on per-sample column tensors of shape (batch, 1); scalar
// terms are carried as (1, 1) tensors and broadcast where needed.
package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Column builds a (len(vals), 1) tensor.
func Column(vals []float64) *mat.Dense {
	out := mat.NewDense(len(vals), 1, nil)
	for i, v := range vals {
		out.Set(i, 0, v)
	}
	return out
}

// Zeros returns an all-zero tensor.
func Zeros(r, c int) *mat.Dense {
	return mat.NewDense(r, c, nil)
}

// Full returns a tensor filled with v.
func Full(r, c int, v float64) *mat.Dense {
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, v)
		}
	}
	return out
}

// Scalar wraps a float in a (1,1) tensor.
func Scalar(v float64) *mat.Dense {
	return mat.NewDense(1, 1, []float64{v})
}

// Clone copies m into a new dense tensor.
func Clone(m mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.CloneFrom(m)
	return &out
}

// Apply maps f over every element of m.
func Apply(m mat.Matrix, f func(float64) float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, f(m.At(i, j)))
		}
	}
	return out
}

// Apply2 maps f over element pairs of a and b. A (1,1) operand is broadcast
// against the other; otherwise the shapes must match.
func Apply2(a, b mat.Matrix, f func(x, y float64) float64) *mat.Dense {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	switch {
	case ar == br && ac == bc:
		out := mat.NewDense(ar, ac, nil)
		for i := 0; i < ar; i++ {
			for j := 0; j < ac; j++ {
				out.Set(i, j, f(a.At(i, j), b.At(i, j)))
			}
		}
		return out
	case br == 1 && bc == 1:
		v := b.At(0, 0)
		return Apply(a, func(x float64) float64 { return f(x, v) })
	case ar == 1 && ac == 1:
		v := a.At(0, 0)
		return Apply(b, func(y float64) float64 { return f(v, y) })
	default:
		panic(fmt.Sprintf("tensor: shape mismatch (%d,%d) vs (%d,%d)", ar, ac, br, bc))
	}
}

// Add returns a+b with scalar broadcasting.
func Add(a, b mat.Matrix) *mat.Dense {
	return Apply2(a, b, func(x, y float64) float64 { return x + y })
}

// Sub returns a-b with scalar broadcasting.
func Sub(a, b mat.Matrix) *mat.Dense {
	return Apply2(a, b, func(x, y float64) float64 { return x - y })
}

// MulElem returns the elementwise product with scalar broadcasting.
func MulElem(a, b mat.Matrix) *mat.Dense {
	return Apply2(a, b, func(x, y float64) float64 { return x * y })
}

// Max returns the elementwise maximum with scalar broadcasting.
func Max(a, b mat.Matrix) *mat.Dense {
	return Apply2(a, b, math.Max)
}

// Scale multiplies every element by s.
func Scale(m mat.Matrix, s float64) *mat.Dense {
	return Apply(m, func(x float64) float64 { return x * s })
}

// Neg returns -m.
func Neg(m mat.Matrix) *mat.Dense {
	return Scale(m, -1)
}

// Abs returns |m| elementwise.
func Abs(m mat.Matrix) *mat.Dense {
	return Apply(m, math.Abs)
}

// Sign returns the elementwise sign of m.
func Sign(m mat.Matrix) *mat.Dense {
	return Apply(m, func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		default:
			return 0
		}
	})
}

// Relu returns max(x, 0) elementwise.
func Relu(m mat.Matrix) *mat.Dense {
	return Apply(m, func(x float64) float64 { return math.Max(x, 0) })
}

// Tanh returns tanh(x) elementwise.
func Tanh(m mat.Matrix) *mat.Dense {
	return Apply(m, math.Tanh)
}

// SoftplusVal computes log(1+exp(x)) in a numerically stable form.
func SoftplusVal(x float64) float64 {
	return math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
}

// Softplus returns log(1+exp(x)) elementwise.
func Softplus(m mat.Matrix) *mat.Dense {
	return Apply(m, SoftplusVal)
}

// SigmoidVal computes the logistic function.
func SigmoidVal(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Sigmoid returns the logistic function elementwise.
func Sigmoid(m mat.Matrix) *mat.Dense {
	return Apply(m, SigmoidVal)
}

// Sum adds up every element.
func Sum(m mat.Matrix) float64 {
	return mat.Sum(m)
}

// Mean averages every element. A nil or empty tensor yields 0.
func Mean(m mat.Matrix) float64 {
	if m == nil {
		return 0
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return 0
	}
	return mat.Sum(m) / float64(r*c)
}

// Rows returns the row count.
func Rows(m mat.Matrix) int {
	r, _ := m.Dims()
	return r
}
