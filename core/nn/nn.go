// Package nn provides the small dense-network substrate the tabular models
// are built from: batch-major dense layers with cached forward state, exact
// backward passes and an Adam optimizer.
package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Activation selects the elementwise nonlinearity of a layer.
type Activation int

const (
	Identity Activation = iota
	ReLU
	Tanh
	Softplus
)

func (a Activation) apply(x float64) float64 {
	switch a {
	case ReLU:
		return math.Max(x, 0)
	case Tanh:
		return math.Tanh(x)
	case Softplus:
		return math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
	default:
		return x
	}
}

// derivative of the activation expressed in terms of the pre-activation.
func (a Activation) prime(x float64) float64 {
	switch a {
	case ReLU:
		if x > 0 {
			return 1
		}
		return 0
	case Tanh:
		t := math.Tanh(x)
		return 1 - t*t
	case Softplus:
		return 1 / (1 + math.Exp(-x))
	default:
		return 1
	}
}

// Dense is one fully connected layer. Inputs are batch-major (batch, in);
// weights are stored (out, in).
type Dense struct {
	W *mat.Dense
	B *mat.Dense

	dW *mat.Dense
	dB *mat.Dense

	act Activation

	// cached forward state for the backward pass
	input  *mat.Dense
	preact *mat.Dense
}

// NewDense initializes a layer with Xavier-scaled weights.
func NewDense(in, out int, act Activation, rng *rand.Rand) *Dense {
	w := mat.NewDense(out, in, nil)
	scale := math.Sqrt(2 / float64(in+out))
	for i := 0; i < out; i++ {
		for j := 0; j < in; j++ {
			w.Set(i, j, rng.NormFloat64()*scale)
		}
	}
	return &Dense{
		W:   w,
		B:   mat.NewDense(out, 1, nil),
		dW:  mat.NewDense(out, in, nil),
		dB:  mat.NewDense(out, 1, nil),
		act: act,
	}
}

// Forward computes act(x*Wt + b) and caches state for Backward.
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	batch, _ := x.Dims()
	out, _ := d.W.Dims()
	z := mat.NewDense(batch, out, nil)
	z.Mul(x, d.W.T())
	for i := 0; i < batch; i++ {
		for j := 0; j < out; j++ {
			z.Set(i, j, z.At(i, j)+d.B.At(j, 0))
		}
	}
	d.input = x
	d.preact = z
	a := mat.NewDense(batch, out, nil)
	a.Apply(func(_, _ int, v float64) float64 { return d.act.apply(v) }, z)
	return a
}

// Backward accumulates parameter gradients for the cached batch and returns
// the gradient with respect to the layer input.
func (d *Dense) Backward(gradOut *mat.Dense) *mat.Dense {
	if d.preact == nil {
		panic("nn: backward before forward")
	}
	batch, out := gradOut.Dims()
	dz := mat.NewDense(batch, out, nil)
	for i := 0; i < batch; i++ {
		for j := 0; j < out; j++ {
			dz.Set(i, j, gradOut.At(i, j)*d.act.prime(d.preact.At(i, j)))
		}
	}

	var dw mat.Dense
	dw.Mul(dz.T(), d.input)
	d.dW.Add(d.dW, &dw)

	for j := 0; j < out; j++ {
		var sum float64
		for i := 0; i < batch; i++ {
			sum += dz.At(i, j)
		}
		d.dB.Set(j, 0, d.dB.At(j, 0)+sum)
	}

	_, in := d.W.Dims()
	dx := mat.NewDense(batch, in, nil)
	dx.Mul(dz, d.W)
	return dx
}

// ZeroGrad clears the accumulated gradients.
func (d *Dense) ZeroGrad() {
	d.dW.Zero()
	d.dB.Zero()
}

// MLP is a stack of dense layers: hidden layers share one activation, the
// final layer is linear.
type MLP struct {
	layers []*Dense
}

// NewMLP builds a network from layer sizes, e.g. [in, h1, h2, out].
func NewMLP(sizes []int, hidden Activation, rng *rand.Rand) *MLP {
	if len(sizes) < 2 {
		panic("nn: mlp needs at least input and output sizes")
	}
	layers := make([]*Dense, 0, len(sizes)-1)
	for i := 0; i < len(sizes)-1; i++ {
		act := hidden
		if i == len(sizes)-2 {
			act = Identity
		}
		layers = append(layers, NewDense(sizes[i], sizes[i+1], act, rng))
	}
	return &MLP{layers: layers}
}

// Forward runs the batch through every layer.
func (m *MLP) Forward(x *mat.Dense) *mat.Dense {
	out := x
	for _, l := range m.layers {
		out = l.Forward(out)
	}
	return out
}

// Backward propagates the output gradient through the stack, accumulating
// parameter gradients, and returns the input gradient.
func (m *MLP) Backward(gradOut *mat.Dense) *mat.Dense {
	grad := gradOut
	for i := len(m.layers) - 1; i >= 0; i-- {
		grad = m.layers[i].Backward(grad)
	}
	return grad
}

// ZeroGrad clears gradients on every layer.
func (m *MLP) ZeroGrad() {
	for _, l := range m.layers {
		l.ZeroGrad()
	}
}

// Params returns the parameter tensors in a stable order.
func (m *MLP) Params() []*mat.Dense {
	out := make([]*mat.Dense, 0, 2*len(m.layers))
	for _, l := range m.layers {
		out = append(out, l.W, l.B)
	}
	return out
}

// Grads returns the gradient tensors aligned with Params.
func (m *MLP) Grads() []*mat.Dense {
	out := make([]*mat.Dense, 0, 2*len(m.layers))
	for _, l := range m.layers {
		out = append(out, l.dW, l.dB)
	}
	return out
}

// State flattens the parameters for checkpointing.
func (m *MLP) State() [][]float64 {
	params := m.Params()
	out := make([][]float64, len(params))
	for i, p := range params {
		raw := p.RawMatrix()
		out[i] = append([]float64(nil), raw.Data...)
	}
	return out
}

// LoadState restores parameters from a checkpoint snapshot.
func (m *MLP) LoadState(state [][]float64) error {
	params := m.Params()
	if len(state) != len(params) {
		return fmt.Errorf("nn: state has %d tensors, network has %d", len(state), len(params))
	}
	for i, p := range params {
		raw := p.RawMatrix()
		if len(state[i]) != len(raw.Data) {
			return fmt.Errorf("nn: tensor %d has %d values, expected %d", i, len(state[i]), len(raw.Data))
		}
		copy(raw.Data, state[i])
	}
	return nil
}
