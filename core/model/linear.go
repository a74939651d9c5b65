package model

import (
	"errors"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/deepdist/tabular/core/nn"
)

func init() {
	Register("linear", func(s Spec) (Model, error) { return NewLinear(s) })
}

// Linear is the point-estimate baseline: a single affine map to one output.
type Linear struct {
	net *nn.MLP
}

// NewLinear builds the baseline from the spec.
func NewLinear(s Spec) (*Linear, error) {
	if s.InputDim <= 0 {
		return nil, errors.New("model: linear needs a positive input dimension")
	}
	rng := rand.New(rand.NewSource(s.Seed))
	return &Linear{net: nn.NewMLP([]int{s.InputDim, 1}, nn.Identity, rng)}, nil
}

func (l *Linear) Name() string { return "linear" }

func (l *Linear) Forward(x *mat.Dense) *Bundle {
	return &Bundle{Median: l.net.Forward(x)}
}

func (l *Linear) Backward(g OutputGrads) {
	if g.Median != nil {
		l.net.Backward(g.Median)
	}
}

func (l *Linear) ZeroGrad()            { l.net.ZeroGrad() }
func (l *Linear) Params() []*mat.Dense { return l.net.Params() }
func (l *Linear) Grads() []*mat.Dense  { return l.net.Grads() }

func (l *Linear) State() map[string][][]float64 {
	return map[string][][]float64{"net": l.net.State()}
}

func (l *Linear) LoadState(state map[string][][]float64) error {
	s, ok := state["net"]
	if !ok {
		return errors.New("model: linear state missing net")
	}
	return l.net.LoadState(s)
}
