package model

import (
	"errors"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/deepdist/tabular/core/nn"
)

func init() {
	Register("fcnn", func(s Spec) (Model, error) { return NewFCNN(s) })
}

// FCNN is a fully connected point-estimate regressor with data-driven hidden
// sizing when the spec does not pin the layout.
type FCNN struct {
	net *nn.MLP
}

// hiddenUnits picks the hidden layout from the input width and sample count.
func hiddenUnits(inDim, samples int) []int {
	if inDim > 512 {
		return []int{1024, 1024}
	}
	if inDim > 256 {
		if samples >= 10_000 {
			return []int{1024, 1024}
		}
		return []int{2 * inDim, 2 * inDim}
	}
	if samples >= 100_000 {
		return []int{768, 768}
	}
	if samples >= 10_000 {
		return []int{512, 512}
	}
	floor := 32
	if samples >= 1_000 {
		floor = 64
	}
	units := 2 * inDim
	if units < floor {
		units = floor
	}
	return []int{units, units}
}

// NewFCNN builds the regressor from the spec.
func NewFCNN(s Spec) (*FCNN, error) {
	if s.InputDim <= 0 {
		return nil, errors.New("model: fcnn needs a positive input dimension")
	}
	hidden := s.Hidden
	if len(hidden) == 0 {
		hidden = hiddenUnits(s.InputDim, s.Samples)
	}
	sizes := append([]int{s.InputDim}, hidden...)
	sizes = append(sizes, 1)
	rng := rand.New(rand.NewSource(s.Seed))
	return &FCNN{net: nn.NewMLP(sizes, nn.ReLU, rng)}, nil
}

func (f *FCNN) Name() string { return "fcnn" }

func (f *FCNN) Forward(x *mat.Dense) *Bundle {
	return &Bundle{Median: f.net.Forward(x)}
}

func (f *FCNN) Backward(g OutputGrads) {
	if g.Median != nil {
		f.net.Backward(g.Median)
	}
}

func (f *FCNN) ZeroGrad()            { f.net.ZeroGrad() }
func (f *FCNN) Params() []*mat.Dense { return f.net.Params() }
func (f *FCNN) Grads() []*mat.Dense  { return f.net.Grads() }

func (f *FCNN) State() map[string][][]float64 {
	return map[string][][]float64{"net": f.net.State()}
}

func (f *FCNN) LoadState(state map[string][][]float64) error {
	s, ok := state["net"]
	if !ok {
		return errors.New("model: fcnn state missing net")
	}
	return f.net.LoadState(s)
}
