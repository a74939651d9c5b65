package nn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// numerical gradient check: perturb every parameter and compare the loss
// delta against the backward pass.
func TestBackwardMatchesNumericalGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := NewMLP([]int{2, 3, 1}, Tanh, rng)
	x := mat.NewDense(4, 2, []float64{
		0.1, -0.2,
		0.5, 0.3,
		-0.4, 0.8,
		0.9, -0.7,
	})
	target := mat.NewDense(4, 1, []float64{0.2, -0.1, 0.4, 0.0})

	loss := func() float64 {
		out := net.Forward(x)
		var sum float64
		for i := 0; i < 4; i++ {
			d := out.At(i, 0) - target.At(i, 0)
			sum += 0.5 * d * d
		}
		return sum
	}

	// analytic gradients
	out := net.Forward(x)
	grad := mat.NewDense(4, 1, nil)
	grad.Sub(out, target)
	net.ZeroGrad()
	net.Backward(grad)

	const h = 1e-6
	params := net.Params()
	grads := net.Grads()
	for pi, p := range params {
		raw := p.RawMatrix().Data
		for j := range raw {
			orig := raw[j]
			raw[j] = orig + h
			up := loss()
			raw[j] = orig - h
			down := loss()
			raw[j] = orig
			numeric := (up - down) / (2 * h)
			analytic := grads[pi].RawMatrix().Data[j]
			if math.Abs(numeric-analytic) > 1e-4*(1+math.Abs(numeric)) {
				t.Fatalf("param %d[%d]: numeric %v analytic %v", pi, j, numeric, analytic)
			}
		}
	}
}

func TestAdamReducesQuadratic(t *testing.T) {
	// minimize (w-3)^2 on a single 1x1 parameter
	w := mat.NewDense(1, 1, []float64{0})
	g := mat.NewDense(1, 1, nil)
	opt := NewAdam(0.1)
	for i := 0; i < 500; i++ {
		g.Set(0, 0, 2*(w.At(0, 0)-3))
		opt.Step([]*mat.Dense{w}, []*mat.Dense{g})
	}
	if math.Abs(w.At(0, 0)-3) > 1e-2 {
		t.Fatalf("adam did not converge: w=%v", w.At(0, 0))
	}
}

func TestStateRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	net := NewMLP([]int{3, 4, 1}, ReLU, rng)
	x := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	before := net.Forward(x).At(0, 0)

	state := net.State()
	other := NewMLP([]int{3, 4, 1}, ReLU, rand.New(rand.NewSource(99)))
	if err := other.LoadState(state); err != nil {
		t.Fatalf("load state: %v", err)
	}
	after := other.Forward(x).At(0, 0)
	if before != after {
		t.Fatalf("state round trip drifted: %v vs %v", before, after)
	}

	if err := other.LoadState(state[:1]); err == nil {
		t.Fatalf("expected error on truncated state")
	}
}
