package loss

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/deepdist/tabular/core/tensor"
)

// Terms is an insertion-ordered dictionary of named per-sample loss tensors.
// Entries are either (batch,1) tensors or (1,1) scalars; scalars broadcast
// when combined.
type Terms struct {
	names  []string
	values map[string]*mat.Dense
}

// NewTerms returns an empty dictionary.
func NewTerms() *Terms {
	return &Terms{values: make(map[string]*mat.Dense)}
}

// Add appends a named term. Re-adding a name is a logic error.
func (t *Terms) Add(name string, v *mat.Dense) {
	if _, ok := t.values[name]; ok {
		panic(fmt.Sprintf("loss: duplicate term %q", name))
	}
	t.names = append(t.names, name)
	t.values[name] = v
}

// Names returns the term names in insertion order.
func (t *Terms) Names() []string { return t.names }

// Get returns the named tensor, or nil when absent.
func (t *Terms) Get(name string) *mat.Dense { return t.values[name] }

// Len reports the number of terms.
func (t *Terms) Len() int { return len(t.names) }

// Reduce averages every term into a scalar, preserving nothing of the
// per-sample structure; used for logging.
func (t *Terms) Reduce() map[string]float64 {
	out := make(map[string]float64, len(t.names))
	for _, name := range t.names {
		out[name] = tensor.Mean(t.values[name])
	}
	return out
}

// MTL combines a dictionary of named losses into one per-sample tensor using
// a configurable weighting method. Term names are registered lazily on first
// sight; once registered the name set backing the learned weights is fixed
// for the life of the module.
type MTL struct {
	method   string
	capacity int

	names  []string
	index  map[string]int
	logits []float64
}

// NewMTL creates an aggregator. Capacity bounds the number of learnable term
// slots. Supported methods: "uniform" (every term weighted 1) and "softmax"
// (learned logits; zero-initialized, so weights start uniform at 1).
func NewMTL(capacity int, method string) (*MTL, error) {
	switch method {
	case "", "uniform", "softmax":
	default:
		return nil, fmt.Errorf("unknown mtl method %q", method)
	}
	if method == "" {
		method = "uniform"
	}
	return &MTL{method: method, capacity: capacity}, nil
}

// Registered reports whether a term-name set has been bound.
func (m *MTL) Registered() bool { return m.names != nil }

// Register binds the term-name set. Registering the identical set again is a
// no-op; a different set after registration is a logic error and panics.
func (m *MTL) Register(names []string) {
	if m.Registered() {
		if !slices.Equal(m.names, names) {
			panic(fmt.Sprintf("mtl: term set already registered as %v, got %v", m.names, names))
		}
		return
	}
	if len(names) > m.capacity {
		panic(fmt.Sprintf("mtl: %d terms exceed capacity %d", len(names), m.capacity))
	}
	m.names = slices.Clone(names)
	m.index = make(map[string]int, len(names))
	for i, n := range names {
		m.index[n] = i
	}
	m.logits = make([]float64, len(names))
}

// Weights returns the current per-term weights for the registered set.
func (m *MTL) Weights() map[string]float64 {
	out := make(map[string]float64, len(m.names))
	if m.method == "softmax" {
		soft := softmax(m.logits)
		for i, n := range m.names {
			out[n] = float64(len(m.names)) * soft[i]
		}
		return out
	}
	for _, n := range m.names {
		out[n] = 1
	}
	return out
}

// Combine produces the weighted per-sample sum of the passed dictionary.
// Terms outside the registered set (diagnostic synthetic terms) are taken at
// weight 1. Scalar terms broadcast across the batch.
func (m *MTL) Combine(terms *Terms) *mat.Dense {
	weights := m.Weights()
	batch := 1
	for _, name := range terms.Names() {
		if r := tensor.Rows(terms.Get(name)); r > batch {
			batch = r
		}
	}
	acc := tensor.Zeros(batch, 1)
	for _, name := range terms.Names() {
		w, ok := weights[name]
		if !ok {
			w = 1
		}
		acc = tensor.Add(acc, tensor.Scale(terms.Get(name), w))
	}
	return acc
}

// Logits exposes the learnable weight state for checkpointing. The slice is
// nil until registration and aligned with RegisteredNames.
func (m *MTL) Logits() []float64 { return slices.Clone(m.logits) }

// SetLogits restores learned weights from a checkpoint.
func (m *MTL) SetLogits(logits []float64) error {
	if len(logits) != len(m.logits) {
		return fmt.Errorf("mtl: logit count %d does not match %d registered terms", len(logits), len(m.logits))
	}
	copy(m.logits, logits)
	return nil
}

// RegisteredNames returns the bound term-name set in registration order.
func (m *MTL) RegisteredNames() []string { return slices.Clone(m.names) }

func softmax(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	maxv := slices.Max(xs)
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		out[i] = math.Exp(x - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
