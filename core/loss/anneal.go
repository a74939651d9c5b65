package loss

import (
	"fmt"
	"math"
)

// Named anneal terms. The order of annealTerms fixes iteration order wherever
// the scheduler walks its term set.
const (
	TermMedian     = "median"
	TermMain       = "main"
	TermMonotonous = "monotonous"
	TermAnchor     = "anchor"
	TermDual       = "dual"
	TermRecover    = "recover"
	TermPressure   = "pressure"
)

var annealTerms = []string{
	TermMedian,
	TermMain,
	TermMonotonous,
	TermAnchor,
	TermDual,
	TermRecover,
	TermPressure,
}

// AnnealSpec configures the ramp of one term. An empty Method disables the
// term: its weight is absent and the corresponding loss is left unscaled.
type AnnealSpec struct {
	Method  string  `json:"method"`
	Ratio   float64 `json:"ratio"`
	Floor   float64 `json:"floor"`
	Ceiling float64 `json:"ceiling"`
}

// DefaultAnnealSpecs returns the stock schedule table.
func DefaultAnnealSpecs() map[string]AnnealSpec {
	return map[string]AnnealSpec{
		TermMedian:     {Method: "linear", Ratio: 0.25, Floor: 1.0, Ceiling: 2.5},
		TermMain:       {Method: "linear", Ratio: 0.25, Floor: 0.0, Ceiling: 0.8},
		TermMonotonous: {Method: "sigmoid", Ratio: 0.2, Floor: 0.0, Ceiling: 2.5},
		TermAnchor:     {Method: "linear", Ratio: 0.2, Floor: 0.0, Ceiling: 2.0},
		TermDual:       {Method: "sigmoid", Ratio: 0.75, Floor: 0.0, Ceiling: 0.1},
		TermRecover:    {Method: "sigmoid", Ratio: 0.75, Floor: 0.0, Ceiling: 0.1},
		TermPressure:   {Method: "sigmoid", Ratio: 0.5, Floor: 0.0, Ceiling: 1.0},
	}
}

// Anneal ramps a scalar weight from floor to ceiling over duration steps and
// holds the ceiling afterwards.
type Anneal struct {
	method   string
	duration int
	floor    float64
	ceiling  float64
	step     int
}

// NewAnneal builds a ramp. Supported methods are "linear" and "sigmoid".
func NewAnneal(method string, duration int, floor, ceiling float64) (*Anneal, error) {
	switch method {
	case "linear", "sigmoid":
	default:
		return nil, fmt.Errorf("unknown anneal method %q", method)
	}
	if floor > ceiling {
		return nil, fmt.Errorf("anneal floor %v above ceiling %v", floor, ceiling)
	}
	return &Anneal{method: method, duration: duration, floor: floor, ceiling: ceiling}, nil
}

// At returns the weight for the given step without mutating state.
func (a *Anneal) At(step int) float64 {
	if a.duration <= 0 || step >= a.duration {
		return a.ceiling
	}
	t := float64(step) / float64(a.duration)
	var ramp float64
	switch a.method {
	case "sigmoid":
		ramp = sigmoidRamp(t)
	default:
		ramp = t
	}
	return a.floor + (a.ceiling-a.floor)*ramp
}

// Pop returns the weight for the current step and advances the counter.
func (a *Anneal) Pop() float64 {
	v := a.At(a.step)
	a.step++
	return v
}

// Step exposes the internal counter for checkpointing.
func (a *Anneal) Step() int { return a.step }

// SetStep restores the internal counter from a checkpoint.
func (a *Anneal) SetStep(step int) { a.step = step }

// sigmoidRamp maps t in [0,1] onto a logistic curve normalized so that it
// starts exactly at 0 and ends exactly at 1, keeping the ramp monotone.
func sigmoidRamp(t float64) float64 {
	const k = 12.0
	logistic := func(x float64) float64 { return 1 / (1 + math.Exp(-k*(x-0.5))) }
	lo, hi := logistic(0), logistic(1)
	return (logistic(t) - lo) / (hi - lo)
}

// Weights maps a term name to its current anneal weight. Absent entries mean
// the term is disabled for the pass and the loss must stay unscaled.
type Weights map[string]float64

// Scheduler owns the seven per-term ramps. Pop advances every enabled ramp by
// exactly one step and is only called on training-mode, non-diagnostic
// passes; diagnostic passes read the last popped main/pressure weights via
// Diagnostic without touching the counters.
type Scheduler struct {
	anneals map[string]*Anneal

	lastMain     float64
	lastPressure float64
	hasMain      bool
	hasPressure  bool
}

// NewScheduler builds ramps for every configured term. Total is the number of
// annealing steps the per-term ratios refer to. A nil specs map selects the
// defaults; a spec with an empty method disables its term.
func NewScheduler(total int, specs map[string]AnnealSpec) (*Scheduler, error) {
	if specs == nil {
		specs = DefaultAnnealSpecs()
	}
	s := &Scheduler{anneals: make(map[string]*Anneal, len(annealTerms))}
	for _, term := range annealTerms {
		spec, ok := specs[term]
		if !ok || spec.Method == "" {
			continue
		}
		duration := int(math.Round(float64(total) * spec.Ratio))
		a, err := NewAnneal(spec.Method, duration, spec.Floor, spec.Ceiling)
		if err != nil {
			return nil, fmt.Errorf("term %s: %w", term, err)
		}
		s.anneals[term] = a
	}
	return s, nil
}

// Pop advances every enabled term once and returns the resulting weights.
func (s *Scheduler) Pop() Weights {
	w := make(Weights, len(s.anneals))
	for _, term := range annealTerms {
		a, ok := s.anneals[term]
		if !ok {
			continue
		}
		w[term] = a.Pop()
	}
	if v, ok := w[TermMain]; ok {
		s.lastMain, s.hasMain = v, true
	}
	if v, ok := w[TermPressure]; ok {
		s.lastPressure, s.hasPressure = v, true
	}
	return w
}

// Diagnostic returns the weights a monotonous-only pass may use: the
// main/pressure values of the most recent Pop. Counters are not advanced, so
// repeated diagnostic passes see identical weights.
func (s *Scheduler) Diagnostic() Weights {
	w := make(Weights, 2)
	if s.hasMain {
		w[TermMain] = s.lastMain
	}
	if s.hasPressure {
		w[TermPressure] = s.lastPressure
	}
	return w
}

// Steps snapshots the per-term counters for checkpointing.
func (s *Scheduler) Steps() map[string]int {
	out := make(map[string]int, len(s.anneals))
	for term, a := range s.anneals {
		out[term] = a.Step()
	}
	return out
}

// Restore sets the per-term counters from a checkpoint snapshot. Unknown
// terms are ignored.
func (s *Scheduler) Restore(steps map[string]int) {
	for term, step := range steps {
		if a, ok := s.anneals[term]; ok {
			a.SetStep(step)
		}
	}
}
